package scheduler

import (
	"fmt"
	"time"

	"github.com/kilianp07/enrollmail/core/logger"
	"github.com/kilianp07/enrollmail/core/model"
)

// AEPWeekCount is the number of fixed AEP weeks per year.
const AEPWeekCount = 4

var aepAnchors = [AEPWeekCount]struct {
	month time.Month
	day   int
}{
	{time.August, 18},
	{time.August, 25},
	{time.September, 1},
	{time.September, 7},
}

// AEPWeeks returns the four AEP anchor dates of year in calendar order.
func AEPWeeks(year int) [AEPWeekCount]time.Time {
	var out [AEPWeekCount]time.Time
	for i, a := range aepAnchors {
		out[i] = model.Date(year, a.month, a.day)
	}
	return out
}

// IsAEPWeek reports whether d is one of the AEP anchors of its year.
func IsAEPWeek(d time.Time) bool {
	d = model.Day(d)
	for _, w := range AEPWeeks(d.Year()) {
		if w.Equal(d) {
			return true
		}
	}
	return false
}

// Constraint describes where a contact's AEP email may not land.
type Constraint struct {
	Window    model.ExclusionWindow
	HasWindow bool
	// Avoid lists already scheduled dates the AEP email must stay at least
	// AntiClusterDays away from.
	Avoid []time.Time
}

type verdict int

const (
	allowed verdict = iota
	blockedPast
	blockedWindow
	blockedCluster
)

func (c Constraint) check(d, today time.Time) verdict {
	if d.Before(today) {
		return blockedPast
	}
	if c.HasWindow && c.Window.Contains(d) {
		return blockedWindow
	}
	for _, a := range c.Avoid {
		if model.DaysBetween(a, d) < AntiClusterDays {
			return blockedCluster
		}
	}
	return allowed
}

// Assignment is the AEP outcome for one contact.
type Assignment struct {
	Scheduled bool
	Date      time.Time
	// Week is the zero-based week index, -1 when suppressed.
	Week int
	// Home is the preferred week in batch mode.
	Home int
	// WindowBlocked is set when no week qualified and at least one future
	// week fell inside the exclusion window.
	WindowBlocked bool
}

// Candidate is a contact taking part in batch AEP allocation.
type Candidate struct {
	ContactID  int64
	Constraint Constraint
}

// AEPAllocator chooses the AEP week for one contact or a whole batch.
type AEPAllocator struct {
	log logger.Logger
}

// NewAEPAllocator returns an allocator logging through log.
func NewAEPAllocator(log logger.Logger) *AEPAllocator {
	return &AEPAllocator{log: log}
}

// AssignOne tries the weeks of today's year in calendar order and returns
// the first that satisfies the constraint.
func (a *AEPAllocator) AssignOne(c Constraint, today time.Time) Assignment {
	return a.assign(c, model.Day(today), 0)
}

// AssignBatch gives each candidate a home week by its rank modulo four and
// falls back to the other weeks in calendar order. Overflow is not
// redistributed across contacts.
func (a *AEPAllocator) AssignBatch(cands []Candidate, today time.Time) []Assignment {
	today = model.Day(today)
	out := make([]Assignment, len(cands))
	for i, c := range cands {
		home := i % AEPWeekCount
		out[i] = a.assign(c.Constraint, today, home)
		if !out[i].Scheduled {
			a.log.Infof("aep: no qualifying week for contact %d, suppressed this cycle", c.ContactID)
		} else if out[i].Week != home {
			a.log.Debugf("aep: contact %d moved from week %d to week %d", c.ContactID, home+1, out[i].Week+1)
		}
	}
	return out
}

func (a *AEPAllocator) assign(c Constraint, today time.Time, home int) Assignment {
	weeks := AEPWeeks(today.Year())
	res := Assignment{Week: -1, Home: home}
	order := make([]int, 0, AEPWeekCount)
	order = append(order, home)
	for i := 0; i < AEPWeekCount; i++ {
		if i != home {
			order = append(order, i)
		}
	}
	for _, i := range order {
		switch c.check(weeks[i], today) {
		case allowed:
			res.Scheduled = true
			res.Date = weeks[i]
			res.Week = i
			res.WindowBlocked = false
			return res
		case blockedWindow:
			res.WindowBlocked = true
		}
	}
	return res
}

// Email builds the AEP email for an assignment.
func (a *AEPAllocator) Email(contactID int64, asg Assignment) model.Email {
	return model.Email{
		ContactID:   contactID,
		Type:        model.EmailAEP,
		ScheduledAt: asg.Date,
		Reason:      fmt.Sprintf("annual enrollment period, week %d", asg.Week+1),
	}
}

// Distribution counts scheduled assignments per week.
func Distribution(asgs []Assignment) [AEPWeekCount]int {
	var out [AEPWeekCount]int
	for _, a := range asgs {
		if a.Scheduled && a.Week >= 0 && a.Week < AEPWeekCount {
			out[a.Week]++
		}
	}
	return out
}
