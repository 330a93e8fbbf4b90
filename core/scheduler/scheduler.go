package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/enrollmail/core/logger"
	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/rules"
)

const (
	// BirthdayLeadDays is how long before a birthday the birthday email goes out.
	BirthdayLeadDays = 14
	// EffectiveLeadDays is how long before a policy anniversary the effective
	// date email goes out.
	EffectiveLeadDays = 30
	// AntiClusterDays is the minimum spacing between a birthday email and an
	// effective date or AEP email.
	AntiClusterDays = 60
)

var carrierUpdateAnchor = model.Date(2000, time.January, 31)

// ErrInvariantViolation is returned when a computed schedule breaks one of the
// output guarantees. It only ever affects the contact being computed.
var ErrInvariantViolation = errors.New("schedule invariant violated")

// SuppressionReason explains why an email type was not scheduled.
type SuppressionReason string

const (
	SuppressedByWindow     SuppressionReason = "exclusion_window"
	SuppressedByClustering SuppressionReason = "anti_clustering"
	SuppressedPast         SuppressionReason = "past_date"
	SuppressedNoAEPWeek    SuppressionReason = "no_aep_week"
	SuppressedByFailure    SuppressionReason = "step_failure"
)

// Suppression records an email type that was dropped for a contact.
type Suppression struct {
	Type   model.EmailType   `json:"emailType"`
	Reason SuppressionReason `json:"reason"`
	// Date is the date the email would have had, zero when unknown.
	Date time.Time `json:"-"`
}

// SkipReason explains why a contact produced no emails at all.
type SkipReason string

const (
	SkipMissingDates SkipReason = "missing_dates"
	SkipYearRound    SkipReason = "year_round"
	SkipUnknownState SkipReason = "unknown_state"
)

// Plan is the full outcome of scheduling one contact.
type Plan struct {
	ContactID int64
	// Date is the reference date the plan was computed for.
	Date       time.Time
	Rule       rules.StateRule
	Window     model.ExclusionWindow
	HasWindow  bool
	Emails     []model.Email
	Suppressed []Suppression
	Skipped    SkipReason

	aep        Assignment
	windowHits int
}

// AEPCandidate reports whether the contact takes part in AEP allocation.
func (p Plan) AEPCandidate() bool { return p.Skipped == "" }

// Email returns the scheduled email of type t.
func (p Plan) Email(t model.EmailType) (model.Email, bool) {
	for _, e := range p.Emails {
		if e.Type == t {
			return e, true
		}
	}
	return model.Email{}, false
}

// Scheduler computes the email schedule of a single contact.
type Scheduler struct {
	calc *rules.WindowCalculator
	aep  *AEPAllocator
	log  logger.Logger
}

// New creates a Scheduler. A nil calculator uses the default rule catalog.
func New(calc *rules.WindowCalculator, log logger.Logger) *Scheduler {
	if calc == nil {
		calc = rules.NewWindowCalculator(nil)
	}
	return &Scheduler{calc: calc, aep: NewAEPAllocator(log), log: log}
}

// Allocator exposes the AEP allocator used by the scheduler.
func (s *Scheduler) Allocator() *AEPAllocator { return s.aep }

// ComputeEmails returns the emails owed to c, sorted by date.
func (s *Scheduler) ComputeEmails(c model.Contact, today time.Time) ([]model.Email, error) {
	p, err := s.Plan(c, today)
	if err != nil {
		return nil, err
	}
	return p.Emails, nil
}

// Plan computes the schedule of c along with the window and suppressions.
func (s *Scheduler) Plan(c model.Contact, today time.Time) (Plan, error) {
	today = model.Day(today)
	return s.plan(c, today, func(c model.Contact) (model.ExclusionWindow, bool) {
		return s.calc.Compute(c, today)
	})
}

type windowFunc func(model.Contact) (model.ExclusionWindow, bool)

type planBuilder struct {
	log   logger.Logger
	today time.Time
	plan  *Plan
}

func (b *planBuilder) add(e model.Email) {
	b.plan.Emails = append(b.plan.Emails, e)
}

func (b *planBuilder) suppress(t model.EmailType, reason SuppressionReason, d time.Time) {
	b.plan.Suppressed = append(b.plan.Suppressed, Suppression{Type: t, Reason: reason, Date: d})
	if reason == SuppressedByWindow {
		b.plan.windowHits++
	}
}

// step runs fn and turns a panic into a skipped email.
func (b *planBuilder) step(t model.EmailType, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("scheduler: contact %d: %s email skipped: %v", b.plan.ContactID, t, r)
			b.suppress(t, SuppressedByFailure, time.Time{})
		}
	}()
	fn()
}

func (s *Scheduler) plan(c model.Contact, today time.Time, window windowFunc) (Plan, error) {
	p := Plan{ContactID: c.ID, Date: today, aep: Assignment{Week: -1}}
	if !c.HasDates() {
		s.log.Warnf("scheduler: contact %d has no birth or effective date, skipped", c.ID)
		p.Skipped = SkipMissingDates
		return p, nil
	}
	p.Rule = s.calc.Catalog().Lookup(c.State)
	switch p.Rule.Kind {
	case rules.YearRound:
		p.Skipped = SkipYearRound
		return p, nil
	case rules.Unknown:
		s.log.Warnf("scheduler: data quality: contact %d has unrecognized state %q", c.ID, c.State)
		p.Skipped = SkipUnknownState
		return p, nil
	}
	p.Window, p.HasWindow = window(c)

	b := &planBuilder{log: s.log, today: today, plan: &p}
	inWindow := func(d time.Time) bool { return p.HasWindow && p.Window.Contains(d) }

	var effective, aep *time.Time

	b.step(model.EmailEffective, func() {
		lead, occ := model.NextLeadDate(*c.EffectiveDate, today, EffectiveLeadDays)
		switch {
		case lead.Before(today):
			b.suppress(model.EmailEffective, SuppressedPast, lead)
		case inWindow(lead):
			b.suppress(model.EmailEffective, SuppressedByWindow, lead)
		default:
			effective = &lead
			b.add(model.Email{
				ContactID:   c.ID,
				Type:        model.EmailEffective,
				ScheduledAt: lead,
				Reason:      fmt.Sprintf("%d days before policy anniversary %s", EffectiveLeadDays, occ.Format(model.DateLayout)),
			})
		}
	})

	b.step(model.EmailAEP, func() {
		asg := s.aep.AssignOne(Constraint{Window: p.Window, HasWindow: p.HasWindow}, today)
		p.aep = asg
		switch {
		case asg.Scheduled:
			d := asg.Date
			aep = &d
			b.add(s.aep.Email(c.ID, asg))
		case asg.WindowBlocked:
			b.suppress(model.EmailAEP, SuppressedByWindow, time.Time{})
		default:
			s.log.Infof("scheduler: contact %d: no AEP week left this cycle", c.ID)
			b.suppress(model.EmailAEP, SuppressedNoAEPWeek, time.Time{})
		}
	})

	b.step(model.EmailBirthday, func() {
		lead, occ := model.NextLeadDate(*c.BirthDate, today, BirthdayLeadDays)
		switch {
		case lead.Before(today):
			b.suppress(model.EmailBirthday, SuppressedPast, lead)
		case p.Rule.Kind != rules.EffectiveDateRule && inWindow(lead):
			b.suppress(model.EmailBirthday, SuppressedByWindow, lead)
		case clusters(lead, effective, aep):
			s.log.Debugf("scheduler: contact %d: birthday email %s dropped, too close to another email", c.ID, lead.Format(model.DateLayout))
			b.suppress(model.EmailBirthday, SuppressedByClustering, lead)
		default:
			b.add(model.Email{
				ContactID:   c.ID,
				Type:        model.EmailBirthday,
				ScheduledAt: lead,
				Reason:      fmt.Sprintf("%d days before birthday %s", BirthdayLeadDays, occ.Format(model.DateLayout)),
			})
		}
	})

	b.step(model.EmailPostExclusion, func() {
		if p.windowHits == 0 || !p.HasWindow || today.After(p.Window.End) {
			return
		}
		b.add(model.Email{
			ContactID:   c.ID,
			Type:        model.EmailPostExclusion,
			ScheduledAt: model.AddDays(p.Window.End, 1),
			Reason:      fmt.Sprintf("follow-up after exclusion window %s", p.Window),
			FollowUpFor: p.Window.AssociatedType,
		})
	})

	b.step(model.EmailCarrierUpdate, func() {
		d := model.NextAnniversary(carrierUpdateAnchor, today)
		b.add(model.Email{
			ContactID:   c.ID,
			Type:        model.EmailCarrierUpdate,
			ScheduledAt: d,
			Reason:      "annual carrier update",
		})
	})

	Sort(p.Emails)
	if err := Validate(p.Emails, today); err != nil {
		return p, fmt.Errorf("contact %d: %w", c.ID, err)
	}
	s.log.Debugw("scheduler: plan computed", map[string]any{
		"contact":    c.ID,
		"rule":       p.Rule.Kind.String(),
		"emails":     len(p.Emails),
		"suppressed": len(p.Suppressed),
	})
	return p, nil
}

func clusters(d time.Time, others ...*time.Time) bool {
	for _, o := range others {
		if o != nil && model.DaysBetween(d, *o) < AntiClusterDays {
			return true
		}
	}
	return false
}

// Sort orders emails by date with the email type as tie-break.
func Sort(emails []model.Email) {
	sort.SliceStable(emails, func(i, j int) bool { return model.Less(emails[i], emails[j]) })
}

// Validate checks the output guarantees of a contact's schedule.
func Validate(emails []model.Email, today time.Time) error {
	today = model.Day(today)
	seen := make(map[model.EmailType]bool, len(emails))
	for _, e := range emails {
		if seen[e.Type] {
			return fmt.Errorf("%w: duplicate %s email", ErrInvariantViolation, e.Type)
		}
		seen[e.Type] = true
		if e.ScheduledAt.Before(today) {
			return fmt.Errorf("%w: %s email dated %s before %s", ErrInvariantViolation,
				e.Type, e.ScheduledAt.Format(model.DateLayout), today.Format(model.DateLayout))
		}
		if e.Type == model.EmailAEP && !IsAEPWeek(e.ScheduledAt) {
			return fmt.Errorf("%w: AEP email on %s is not an AEP week", ErrInvariantViolation,
				e.ScheduledAt.Format(model.DateLayout))
		}
	}
	return nil
}
