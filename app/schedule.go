package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/enrollmail/core/model"
	coremqtt "github.com/kilianp07/enrollmail/core/mqtt"
	"github.com/kilianp07/enrollmail/core/scheduler"
	"github.com/kilianp07/enrollmail/core/store"
)

// Summary describes a completed batch run over the contact store.
type Summary struct {
	RunID     string
	Date      time.Time
	Contacts  int
	Failed    int
	Emails    int
	Persisted int
	Published int
	Result    scheduler.BatchResult
	// Input holds the contacts of the run, index-aligned with Result.
	Input []model.Contact
}

func (s *Service) referenceDate(date time.Time) time.Time {
	if date.IsZero() {
		return model.Day(s.now())
	}
	return model.Day(date)
}

// ComputeContact loads one contact and computes its schedule.
func (s *Service) ComputeContact(ctx context.Context, id int64, date time.Time) (model.Contact, scheduler.Plan, error) {
	c, err := s.contacts.Fetch(ctx, id)
	if err != nil {
		return model.Contact{}, scheduler.Plan{}, err
	}
	p, err := s.sched.Plan(c, s.referenceDate(date))
	return c, p, err
}

// ComputeBatch schedules the given contacts together and stores the result.
func (s *Service) ComputeBatch(ctx context.Context, contacts []model.Contact, date time.Time) (scheduler.BatchResult, error) {
	sum, err := s.process(ctx, contacts, s.referenceDate(date))
	return sum.Result, err
}

// ComputePage schedules one page of the contact store and stores the result.
func (s *Service) ComputePage(ctx context.Context, offset, limit int, date time.Time) (scheduler.BatchResult, error) {
	page, err := s.contacts.FetchPage(ctx, offset, limit)
	if err != nil {
		return scheduler.BatchResult{}, fmt.Errorf("fetch contacts: %w", err)
	}
	return s.ComputeBatch(ctx, page, date)
}

// History returns stored schedules matching q.
func (s *Service) History(ctx context.Context, q store.ScheduleQuery) ([]store.ScheduleRecord, error) {
	return s.output.Query(ctx, q)
}

// EmailLoad returns how many emails of type t run runID scheduled per date.
func (s *Service) EmailLoad(ctx context.Context, runID string, t model.EmailType) (map[string]int, error) {
	return s.output.CountByDate(ctx, runID, t)
}

// RunBatch schedules every contact of the store as a single batch so the AEP
// allocation spans the whole population. A zero date means today.
func (s *Service) RunBatch(ctx context.Context, date time.Time) (Summary, error) {
	var all []model.Contact
	size := s.cfg.Scheduler.PageSize
	if size <= 0 {
		size = 500
	}
	for offset := 0; ; offset += size {
		page, err := s.contacts.FetchPage(ctx, offset, size)
		if err != nil {
			return Summary{}, fmt.Errorf("fetch contacts at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < size {
			break
		}
	}
	s.log.Infof("loaded %d contacts", len(all))
	return s.process(ctx, all, s.referenceDate(date))
}

func (s *Service) process(ctx context.Context, contacts []model.Contact, today time.Time) (Summary, error) {
	res, err := s.batch.ComputeBatch(ctx, contacts, today)
	sum := Summary{
		RunID:    res.RunID,
		Date:     today,
		Contacts: len(contacts),
		Failed:   len(res.Failures),
		Result:   res,
		Input:    contacts,
	}
	if err != nil {
		return sum, err
	}
	computedAt := time.Now().UTC()
	for i, c := range contacts {
		if !res.Succeeded(i) {
			continue
		}
		sum.Emails += len(res.Emails[i])
		rec := Record(res.RunID, computedAt, today, c, res.Plans[i])
		if err := s.output.SaveSchedule(ctx, rec); err != nil {
			s.log.Errorf("run %s: save schedule of contact %d: %v", res.RunID, c.ID, err)
		} else {
			sum.Persisted++
		}
		if s.publisher == nil || len(rec.Emails) == 0 {
			continue
		}
		msg := coremqtt.Schedule{
			RunID:         res.RunID,
			ContactID:     c.ID,
			ReferenceDate: rec.ReferenceDate,
			Emails:        rec.Emails,
		}
		if err := s.publisher.PublishSchedule(ctx, msg); err != nil {
			s.log.Warnf("run %s: publish schedule of contact %d: %v", res.RunID, c.ID, err)
		} else {
			sum.Published++
		}
	}
	return sum, nil
}

// Record converts a computed plan to its stored form.
func Record(runID string, computedAt, today time.Time, c model.Contact, p scheduler.Plan) store.ScheduleRecord {
	rec := store.ScheduleRecord{
		RunID:         runID,
		ComputedAt:    computedAt,
		ReferenceDate: today.Format(model.DateLayout),
		ContactID:     c.ID,
		State:         c.StateCode(),
		Rule:          p.Rule.Kind.String(),
		Emails:        p.Emails,
	}
	if rec.Emails == nil {
		rec.Emails = []model.Email{}
	}
	if p.HasWindow {
		w := p.Window
		rec.Window = &w
	}
	if p.Skipped != "" {
		rec.Suppressed = append(rec.Suppressed, string(p.Skipped))
	}
	for _, sp := range p.Suppressed {
		rec.Suppressed = append(rec.Suppressed, fmt.Sprintf("%s:%s", sp.Type, sp.Reason))
	}
	return rec
}
