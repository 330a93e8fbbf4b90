package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/enrollmail/core/events"
	"github.com/kilianp07/enrollmail/core/logger"
	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/monitoring"
	"github.com/kilianp07/enrollmail/core/rules"
	"github.com/kilianp07/enrollmail/internal/eventbus"
)

// ErrBatchFailed is returned when no contact of a batch could be scheduled.
var ErrBatchFailed = errors.New("batch failed")

// ContactFailure describes a contact whose schedule could not be computed.
type ContactFailure struct {
	Index     int
	ContactID int64
	Err       error
}

func (f ContactFailure) Error() string {
	return fmt.Sprintf("contact %d (index %d): %v", f.ContactID, f.Index, f.Err)
}

func (f ContactFailure) Unwrap() error { return f.Err }

// BatchResult holds the outcome of a batch run. Emails and Plans are aligned
// with the input contacts; failed slots hold nil emails and a zero Plan.
type BatchResult struct {
	RunID        string
	Emails       [][]model.Email
	Plans        []Plan
	Failures     []ContactFailure
	Distribution [AEPWeekCount]int
}

// Succeeded reports whether the contact at index i was scheduled.
func (r BatchResult) Succeeded(i int) bool {
	for _, f := range r.Failures {
		if f.Index == i {
			return false
		}
	}
	return i >= 0 && i < len(r.Emails)
}

// Batch computes schedules for many contacts and balances AEP emails
// across the four weeks.
type Batch struct {
	sched   *Scheduler
	workers int
	bus     eventbus.EventBus
	sink    coremetrics.ScheduleSink
	monitor monitoring.Monitor
	log     logger.Logger

	planFn func(model.Contact, time.Time, windowFunc) (Plan, error)
}

// NewBatch creates a Batch. Nil collaborators are replaced by no-op ones.
func NewBatch(s *Scheduler, cfg Config, bus eventbus.EventBus, sink coremetrics.ScheduleSink, mon monitoring.Monitor, log logger.Logger) *Batch {
	cfg.SetDefaults()
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Batch{
		sched:   s,
		workers: cfg.Workers,
		bus:     bus,
		sink:    sink,
		monitor: monitoring.OrNop(mon),
		log:     log,
		planFn:  s.plan,
	}
}

// ComputeBatch schedules every contact. A failing contact never affects the
// others; ErrBatchFailed is returned only when all contacts failed.
func (b *Batch) ComputeBatch(ctx context.Context, contacts []model.Contact, today time.Time) (BatchResult, error) {
	start := time.Now()
	today = model.Day(today)
	n := len(contacts)
	res := BatchResult{
		RunID:  uuid.NewString(),
		Emails: make([][]model.Email, n),
		Plans:  make([]Plan, n),
	}
	errs := make([]error, n)
	memo := rules.NewMemo(b.sched.calc, today)

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range contacts {
		i := i
		g.Go(func() error {
			errs[i] = b.computeOne(ctx, contacts[i], today, memo, &res.Plans[i])
			return nil
		})
	}
	_ = g.Wait()

	if n > 1 {
		b.rebalance(res.Plans, errs, today)
	}

	results := make([]coremetrics.ScheduleResult, 0, n)
	for i, err := range errs {
		if err != nil {
			b.fail(&res, i, contacts[i].ID, err)
			continue
		}
		p := res.Plans[i]
		if p.aep.Scheduled {
			res.Distribution[p.aep.Week]++
		}
		emails := p.Emails
		if emails == nil {
			emails = []model.Email{}
		}
		res.Emails[i] = emails
		supp := make([]coremetrics.Suppression, len(p.Suppressed))
		for k, sp := range p.Suppressed {
			supp[k] = coremetrics.Suppression{EmailType: sp.Type, Reason: string(sp.Reason)}
		}
		results = append(results, coremetrics.ScheduleResult{
			RunID:        res.RunID,
			ContactID:    contacts[i].ID,
			State:        contacts[i].StateCode(),
			Rule:         p.Rule.Kind.String(),
			Emails:       emails,
			Suppressions: supp,
			Time:         start,
		})
	}
	b.report(res, results, n, time.Since(start))

	if n > 0 && len(res.Failures) == n {
		err := fmt.Errorf("%w: all %d contacts failed: %w", ErrBatchFailed, n, res.Failures[0].Err)
		b.monitor.CaptureException(err, map[string]string{"run_id": res.RunID})
		return res, err
	}
	return res, nil
}

func (b *Batch) computeOne(ctx context.Context, c model.Contact, today time.Time, memo *rules.MemoCalculator, out *Plan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("contact %d: panic: %v", c.ID, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.planFn(c, today, memo.Compute)
	if err != nil {
		return err
	}
	*out = p
	return nil
}

// rebalance replaces every single-contact AEP choice with a batch-wide
// round-robin assignment.
func (b *Batch) rebalance(plans []Plan, errs []error, today time.Time) {
	var idx []int
	var cands []Candidate
	for i := range plans {
		if errs[i] != nil || !plans[i].AEPCandidate() {
			continue
		}
		p := plans[i]
		c := Constraint{Window: p.Window, HasWindow: p.HasWindow}
		if e, ok := p.Email(model.EmailBirthday); ok {
			c.Avoid = append(c.Avoid, e.ScheduledAt)
		}
		idx = append(idx, i)
		cands = append(cands, Candidate{ContactID: p.ContactID, Constraint: c})
	}
	asgs := b.sched.aep.AssignBatch(cands, today)
	for k, i := range idx {
		plans[i].replaceAEP(b.sched.aep, asgs[k])
		Sort(plans[i].Emails)
		if err := Validate(plans[i].Emails, today); err != nil {
			errs[i] = fmt.Errorf("contact %d: %w", plans[i].ContactID, err)
		}
	}
}

func (p *Plan) replaceAEP(alloc *AEPAllocator, asg Assignment) {
	emails := make([]model.Email, 0, len(p.Emails))
	for _, e := range p.Emails {
		if e.Type != model.EmailAEP {
			emails = append(emails, e)
		}
	}
	supp := make([]Suppression, 0, len(p.Suppressed))
	for _, s := range p.Suppressed {
		if s.Type != model.EmailAEP {
			supp = append(supp, s)
		}
	}
	switch {
	case asg.Scheduled:
		emails = append(emails, alloc.Email(p.ContactID, asg))
	case asg.WindowBlocked:
		supp = append(supp, Suppression{Type: model.EmailAEP, Reason: SuppressedByWindow})
	default:
		supp = append(supp, Suppression{Type: model.EmailAEP, Reason: SuppressedNoAEPWeek})
	}
	p.Emails = emails
	p.Suppressed = supp
	p.aep = asg
}

func (b *Batch) fail(res *BatchResult, i int, id int64, err error) {
	res.Emails[i] = nil
	res.Plans[i] = Plan{}
	res.Failures = append(res.Failures, ContactFailure{Index: i, ContactID: id, Err: err})
	b.log.Errorf("batch %s: contact %d failed: %v", res.RunID, id, err)
	b.monitor.CaptureException(err, map[string]string{
		"run_id":     res.RunID,
		"contact_id": strconv.FormatInt(id, 10),
	})
	b.bus.Publish(events.ContactFailedEvent{RunID: res.RunID, Index: i, ContactID: id, Err: err})
}

func (b *Batch) report(res BatchResult, results []coremetrics.ScheduleResult, n int, d time.Duration) {
	emails := 0
	for _, r := range results {
		emails += len(r.Emails)
	}
	spread := Spread(res.Distribution)

	if err := b.sink.RecordSchedule(results); err != nil {
		b.log.Warnf("batch %s: record schedules: %v", res.RunID, err)
	}
	ev := coremetrics.BatchEvent{
		RunID:        res.RunID,
		Contacts:     n,
		Failed:       len(res.Failures),
		Emails:       emails,
		Distribution: res.Distribution,
		Spread:       spread,
		Duration:     d,
		Time:         time.Now(),
	}
	if err := coremetrics.RecordBatch(b.sink, ev); err != nil {
		b.log.Warnf("batch %s: record summary: %v", res.RunID, err)
	}
	b.bus.Publish(events.BatchCompletedEvent{
		RunID:        res.RunID,
		Contacts:     n,
		Failed:       len(res.Failures),
		Emails:       emails,
		Distribution: res.Distribution,
		Spread:       spread,
		Duration:     d,
		Time:         ev.Time,
	})
	b.log.Infof("batch %s: %d contacts, %d failed, %d emails, aep weeks %v (spread %.2f) in %s",
		res.RunID, n, len(res.Failures), emails, res.Distribution, spread, d)
}
