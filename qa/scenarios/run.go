package scenarios

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/scheduler"
	"github.com/kilianp07/enrollmail/infra/logger"
	"github.com/kilianp07/enrollmail/infra/metrics"
	"github.com/kilianp07/enrollmail/internal/eventbus"
)

// RunScenario schedules the scenario contacts as one batch and compares the
// result with the expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	bus := eventbus.New()
	defer bus.Close()

	date, err := model.ParseDate(sc.Date)
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	contacts := make([]model.Contact, len(sc.Contacts))
	for i, c := range sc.Contacts {
		if contacts[i], err = c.ToModel(); err != nil {
			t.Fatalf("contact: %v", err)
		}
	}

	s := scheduler.New(nil, logger.NopLogger{})
	b := scheduler.NewBatch(s, scheduler.Config{Workers: 4}, bus, sink, nil, logger.NopLogger{})
	res, err := b.ComputeBatch(context.Background(), contacts, date)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	var got []EmailDef
	for _, slot := range res.Emails {
		for _, e := range slot {
			got = append(got, EmailDef{Contact: e.ContactID, Type: string(e.Type), Date: e.ScheduledAt.Format(model.DateLayout)})
		}
	}
	if len(got) != len(sc.Expected.Emails) {
		t.Fatalf("scenario %s expected %d emails, got %d: %v", sc.Name, len(sc.Expected.Emails), len(got), got)
	}
	for i := range got {
		if got[i] != sc.Expected.Emails[i] {
			t.Errorf("scenario %s email %d: expected %+v, got %+v", sc.Name, i, sc.Expected.Emails[i], got[i])
		}
	}
	if len(res.Failures) != sc.Expected.Failures {
		t.Errorf("scenario %s expected %d failures, got %d", sc.Name, sc.Expected.Failures, len(res.Failures))
	}
	if d := sc.Expected.Distribution; d != nil && *d != res.Distribution {
		t.Errorf("scenario %s expected aep distribution %v, got %v", sc.Name, *d, res.Distribution)
	}
}
