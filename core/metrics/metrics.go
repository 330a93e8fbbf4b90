package metrics

import (
	"time"

	"github.com/kilianp07/enrollmail/core/model"
)

// Suppression is an email left out of a contact's schedule and why.
type Suppression struct {
	EmailType model.EmailType
	Reason    string
}

// ScheduleResult is the computed schedule of one contact to be recorded.
type ScheduleResult struct {
	RunID        string
	ContactID    int64
	State        string
	Rule         string
	Emails       []model.Email
	Suppressions []Suppression
	Time         time.Time
}

// ScheduleSink records per-contact schedules.
type ScheduleSink interface {
	RecordSchedule(results []ScheduleResult) error
}

// BatchEvent summarises one batch run.
type BatchEvent struct {
	RunID        string
	Contacts     int
	Failed       int
	Emails       int
	Distribution [4]int
	Spread       float64
	Duration     time.Duration
	Time         time.Time
}

// BatchRecorder records batch summaries.
type BatchRecorder interface {
	RecordBatch(ev BatchEvent) error
}

// FailureEvent describes one contact a batch could not schedule.
type FailureEvent struct {
	RunID     string
	ContactID int64
	Error     string
	Time      time.Time
}

// FailureRecorder records per-contact batch failures.
type FailureRecorder interface {
	RecordFailure(ev FailureEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSchedule([]ScheduleResult) error { return nil }
func (NopSink) RecordBatch(BatchEvent) error          { return nil }
func (NopSink) RecordFailure(FailureEvent) error      { return nil }

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []ScheduleSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...ScheduleSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSchedule forwards the records to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSchedule(res []ScheduleResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordSchedule(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordBatch forwards the summary to sinks that support it.
func (m *MultiSink) RecordBatch(ev BatchEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BatchRecorder); ok {
			if err := rec.RecordBatch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFailure forwards the failure to sinks that support it.
func (m *MultiSink) RecordFailure(ev FailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FailureRecorder); ok {
			if err := rec.RecordFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBatch forwards ev to s when it supports batch summaries.
func RecordBatch(s ScheduleSink, ev BatchEvent) error {
	if rec, ok := s.(BatchRecorder); ok {
		return rec.RecordBatch(ev)
	}
	return nil
}
