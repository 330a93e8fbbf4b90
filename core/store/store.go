// Package store defines the persistence ports used around the scheduling
// core: where contacts are read from and where computed schedules go.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/enrollmail/core/model"
)

// ErrContactNotFound is returned by ContactStore.Fetch for unknown ids.
var ErrContactNotFound = errors.New("contact not found")

// ContactStore reads contacts. Missing optional dates are returned as nil
// fields, never as errors.
type ContactStore interface {
	Fetch(ctx context.Context, id int64) (model.Contact, error)
	FetchPage(ctx context.Context, offset, limit int) ([]model.Contact, error)
}

// ScheduleRecord captures the schedule computed for one contact in a run.
type ScheduleRecord struct {
	RunID         string                 `json:"run_id"`
	ComputedAt    time.Time              `json:"computed_at"`
	ReferenceDate string                 `json:"reference_date"`
	ContactID     int64                  `json:"contact_id"`
	State         string                 `json:"state"`
	Rule          string                 `json:"rule"`
	Window        *model.ExclusionWindow `json:"window,omitempty"`
	Emails        []model.Email          `json:"emails"`
	Suppressed    []string               `json:"suppressed,omitempty"`
}

// ScheduleQuery filters stored records. Zero fields match everything.
type ScheduleQuery struct {
	RunID     string
	ContactID int64
	Start     time.Time
	End       time.Time
	EmailType model.EmailType
}

// Match reports whether rec satisfies q.
func (q ScheduleQuery) Match(rec ScheduleRecord) bool {
	if q.RunID != "" && rec.RunID != q.RunID {
		return false
	}
	if q.ContactID != 0 && rec.ContactID != q.ContactID {
		return false
	}
	if !q.Start.IsZero() && rec.ComputedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.ComputedAt.After(q.End) {
		return false
	}
	if q.EmailType != "" {
		for _, e := range rec.Emails {
			if e.Type == q.EmailType {
				return true
			}
		}
		return false
	}
	return true
}

// EmailStore persists computed schedules and supports querying.
type EmailStore interface {
	SaveSchedule(ctx context.Context, rec ScheduleRecord) error
	Query(ctx context.Context, q ScheduleQuery) ([]ScheduleRecord, error)
	// CountByDate returns how many emails of type t run runID scheduled on
	// each date, keyed by YYYY-MM-DD.
	CountByDate(ctx context.Context, runID string, t model.EmailType) (map[string]int, error)
	Close() error
}
