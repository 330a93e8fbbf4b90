package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/enrollmail/core/model"
)

func TestScheduleQueryMatch(t *testing.T) {
	at := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	rec := ScheduleRecord{
		RunID:      "run-1",
		ComputedAt: at,
		ContactID:  42,
		Emails:     []model.Email{{ContactID: 42, Type: model.EmailAEP, ScheduledAt: model.Date(2025, time.August, 18)}},
	}
	assert.True(t, ScheduleQuery{}.Match(rec))
	assert.True(t, ScheduleQuery{RunID: "run-1", ContactID: 42, EmailType: model.EmailAEP}.Match(rec))
	assert.False(t, ScheduleQuery{RunID: "run-2"}.Match(rec))
	assert.False(t, ScheduleQuery{ContactID: 7}.Match(rec))
	assert.False(t, ScheduleQuery{EmailType: model.EmailBirthday}.Match(rec))
	assert.False(t, ScheduleQuery{Start: at.Add(time.Hour)}.Match(rec))
	assert.False(t, ScheduleQuery{End: at.Add(-time.Hour)}.Match(rec))
	assert.True(t, ScheduleQuery{Start: at, End: at}.Match(rec))
}
