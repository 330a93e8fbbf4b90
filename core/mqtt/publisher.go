package mqtt

import (
	"context"
	"errors"

	"github.com/kilianp07/enrollmail/core/model"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// Schedule is the message published for one contact.
type Schedule struct {
	RunID         string        `json:"run_id"`
	ContactID     int64         `json:"contact_id"`
	ReferenceDate string        `json:"reference_date"`
	Emails        []model.Email `json:"emails"`
}

// SchedulePublisher hands computed schedules to downstream senders.
type SchedulePublisher interface {
	PublishSchedule(ctx context.Context, s Schedule) error
}
