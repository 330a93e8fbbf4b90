package events

import "time"

// ContactFailedEvent is published for each contact a batch failed to schedule.
type ContactFailedEvent struct {
	RunID     string
	Index     int
	ContactID int64
	Err       error
}

// BatchCompletedEvent summarises a batch run.
type BatchCompletedEvent struct {
	RunID        string
	Contacts     int
	Failed       int
	Emails       int
	Distribution [4]int
	Spread       float64
	Duration     time.Duration
	Time         time.Time
}
