package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/enrollmail/core/mqtt"
)

// MockPublisher records published schedules; used in tests and dry runs.
type MockPublisher struct {
	mu        sync.Mutex
	Schedules map[int64]coremqtt.Schedule
	FailIDs   map[int64]bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Schedules: make(map[int64]coremqtt.Schedule),
		FailIDs:   make(map[int64]bool),
	}
}

// PublishSchedule records the schedule or fails for configured contacts.
func (m *MockPublisher) PublishSchedule(_ context.Context, s coremqtt.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[s.ContactID] {
		return fmt.Errorf("publish failed")
	}
	m.Schedules[s.ContactID] = s
	return nil
}

// Count returns how many schedules were recorded.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Schedules)
}
