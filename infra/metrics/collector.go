package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/enrollmail/core/events"
	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records contact
// failures on sinks that support them. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.ScheduleSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.FailureRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				e, ok := ev.(events.ContactFailedEvent)
				if !ok {
					continue
				}
				msg := ""
				if e.Err != nil {
					msg = e.Err.Error()
				}
				_ = rec.RecordFailure(coremetrics.FailureEvent{
					RunID:     e.RunID,
					ContactID: e.ContactID,
					Error:     msg,
					Time:      time.Now(),
				})
			}
		}
	}()
}
