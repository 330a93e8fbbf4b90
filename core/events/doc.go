// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - ContactFailedEvent: one contact of a batch could not be scheduled
//   - BatchCompletedEvent: summary of a finished batch run
package events
