package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EmailType identifies the category of a scheduled email.
type EmailType string

const (
	EmailBirthday      EmailType = "Birthday"
	EmailEffective     EmailType = "Effective"
	EmailAEP           EmailType = "AEP"
	EmailCarrierUpdate EmailType = "CarrierUpdate"
	EmailPostExclusion EmailType = "PostExclusion"
)

// EmailTypes lists every email type in a stable order.
var EmailTypes = []EmailType{EmailBirthday, EmailEffective, EmailAEP, EmailCarrierUpdate, EmailPostExclusion}

// ParseEmailType validates s against the known email types.
func ParseEmailType(s string) (EmailType, error) {
	for _, t := range EmailTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown email type %q", s)
}

// order is used as a tie-break when two emails share a date.
func (t EmailType) order() int {
	for i, et := range EmailTypes {
		if et == t {
			return i
		}
	}
	return len(EmailTypes)
}

// Less orders emails by date then by type.
func Less(a, b Email) bool {
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.Type.order() < b.Type.order()
}

// Email is a scheduled email value. It is produced per computation and never
// mutated afterwards.
type Email struct {
	ContactID   int64
	Type        EmailType
	ScheduledAt time.Time
	Reason      string
	// FollowUpFor is set on PostExclusion emails to the template the
	// follow-up replaces (Birthday or Effective).
	FollowUpFor EmailType
}

type emailJSON struct {
	ContactID   int64     `json:"contactId"`
	Type        EmailType `json:"emailType"`
	ScheduledAt string    `json:"scheduledAt"`
	Reason      string    `json:"reason"`
	FollowUpFor EmailType `json:"followUpFor,omitempty"`
}

// MarshalJSON renders the export shape with an ISO-8601 date.
func (e Email) MarshalJSON() ([]byte, error) {
	return json.Marshal(emailJSON{
		ContactID:   e.ContactID,
		Type:        e.Type,
		ScheduledAt: e.ScheduledAt.Format(DateLayout),
		Reason:      e.Reason,
		FollowUpFor: e.FollowUpFor,
	})
}

// UnmarshalJSON parses the export shape.
func (e *Email) UnmarshalJSON(b []byte) error {
	var raw emailJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	typ, err := ParseEmailType(string(raw.Type))
	if err != nil {
		return err
	}
	at, err := ParseDate(raw.ScheduledAt)
	if err != nil {
		return fmt.Errorf("scheduledAt: %w", err)
	}
	*e = Email{ContactID: raw.ContactID, Type: typ, ScheduledAt: at, Reason: raw.Reason, FollowUpFor: raw.FollowUpFor}
	return nil
}

// ExclusionWindow is the inclusive date range during which no enrollment
// email may be sent to a contact.
type ExclusionWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// AssociatedType selects the follow-up template sent after the window.
	AssociatedType EmailType `json:"associated_type"`
}

// Contains reports whether d falls inside the window.
func (w ExclusionWindow) Contains(d time.Time) bool {
	return Between(d, w.Start, w.End)
}

func (w ExclusionWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}
