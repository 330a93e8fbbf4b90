package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Contact is a snapshot of a Medicare-eligible person as read from the
// contact store. Both dates are optional; a missing date is ordinary input.
type Contact struct {
	ID            int64      `json:"id" yaml:"id"`
	FirstName     string     `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	Email         string     `json:"email,omitempty" yaml:"email,omitempty"`
	State         string     `json:"state" yaml:"state"`
	BirthDate     *time.Time `json:"birth_date,omitempty" yaml:"birth_date,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty" yaml:"effective_date,omitempty"`
}

// HasDates reports whether both scheduling anchors are present.
func (c Contact) HasDates() bool {
	return c.BirthDate != nil && !c.BirthDate.IsZero() &&
		c.EffectiveDate != nil && !c.EffectiveDate.IsZero()
}

// StateCode returns the normalized two-letter state code.
func (c Contact) StateCode() string {
	return strings.ToUpper(strings.TrimSpace(c.State))
}

// DatePtr is a helper for building contacts with literal dates.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

type contactJSON struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Email         string `json:"email,omitempty"`
	State         string `json:"state"`
	BirthDate     string `json:"birth_date,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`
}

// MarshalJSON renders dates as YYYY-MM-DD.
func (c Contact) MarshalJSON() ([]byte, error) {
	return json.Marshal(contactJSON{
		ID:            c.ID,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		Email:         c.Email,
		State:         c.State,
		BirthDate:     formatOptional(c.BirthDate),
		EffectiveDate: formatOptional(c.EffectiveDate),
	})
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC 3339 dates; empty values stay nil.
func (c *Contact) UnmarshalJSON(b []byte) error {
	var raw contactJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	birth, err := parseOptional(raw.BirthDate)
	if err != nil {
		return fmt.Errorf("birth_date: %w", err)
	}
	eff, err := parseOptional(raw.EffectiveDate)
	if err != nil {
		return fmt.Errorf("effective_date: %w", err)
	}
	*c = Contact{
		ID:            raw.ID,
		FirstName:     raw.FirstName,
		LastName:      raw.LastName,
		Email:         raw.Email,
		State:         raw.State,
		BirthDate:     birth,
		EffectiveDate: eff,
	}
	return nil
}

func formatOptional(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func parseOptional(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		d := Day(t)
		return &d, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
