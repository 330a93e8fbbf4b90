// Package export writes computed emails in the flat export shape
// {contactId, emailType, scheduledAt, reason}.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/enrollmail/core/model"
)

// ErrUnsupportedFormat is returned by Write for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Flatten joins index-aligned batch slots into one list, skipping failed slots.
func Flatten(slots [][]model.Email) []model.Email {
	out := []model.Email{}
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

// Write encodes emails to w as "json" or "csv".
func Write(w io.Writer, format string, emails []model.Email) error {
	switch format {
	case "json":
		return WriteJSON(w, emails)
	case "csv":
		return WriteCSV(w, emails)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteJSON writes the emails to w as a JSON array.
func WriteJSON(w io.Writer, emails []model.Email) error {
	if emails == nil {
		emails = []model.Email{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(emails)
}

// WriteCSV writes the emails to w in CSV format with a header row.
func WriteCSV(w io.Writer, emails []model.Email) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"contactId", "emailType", "scheduledAt", "reason"}); err != nil {
		return err
	}
	for _, e := range emails {
		rec := []string{
			strconv.FormatInt(e.ContactID, 10),
			string(e.Type),
			e.ScheduledAt.Format(model.DateLayout),
			e.Reason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
