// Package schedule exposes the scheduling engine over HTTP.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/enrollmail/core/logger"
	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/scheduler"
	"github.com/kilianp07/enrollmail/core/store"
)

// maxBodyBytes bounds batch request bodies.
const maxBodyBytes = 10 << 20

// Service is the application surface the handlers call into.
type Service interface {
	ComputeContact(ctx context.Context, id int64, date time.Time) (model.Contact, scheduler.Plan, error)
	ComputeBatch(ctx context.Context, contacts []model.Contact, date time.Time) (scheduler.BatchResult, error)
	ComputePage(ctx context.Context, offset, limit int, date time.Time) (scheduler.BatchResult, error)
	History(ctx context.Context, q store.ScheduleQuery) ([]store.ScheduleRecord, error)
	EmailLoad(ctx context.Context, runID string, t model.EmailType) (map[string]int, error)
}

// NewHandler returns the HTTP routes of the service:
//
//	GET  /api/contacts/{id}/emails?date=YYYY-MM-DD
//	POST /api/schedule/batch
//	GET  /api/schedules
//	GET  /api/runs/{run_id}/load?email_type=AEP
//	GET  /healthz
func NewHandler(svc Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/contacts/{id}/emails", NewContactHandler(svc, log))
	mux.Handle("POST /api/schedule/batch", NewBatchHandler(svc, log))
	mux.Handle("GET /api/schedules", NewHistoryHandler(svc))
	mux.Handle("GET /api/runs/{run_id}/load", NewLoadHandler(svc, log))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// WindowResponse is the exclusion window of a contact.
type WindowResponse struct {
	Start          string          `json:"start"`
	End            string          `json:"end"`
	AssociatedType model.EmailType `json:"associatedType"`
}

// ContactResponse is the schedule of a single contact.
type ContactResponse struct {
	ContactID  int64                   `json:"contactId"`
	Date       string                  `json:"date"`
	State      string                  `json:"state"`
	Rule       string                  `json:"rule"`
	Window     *WindowResponse         `json:"window,omitempty"`
	Emails     []model.Email           `json:"emails"`
	Suppressed []scheduler.Suppression `json:"suppressed,omitempty"`
	Skipped    scheduler.SkipReason    `json:"skipped,omitempty"`
}

// NewContactHandler computes the emails of one stored contact.
func NewContactHandler(svc Service, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid contact id", http.StatusBadRequest)
			return
		}
		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, plan, err := svc.ComputeContact(r.Context(), id, date)
		switch {
		case errors.Is(err, store.ErrContactNotFound):
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		case err != nil:
			log.Errorf("compute contact %d: %v", id, err)
			http.Error(w, "schedule computation failed", http.StatusInternalServerError)
			return
		}
		resp := ContactResponse{
			ContactID:  id,
			Date:       plan.Date.Format(model.DateLayout),
			State:      c.StateCode(),
			Rule:       plan.Rule.Kind.String(),
			Emails:     plan.Emails,
			Suppressed: plan.Suppressed,
			Skipped:    plan.Skipped,
		}
		if resp.Emails == nil {
			resp.Emails = []model.Email{}
		}
		if plan.HasWindow {
			resp.Window = &WindowResponse{
				Start:          plan.Window.Start.Format(model.DateLayout),
				End:            plan.Window.End.Format(model.DateLayout),
				AssociatedType: plan.Window.AssociatedType,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// BatchRequest selects the contacts of a batch: either inline contacts or a
// page of the contact store.
type BatchRequest struct {
	Date     string          `json:"date"`
	Contacts []model.Contact `json:"contacts"`
	Offset   int             `json:"offset"`
	Limit    int             `json:"limit"`
}

// FailureResponse describes one contact that could not be scheduled.
type FailureResponse struct {
	Index     int    `json:"index"`
	ContactID int64  `json:"contact_id"`
	Error     string `json:"error"`
}

// BatchResponse is the index-aligned outcome of a batch.
type BatchResponse struct {
	RunID        string                      `json:"run_id"`
	Emails       [][]model.Email             `json:"emails"`
	Failures     []FailureResponse           `json:"failures"`
	Distribution [scheduler.AEPWeekCount]int `json:"aep_distribution"`
}

// NewBatchHandler schedules a batch of contacts.
func NewBatchHandler(svc Service, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var res scheduler.BatchResult
		if req.Contacts != nil {
			res, err = svc.ComputeBatch(r.Context(), req.Contacts, date)
		} else {
			if req.Limit <= 0 || req.Offset < 0 {
				http.Error(w, "contacts or a positive limit is required", http.StatusBadRequest)
				return
			}
			res, err = svc.ComputePage(r.Context(), req.Offset, req.Limit, date)
		}
		if err != nil && !errors.Is(err, scheduler.ErrBatchFailed) {
			log.Errorf("batch: %v", err)
			http.Error(w, "batch computation failed", http.StatusInternalServerError)
			return
		}
		resp := BatchResponse{
			RunID:        res.RunID,
			Emails:       res.Emails,
			Failures:     make([]FailureResponse, 0, len(res.Failures)),
			Distribution: res.Distribution,
		}
		if resp.Emails == nil {
			resp.Emails = [][]model.Email{}
		}
		for _, f := range res.Failures {
			resp.Failures = append(resp.Failures, FailureResponse{Index: f.Index, ContactID: f.ContactID, Error: f.Err.Error()})
		}
		status := http.StatusOK
		if err != nil {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, resp)
	})
}

// NewHistoryHandler returns stored schedules via GET /api/schedules.
// Filters: run_id, contact_id, email_type, start and end (RFC 3339).
func NewHistoryHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := store.ScheduleQuery{RunID: r.URL.Query().Get("run_id")}
		for _, f := range []struct {
			name string
			dst  *time.Time
		}{{"start", &q.Start}, {"end", &q.End}} {
			s := r.URL.Query().Get(f.name)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid "+f.name+": want RFC 3339", http.StatusBadRequest)
				return
			}
			*f.dst = t
		}
		if s := r.URL.Query().Get("contact_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, "invalid contact_id", http.StatusBadRequest)
				return
			}
			q.ContactID = id
		}
		if s := r.URL.Query().Get("email_type"); s != "" {
			t, err := model.ParseEmailType(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			q.EmailType = t
		}
		records, err := svc.History(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []store.ScheduleRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}

// LoadResponse is the number of emails of one type per scheduled date.
type LoadResponse struct {
	RunID     string          `json:"run_id"`
	EmailType model.EmailType `json:"email_type"`
	Dates     map[string]int  `json:"dates"`
}

// NewLoadHandler reports how a stored run spread one email type over dates.
// email_type defaults to AEP.
func NewLoadHandler(svc Service, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("run_id")
		typ := model.EmailAEP
		if s := r.URL.Query().Get("email_type"); s != "" {
			t, err := model.ParseEmailType(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			typ = t
		}
		dates, err := svc.EmailLoad(r.Context(), runID, typ)
		if err != nil {
			log.Errorf("load of run %s: %v", runID, err)
			http.Error(w, "load query failed", http.StatusInternalServerError)
			return
		}
		if dates == nil {
			dates = map[string]int{}
		}
		writeJSON(w, http.StatusOK, LoadResponse{RunID: runID, EmailType: typ, Dates: dates})
	})
}

// parseDate reads a YYYY-MM-DD reference date. Empty yields the zero time,
// which the service resolves against its own clock.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
