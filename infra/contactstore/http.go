package contactstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/enrollmail/core/logger"
	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/store"
)

// HTTPStore reads contacts from a remote SQLite-compatible database that
// speaks the libSQL HTTP pipeline protocol.
type HTTPStore struct {
	cfg    Config
	client *http.Client
	log    logger.Logger
	policy func() backoff.BackOff
	auth   Authenticator
}

// Authenticator decorates outgoing requests with credentials.
type Authenticator interface {
	SetAuthHeader(r *http.Request) error
}

// NewHTTPStore creates an HTTPStore. A nil client uses one with cfg.Timeout.
func NewHTTPStore(cfg Config, client *http.Client, log logger.Logger) *HTTPStore {
	cfg.SetDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &HTTPStore{
		cfg:    cfg,
		client: client,
		log:    log,
		policy: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// WithAuth makes the store authenticate every request with a instead of the
// static token.
func (s *HTTPStore) WithAuth(a Authenticator) *HTTPStore {
	s.auth = a
	return s
}

type pipelineRequest struct {
	Requests []pipelineStep `json:"requests"`
}

type pipelineStep struct {
	Type string     `json:"type"`
	Stmt *statement `json:"stmt,omitempty"`
}

type statement struct {
	SQL  string  `json:"sql"`
	Args []value `json:"args,omitempty"`
}

type value struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

type pipelineResponse struct {
	Results []struct {
		Type     string `json:"type"`
		Response *struct {
			Type   string `json:"type"`
			Result *struct {
				Cols []struct {
					Name string `json:"name"`
				} `json:"cols"`
				Rows [][]value `json:"rows"`
			} `json:"result"`
		} `json:"response"`
		Error *struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	} `json:"results"`
}

func integer(v int64) value { return value{Type: "integer", Value: strconv.FormatInt(v, 10)} }

func (s *HTTPStore) selectSQL() string {
	c := s.cfg.Columns
	return fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s, %s FROM %s",
		c.ID, c.FirstName, c.LastName, c.Email, c.State, c.BirthDate, c.EffectiveDate, s.cfg.Table)
}

// Fetch returns the contact with the given id or store.ErrContactNotFound.
func (s *HTTPStore) Fetch(ctx context.Context, id int64) (model.Contact, error) {
	rows, err := s.query(ctx, statement{
		SQL:  s.selectSQL() + fmt.Sprintf(" WHERE %s = ? LIMIT 1", s.cfg.Columns.ID),
		Args: []value{integer(id)},
	})
	if err != nil {
		return model.Contact{}, err
	}
	if len(rows) == 0 {
		return model.Contact{}, fmt.Errorf("%w: %d", store.ErrContactNotFound, id)
	}
	return s.contact(rows[0])
}

// FetchPage returns up to limit contacts ordered by id starting at offset.
func (s *HTTPStore) FetchPage(ctx context.Context, offset, limit int) ([]model.Contact, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, statement{
		SQL:  s.selectSQL() + fmt.Sprintf(" ORDER BY %s LIMIT ? OFFSET ?", s.cfg.Columns.ID),
		Args: []value{integer(int64(limit)), integer(int64(offset))},
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Contact, 0, len(rows))
	for _, r := range rows {
		c, err := s.contact(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *HTTPStore) query(ctx context.Context, stmt statement) ([][]value, error) {
	body, err := json.Marshal(pipelineRequest{Requests: []pipelineStep{
		{Type: "execute", Stmt: &stmt},
		{Type: "close"},
	}})
	if err != nil {
		return nil, err
	}
	var resp pipelineResponse
	op := func() error {
		return s.do(ctx, body, &resp)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.policy(), s.cfg.MaxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		s.log.Warnf("contactstore: request failed, retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, errors.New("contactstore: empty pipeline response")
	}
	first := resp.Results[0]
	if first.Type == "error" || first.Error != nil {
		msg := "unknown error"
		if first.Error != nil {
			msg = first.Error.Message
		}
		return nil, fmt.Errorf("contactstore: query failed: %s", msg)
	}
	if first.Response == nil || first.Response.Result == nil {
		return nil, errors.New("contactstore: missing result set")
	}
	return first.Response.Result.Rows, nil
}

func (s *HTTPStore) do(ctx context.Context, body []byte, out *pipelineResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case s.auth != nil:
		if err := s.auth.SetAuthHeader(req); err != nil {
			return err
		}
	case s.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("contactstore: status %d", res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("contactstore: status %d: %s", res.StatusCode, strings.TrimSpace(string(data))))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("contactstore: decode response: %w", err))
	}
	return nil
}

func (s *HTTPStore) contact(row []value) (model.Contact, error) {
	if len(row) < 7 {
		return model.Contact{}, fmt.Errorf("contactstore: expected 7 columns, got %d", len(row))
	}
	id, err := strconv.ParseInt(text(row[0]), 10, 64)
	if err != nil {
		return model.Contact{}, fmt.Errorf("contactstore: bad id %q: %w", text(row[0]), err)
	}
	c := model.Contact{
		ID:        id,
		FirstName: text(row[1]),
		LastName:  text(row[2]),
		Email:     text(row[3]),
		State:     text(row[4]),
	}
	c.BirthDate = s.date(id, "birth", row[5])
	c.EffectiveDate = s.date(id, "effective", row[6])
	return c, nil
}

func (s *HTTPStore) date(id int64, field string, v value) *time.Time {
	raw := text(v)
	if raw == "" {
		return nil
	}
	if len(raw) > len(model.DateLayout) {
		raw = raw[:len(model.DateLayout)]
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		s.log.Warnf("contactstore: contact %d has unreadable %s date %q", id, field, text(v))
		return nil
	}
	return &d
}

func text(v value) string {
	switch x := v.Value.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
