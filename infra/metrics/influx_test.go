package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *bodyRecorder) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func newTestSink(t *testing.T) (*InfluxSink, *bodyRecorder) {
	t.Helper()
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	t.Cleanup(sink.Close)
	return sink, rec
}

func TestInfluxSink_RecordSchedule(t *testing.T) {
	sink, rec := newTestSink(t)
	now := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	res := coremetrics.ScheduleResult{
		RunID:     "r1",
		ContactID: 7,
		State:     "TX",
		Rule:      "none",
		Emails: []model.Email{{
			ContactID:   7,
			Type:        model.EmailCarrierUpdate,
			ScheduledAt: model.Date(2025, time.January, 31),
		}},
		Suppressions: []coremetrics.Suppression{{EmailType: model.EmailBirthday, Reason: "exclusion_window"}},
		Time:         now,
	}
	require.NoError(t, sink.RecordSchedule([]coremetrics.ScheduleResult{res}))

	email := write.NewPointWithMeasurement("email_scheduled").
		AddTag("contact_id", "7").
		AddTag("email_type", "CarrierUpdate").
		AddTag("run_id", "r1").
		AddField("scheduled_at", "2025-01-31").
		SetTime(now)
	summary := write.NewPointWithMeasurement("contact_schedule").
		AddTag("contact_id", "7").
		AddTag("state", "TX").
		AddTag("rule", "none").
		AddTag("run_id", "r1").
		AddField("emails", 1).
		AddField("suppressed", 1).
		SetTime(now)
	assert.Equal(t, []string{line(email), line(summary)}, rec.all())
}

func TestInfluxSink_RecordBatch(t *testing.T) {
	sink, rec := newTestSink(t)
	now := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	ev := coremetrics.BatchEvent{
		RunID:        "r1",
		Contacts:     5,
		Failed:       1,
		Emails:       12,
		Distribution: [4]int{2, 1, 1, 0},
		Spread:       0.70710678,
		Duration:     1500 * time.Millisecond,
		Time:         now,
	}
	require.NoError(t, sink.RecordBatch(ev))
	p := write.NewPointWithMeasurement("batch_completed").
		AddTag("run_id", "r1").
		AddField("contacts", 5).
		AddField("failed", 1).
		AddField("emails", 12).
		AddField("spread", 0.707).
		AddField("duration_ms", 1500.0).
		AddField("aep_week_0", 2).
		AddField("aep_week_1", 1).
		AddField("aep_week_2", 1).
		AddField("aep_week_3", 0).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.all())
}

func TestInfluxSink_RecordFailure(t *testing.T) {
	sink, rec := newTestSink(t)
	now := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, sink.RecordFailure(coremetrics.FailureEvent{RunID: "r1", ContactID: 3, Error: "boom", Time: now}))
	p := write.NewPointWithMeasurement("contact_failed").
		AddTag("run_id", "r1").
		AddTag("contact_id", "3").
		AddField("error", "boom").
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.all())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
