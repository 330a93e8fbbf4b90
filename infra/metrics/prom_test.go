package metrics

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/test/util"
)

func TestPromSink_RecordSchedule(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	res := []coremetrics.ScheduleResult{
		{State: "TX", Rule: "none", Emails: []model.Email{
			{Type: model.EmailCarrierUpdate, ScheduledAt: model.Date(2025, time.January, 31)},
			{Type: model.EmailAEP, ScheduledAt: model.Date(2025, time.August, 18)},
		}},
		{State: "CT", Rule: "year_round"},
		{State: "OR", Rule: "birthday", Suppressions: []coremetrics.Suppression{
			{EmailType: model.EmailAEP, Reason: "exclusion_window"},
			{EmailType: model.EmailBirthday, Reason: "exclusion_window"},
		}},
	}
	require.NoError(t, sink.RecordSchedule(res))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.contacts.WithLabelValues("TX", "none", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.contacts.WithLabelValues("CT", "year_round", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.emails.WithLabelValues("AEP", "2025-08")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.suppressed.WithLabelValues("AEP", "exclusion_window")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.suppressed.WithLabelValues("Birthday", "exclusion_window")))
}

func TestPromSink_BatchAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	now := time.Unix(1735689600, 0)
	require.NoError(t, sink.RecordBatch(coremetrics.BatchEvent{
		Time:         now,
		Duration:     time.Second,
		Distribution: [4]int{2, 1, 1, 0},
		Spread:       0.7,
	}))
	require.NoError(t, sink.RecordFailure(coremetrics.FailureEvent{ContactID: 1}))

	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(sink.lastRun))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.failures))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.duration))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.aepLoad.WithLabelValues("1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.aepLoad.WithLabelValues("4")))
	assert.Equal(t, 0.7, testutil.ToFloat64(sink.aepSpread))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, second.RecordFailure(coremetrics.FailureEvent{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.failures))
}

func TestStartPromServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordFailure(coremetrics.FailureEvent{}))

	ctx, cancel := context.WithCancel(context.Background())
	errc, err := StartPromServerWithGatherer(ctx, addr, reg)
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer waitCancel()
	require.NoError(t, util.WaitForMetric(waitCtx, fmt.Sprintf("http://%s/metrics", addr), "enrollmail_recorded_failures_total 1"))

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStartPromServer_Disabled(t *testing.T) {
	errc, err := StartPromServer(context.Background(), "")
	require.NoError(t, err)
	_, open := <-errc
	assert.False(t, open)
}
