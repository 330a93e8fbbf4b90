package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
)

// PromSink records computed schedules in Prometheus metrics.
type PromSink struct {
	contacts   *prometheus.CounterVec
	emails     *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	failures   prometheus.Counter
	aepLoad    *prometheus.GaugeVec
	aepSpread  prometheus.Gauge
	lastRun    prometheus.Gauge
	duration   prometheus.Histogram
}

// NewPromSink registers schedule metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	contacts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollmail_contacts_processed_total",
		Help: "Contacts processed per state and rule kind",
	}, []string{"state", "rule", "has_emails"})
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollmail_recorded_emails_total",
		Help: "Emails recorded per type and scheduled month",
	}, []string{"email_type", "month"})
	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollmail_emails_suppressed_total",
		Help: "Emails left out of a schedule per type and reason",
	}, []string{"email_type", "reason"})
	aepLoad := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enrollmail_aep_week_load",
		Help: "AEP emails assigned per week in the last batch",
	}, []string{"week"})
	aepSpread := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrollmail_aep_week_spread",
		Help: "Standard deviation of AEP week loads in the last batch",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollmail_recorded_failures_total",
		Help: "Contacts a batch could not schedule",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrollmail_last_batch_timestamp_seconds",
		Help: "Unix time of the last completed batch",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrollmail_recorded_batch_duration_seconds",
		Help:    "Duration of completed batches",
		Buckets: prometheus.DefBuckets,
	})

	var err error
	if contacts, err = register(reg, contacts); err != nil {
		return nil, err
	}
	if emails, err = register(reg, emails); err != nil {
		return nil, err
	}
	if suppressed, err = register(reg, suppressed); err != nil {
		return nil, err
	}
	if failures, err = register(reg, failures); err != nil {
		return nil, err
	}
	if aepLoad, err = register(reg, aepLoad); err != nil {
		return nil, err
	}
	if aepSpread, err = register(reg, aepSpread); err != nil {
		return nil, err
	}
	if lastRun, err = register(reg, lastRun); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &PromSink{
		contacts:   contacts,
		emails:     emails,
		suppressed: suppressed,
		failures:   failures,
		aepLoad:    aepLoad,
		aepSpread:  aepSpread,
		lastRun:    lastRun,
		duration:   duration,
	}, nil
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSchedule counts contacts, their emails and suppressions.
func (s *PromSink) RecordSchedule(res []coremetrics.ScheduleResult) error {
	for _, r := range res {
		s.contacts.WithLabelValues(r.State, r.Rule, strconv.FormatBool(len(r.Emails) > 0)).Inc()
		for _, e := range r.Emails {
			s.emails.WithLabelValues(string(e.Type), e.ScheduledAt.Format("2006-01")).Inc()
		}
		for _, sp := range r.Suppressions {
			s.suppressed.WithLabelValues(string(sp.EmailType), sp.Reason).Inc()
		}
	}
	return nil
}

// RecordBatch stores the AEP week loads, completion time and duration of a batch.
func (s *PromSink) RecordBatch(ev coremetrics.BatchEvent) error {
	for i, n := range ev.Distribution {
		s.aepLoad.WithLabelValues(strconv.Itoa(i + 1)).Set(float64(n))
	}
	s.aepSpread.Set(ev.Spread)
	s.lastRun.Set(float64(ev.Time.Unix()))
	s.duration.Observe(ev.Duration.Seconds())
	return nil
}

// RecordFailure increments the failure counter.
func (s *PromSink) RecordFailure(coremetrics.FailureEvent) error {
	s.failures.Inc()
	return nil
}

// StartPromServer serves the default gatherer on addr until ctx is canceled.
// An empty addr disables the server.
func StartPromServer(ctx context.Context, addr string) (<-chan error, error) {
	return StartPromServerWithGatherer(ctx, addr, prometheus.DefaultGatherer)
}

// StartPromServerWithGatherer serves g on addr under /metrics.
func StartPromServerWithGatherer(ctx context.Context, addr string, g prometheus.Gatherer) (<-chan error, error) {
	errc := make(chan error, 1)
	if addr == "" {
		close(errc)
		return errc, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		defer close(errc)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return errc, nil
}
