package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/enrollmail/api/schedule"
	"github.com/kilianp07/enrollmail/config"
	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	"github.com/kilianp07/enrollmail/core/monitoring"
	coremqtt "github.com/kilianp07/enrollmail/core/mqtt"
	"github.com/kilianp07/enrollmail/core/rules"
	"github.com/kilianp07/enrollmail/core/scheduler"
	"github.com/kilianp07/enrollmail/core/store"
	"github.com/kilianp07/enrollmail/infra/contactstore"
	"github.com/kilianp07/enrollmail/infra/emailstore"
	"github.com/kilianp07/enrollmail/infra/logger"
	"github.com/kilianp07/enrollmail/infra/metrics"
	infmon "github.com/kilianp07/enrollmail/infra/monitoring"
	"github.com/kilianp07/enrollmail/infra/mqtt"
	"github.com/kilianp07/enrollmail/internal/eventbus"
)

// Service wires the scheduling core to its stores, publisher and sinks.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	sched     *scheduler.Scheduler
	batch     *scheduler.Batch
	contacts  store.ContactStore
	output    store.EmailStore
	publisher coremqtt.SchedulePublisher
	sink      coremetrics.ScheduleSink
	monitor   monitoring.Monitor
	bus       eventbus.EventBus
	now       func() time.Time
	closers   []func() error
}

// Option customises a Service, mostly for tests.
type Option func(*Service)

// WithContactStore replaces the configured contact store.
func WithContactStore(s store.ContactStore) Option { return func(svc *Service) { svc.contacts = s } }

// WithEmailStore replaces the configured schedule store.
func WithEmailStore(s store.EmailStore) Option { return func(svc *Service) { svc.output = s } }

// WithPublisher replaces the configured MQTT publisher.
func WithPublisher(p coremqtt.SchedulePublisher) Option {
	return func(svc *Service) { svc.publisher = p }
}

// WithLogger replaces the configured logger.
func WithLogger(l logger.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithMonitor replaces the Sentry monitor.
func WithMonitor(m monitoring.Monitor) Option { return func(svc *Service) { svc.monitor = m } }

// WithSink replaces the configured metrics sinks.
func WithSink(s coremetrics.ScheduleSink) Option { return func(svc *Service) { svc.sink = s } }

// WithClock sets the source of the reference date used when none is given.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	svc := &Service{cfg: cfg, now: time.Now, bus: eventbus.New()}
	for _, o := range opts {
		o(svc)
	}
	if svc.log == nil {
		svc.log = logger.NewWithConfig(cfg.Logging, "service", os.Stderr)
	}
	if err := svc.init(); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) init() error {
	cfg := s.cfg
	if s.monitor == nil {
		mon, err := infmon.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
		s.monitor = mon
	}

	catalog, err := rules.LoadCatalog(cfg.Rules.Path)
	if err != nil {
		return err
	}
	s.log.Infof("rule catalog loaded with %d states", catalog.Len())
	s.sched = scheduler.New(rules.NewWindowCalculator(catalog), s.log)

	if s.sink == nil {
		sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
		if err != nil {
			return fmt.Errorf("metrics sink: %w", err)
		}
		s.sink = sink
	}
	s.batch = scheduler.NewBatch(s.sched, cfg.Scheduler, s.bus, s.sink, s.monitor, s.log)

	if s.contacts == nil {
		cs, err := contactstore.Open(cfg.Store, s.log)
		if err != nil {
			return fmt.Errorf("contact store: %w", err)
		}
		s.contacts = cs
	}
	if s.output == nil {
		out, err := emailstore.Open(cfg.Output)
		if err != nil {
			return fmt.Errorf("schedule store: %w", err)
		}
		s.output = out
		s.closers = append(s.closers, out.Close)
	}
	if s.publisher == nil && cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT, s.log, s.monitor)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.publisher = client
		s.closers = append(s.closers, func() error { client.Disconnect(); return nil })
	}
	return nil
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler { return schedule.NewHandler(s, s.log) }

// Run serves the HTTP API, the metrics endpoint and the recurring batch job
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	var promErr <-chan error
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		errc, err := metrics.StartPromServer(ctx, ":"+port)
		if err != nil {
			return fmt.Errorf("prom server: %w", err)
		}
		promErr = errc
	}

	c := cron.New(cron.WithLogger(cronLogger{s.log}))
	if _, err := c.AddFunc(s.cfg.Scheduler.CronSpec, func() { s.scheduledRun(ctx) }); err != nil {
		return fmt.Errorf("cron spec %q: %w", s.cfg.Scheduler.CronSpec, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	apiErr := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-apiErr:
		return fmt.Errorf("api server: %w", err)
	case err, ok := <-promErr:
		if ok && err != nil {
			return fmt.Errorf("prom server: %w", err)
		}
		<-ctx.Done()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// scheduledRun is the cron job body. Panics are reported and swallowed so
// the next tick still runs.
func (s *Service) scheduledRun(ctx context.Context) {
	defer s.monitor.Recover()
	sum, err := s.RunBatch(ctx, time.Time{})
	if err != nil {
		s.log.Errorf("scheduled batch: %v", err)
		return
	}
	s.log.Infof("scheduled batch %s: %d contacts, %d failed", sum.RunID, sum.Contacts, sum.Failed)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}

type cronLogger struct{ log logger.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debugf("cron: %s %v", msg, kv)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Errorf("cron: %s: %v %v", msg, err, kv)
}
