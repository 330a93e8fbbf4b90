package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/enrollmail/core/logger"
	coremetrics "github.com/kilianp07/enrollmail/core/metrics"
	infralogger "github.com/kilianp07/enrollmail/infra/logger"
)

// InfluxConfig holds the connection settings of an InfluxSink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes schedule events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.ScheduleSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSchedule writes one point per scheduled email and one summary point per contact.
func (s *InfluxSink) RecordSchedule(res []coremetrics.ScheduleResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range res {
		id := strconv.FormatInt(r.ContactID, 10)
		for _, e := range r.Emails {
			p := write.NewPointWithMeasurement("email_scheduled").
				AddTag("contact_id", id).
				AddTag("email_type", string(e.Type)).
				AddTag("run_id", r.RunID).
				AddField("scheduled_at", e.ScheduledAt.Format("2006-01-02")).
				SetTime(r.Time)
			if err := s.writeAPI.WritePoint(ctx, p); err != nil {
				return err
			}
		}
		p := write.NewPointWithMeasurement("contact_schedule").
			AddTag("contact_id", id).
			AddTag("state", r.State).
			AddTag("rule", r.Rule).
			AddTag("run_id", r.RunID).
			AddField("emails", len(r.Emails)).
			AddField("suppressed", len(r.Suppressions)).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordBatch writes the summary of a batch run.
func (s *InfluxSink) RecordBatch(ev coremetrics.BatchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("batch_completed").
		AddTag("run_id", ev.RunID).
		AddField("contacts", ev.Contacts).
		AddField("failed", ev.Failed).
		AddField("emails", ev.Emails).
		AddField("spread", round3(ev.Spread)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	for i, n := range ev.Distribution {
		p = p.AddField("aep_week_"+strconv.Itoa(i), n)
	}
	p = p.SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFailure writes a contact failure.
func (s *InfluxSink) RecordFailure(ev coremetrics.FailureEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("contact_failed").
		AddTag("run_id", ev.RunID).
		AddTag("contact_id", strconv.FormatInt(ev.ContactID, 10)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
