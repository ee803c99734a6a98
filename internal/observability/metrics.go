// Package observability provides evolution metrics exported in Prometheus format.
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	attrOutcome = "outcome"
	attrStage   = "stage"
)

// Metrics of evolution runs: traffic, errors per stage, latency and saturation
type Metrics struct {
	RunsTotal      metric.Int64Counter
	RunsActive     metric.Int64UpDownCounter
	StageFailures  metric.Int64Counter
	RunDuration    metric.Float64Histogram
	EnqueuedTotal  metric.Int64Counter
	RevivedOrphans metric.Int64Counter
}

// NewMetrics creates metrics on a dedicated registry and returns handler serving it.
func NewMetrics() (*Metrics, http.Handler, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("imageevolver")
	m := &Metrics{}

	m.RunsTotal, err = meter.Int64Counter(
		"evolution_runs_total",
		metric.WithDescription("Finished evolution runs by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"evolution_runs_active",
		metric.WithDescription("Evolution runs in progress"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StageFailures, err = meter.Int64Counter(
		"evolution_stage_failures_total",
		metric.WithDescription("Failed evolution runs by the stage that failed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunDuration, err = meter.Float64Histogram(
		"evolution_run_duration_seconds",
		metric.WithDescription("Evolution run duration from submit to publish"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 20, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.EnqueuedTotal, err = meter.Int64Counter(
		"evolution_enqueued_total",
		metric.WithDescription("Evolutions accepted and sent to the queue"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RevivedOrphans, err = meter.Int64Counter(
		"evolution_revived_orphans_total",
		metric.WithDescription("Stale queued evolutions sent to the queue again"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) RecordRunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsActive.Add(ctx, 1)
}

// RecordRunFinished - err is nil for published runs, otherwise the stage is taken from *model.OrchestrationError
func (m *Metrics) RecordRunFinished(ctx context.Context, err error, took time.Duration) {
	if m == nil {
		return
	}

	outcome := string(model.RunPublished)
	if err != nil {
		outcome = string(model.RunFailed)
		stage := "unknown"
		var oe *model.OrchestrationError
		if errors.As(err, &oe) {
			stage = string(oe.Stage)
		}
		m.StageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStage, stage)))
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.RunsTotal.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, took.Seconds(), attrs)
	m.RunsActive.Add(ctx, -1)
}

// RecordRunAborted - run interrupted by shutdown, it will be retried later
func (m *Metrics) RecordRunAborted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsActive.Add(ctx, -1)
}

func (m *Metrics) RecordEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.EnqueuedTotal.Add(ctx, 1)
}

func (m *Metrics) RecordRevived(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RevivedOrphans.Add(ctx, int64(n))
}
