package tasteid

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/tasteid/internal/tasteid"

// Recompute outcomes recorded on tasteid.recompute.runs.
const (
	outcomeOK           = "ok"
	outcomeInsufficient = "insufficient_data"
	outcomeConflict     = "conflict"
	outcomeError        = "error"
)

type metrics struct {
	runs       metric.Int64Counter
	duration   metric.Float64Histogram
	coldStarts metric.Int64Counter
}

// newMetrics registers instruments on the global meter provider. Registration
// errors leave no-op instruments in place.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{}

	var err error
	if m.runs, err = meter.Int64Counter("tasteid.recompute.runs",
		metric.WithDescription("Recompute runs by outcome")); err != nil {
		otel.Handle(err)
	}
	if m.duration, err = meter.Float64Histogram("tasteid.recompute.duration",
		metric.WithDescription("Recompute wall time"), metric.WithUnit("s")); err != nil {
		otel.Handle(err)
	}
	if m.coldStarts, err = meter.Int64Counter("tasteid.state.cold_starts",
		metric.WithDescription("Components that discarded corrupt prior state")); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *metrics) recordRun(ctx context.Context, started time.Time, err error) {
	if m.runs != nil {
		m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(started).Seconds())
	}
}

func (m *metrics) recordColdStart(ctx context.Context, component string) {
	if m.coldStarts != nil {
		m.coldStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrInsufficientData):
		return outcomeInsufficient
	case errors.Is(err, ErrConflict):
		return outcomeConflict
	}
	return outcomeError
}
