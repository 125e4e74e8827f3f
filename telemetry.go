package audityzer

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/zero-day-ai/audityzer"

// instruments holds the metric instruments, created once per manager.
type instruments struct {
	submitted     metric.Int64Counter
	finished      metric.Int64Counter
	notifications metric.Int64Counter
	duration      metric.Float64Histogram
}

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	var (
		ins instruments
		err error
	)
	ins.submitted, err = meter.Int64Counter(
		"audityzer.scans.submitted",
		metric.WithDescription("Number of scans submitted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create submitted counter: %w", err)
	}

	ins.finished, err = meter.Int64Counter(
		"audityzer.scans.finished",
		metric.WithDescription("Number of scans that reached a terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create finished counter: %w", err)
	}

	ins.notifications, err = meter.Int64Counter(
		"audityzer.notifications",
		metric.WithDescription("Number of ticket notifications attempted"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notifications counter: %w", err)
	}

	ins.duration, err = meter.Float64Histogram(
		"audityzer.analysis.duration",
		metric.WithDescription("Analysis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &ins, nil
}
