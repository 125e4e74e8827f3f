package audityzer

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/audityzer/activity"
	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/scan"
)

// Option configures a Manager.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	now            func() time.Time
	store          *scan.Store
	activity       *activity.Log
	notifier       integration.Notifier
	targets        integration.Source
	maxConcurrent  int
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock sets the time source used for submission and completion times.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithStore uses an existing job store instead of a new one.
func WithStore(s *scan.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithActivityLog sets the log that receives notification events.
func WithActivityLog(l *activity.Log) Option {
	return func(c *config) {
		c.activity = l
	}
}

// WithNotifier sets the ticket notifier. Defaults to an
// integration.LogNotifier on the manager's logger.
func WithNotifier(n integration.Notifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// WithTargets sets the integration targets consulted after each completed
// scan. Defaults to no targets.
func WithTargets(src integration.Source) Option {
	return func(c *config) {
		c.targets = src
	}
}

// WithMaxConcurrent limits how many analyses run at once. Jobs beyond the
// limit wait as Pending and start in submission order. Zero means no limit.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxConcurrent = n
		}
	}
}

// WithTracerProvider enables tracing of analyses and notifications.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider enables scan and notification metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}
