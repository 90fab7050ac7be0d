package pool

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/logger"
)

const tracerName = "github.com/ajitpratap0/connpool/pkg/pool"

// Option configures a Pool
type Option func(*options)

type options struct {
	name   string
	logger *zap.Logger
	tracer trace.Tracer
}

func defaultOptions() options {
	return options{
		logger: logger.Get(),
		tracer: otel.Tracer(tracerName),
	}
}

// WithLogger sets the logger used for pool lifecycle events
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer used for acquire spans. The global
// OpenTelemetry tracer provider is used by default.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithName overrides the pool name from config.PoolConfig
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
