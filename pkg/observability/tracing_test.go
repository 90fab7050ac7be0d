package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/connpool/pkg/config"
)

func tracingConfig(rate float64) config.TracingConfig {
	return config.TracingConfig{
		Enabled:      true,
		ServiceName:  "connpool-test",
		SamplingRate: rate,
		Environment:  "test",
	}
}

func TestTracing_ExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracing(context.Background(), tracingConfig(1), "1.2.3", &buf, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, span := tr.Provider().Tracer("test").Start(context.Background(), "pool.acquire")
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "pool.acquire")
	assert.Contains(t, out, "connpool-test")
	assert.Contains(t, out, "1.2.3")
}

func TestTracing_NeverSample(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracing(context.Background(), tracingConfig(0), "dev", &buf, nil)
	require.NoError(t, err)

	_, span := tr.Provider().Tracer("test").Start(context.Background(), "pool.acquire")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

func TestTracing_Install(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tr, err := NewTracing(context.Background(), tracingConfig(1), "dev", &bytes.Buffer{}, nil)
	require.NoError(t, err)
	defer tr.Shutdown(context.Background())

	tr.Install()
	assert.Same(t, tr.Provider(), otel.GetTracerProvider())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(-1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
