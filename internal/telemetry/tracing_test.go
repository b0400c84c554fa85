package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Not parallel: installs global providers.
func TestInitTracerProviderInstallsGlobals(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), Config{SampleRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	require.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.NotEmpty(t, carrier.Get("traceparent"))
}

func TestSampler(t *testing.T) {
	t.Parallel()

	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
