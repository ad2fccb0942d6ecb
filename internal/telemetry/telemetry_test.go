package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProviderTagsService(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := NewProvider("qgraph-test", sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Contains(t, ended[0].Resource().Attributes(), attribute.String("service.name", "qgraph-test"))
}
