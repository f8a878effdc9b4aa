package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
)

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int("order_id", 7))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"order_id":7`)
	assert.Contains(t, out, `"service":"storefront"`)
}

func TestSetupTracing_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing(&buf)
	assert.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "checkout.submit")
	span.End()

	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "checkout.submit")
	assert.Contains(t, buf.String(), ServiceName)
}
