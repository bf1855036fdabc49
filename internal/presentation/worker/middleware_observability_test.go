package workerpresentation

import (
	"context"
	"testing"

	"github.com/brewtopia/cafepos/internal/infrastructure/observability/zaplogger"
	"github.com/brewtopia/cafepos/internal/observability/logctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithEventContextBindsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zaplogger.Wrap(zap.New(core))

	ctx := WithEventContext(context.Background(), base, nil,
		trace.TraceID{1}, trace.SpanID{2},
		map[string]string{"event_id": "evt-1", "event": "order.paid", "empty": ""},
	)
	logctx.FromOr(ctx, nil).Info("handled")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "evt-1", fields["event_id"])
	assert.Equal(t, "order.paid", fields["event"])
	assert.Equal(t, trace.TraceID{1}.String(), fields["trace_id"])
	assert.NotContains(t, fields, "empty")
}

func TestWithEventContextGeneratesEventID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithEventContext(context.Background(), zaplogger.Wrap(zap.New(core)), nil,
		trace.TraceID{}, trace.SpanID{}, nil)
	logctx.FromOr(ctx, nil).Info("handled")

	fields := logs.All()[0].ContextMap()
	assert.NotEmpty(t, fields["event_id"])
	assert.NotContains(t, fields, "trace_id")
}
