package zaplogger

import (
	"errors"
	"testing"

	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapBindsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := Wrap(zap.New(core), observability.F("component", "test"))

	l.With(observability.F("order_id", int64(7))).Info("use_case_done",
		observability.F("outcome", "success"),
		observability.F("error", errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "use_case_done", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, int64(7), fields["order_id"])
	assert.Equal(t, "success", fields["outcome"])
	assert.Equal(t, "boom", fields["error"])
}

func TestWrapNilIsSafe(t *testing.T) {
	l := Wrap(nil)
	assert.NotPanics(t, func() { l.Warn("nothing") })
}
