package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "prod")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger("loud", "dev")
	assert.Error(t, err)
}

func TestWithOperation(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithOperation(zap.New(core), "preprocess", "req-1").Info("hello")
	WithOperation(zap.New(core), "save", "").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "preprocess", entries[0].ContextMap()["operation"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	_, hasID := entries[1].ContextMap()["request_id"]
	assert.False(t, hasID)
}

func TestOperationError(t *testing.T) {
	base := errors.New("boom")

	err := NewOperationError(StageInference, "abc", base)
	assert.EqualError(t, err, "inference [abc]: boom")
	assert.ErrorIs(t, err, base)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, StageInference, opErr.Operation)
	assert.Equal(t, "boom", opErr.Cause())

	assert.EqualError(t, NewOperationError(StageSave, "", base), "save: boom")
	assert.NoError(t, NewOperationError(StageSave, "abc", nil))
	assert.Empty(t, (*OperationError)(nil).Cause())
}
