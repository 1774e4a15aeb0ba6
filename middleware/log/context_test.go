package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTraceIDContext(t *testing.T) {
	t.Run("adds provided trace ID to context", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "test-trace-123")
		assert.Equal(t, "test-trace-123", GetTraceID(ctx))
	})

	t.Run("generates new trace ID when empty string provided", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "")
		extracted := GetTraceID(ctx)
		assert.NotEmpty(t, extracted)
		assert.Len(t, extracted, 36)
	})

	t.Run("child context can override trace ID", func(t *testing.T) {
		ctx1 := WithTraceID(context.Background(), "trace-1")
		ctx2 := WithTraceID(ctx1, "trace-2")

		assert.Equal(t, "trace-2", GetTraceID(ctx2))
		assert.Equal(t, "trace-1", GetTraceID(ctx1))
	})
}

func TestGetTraceID(t *testing.T) {
	t.Run("returns empty string when no trace ID in context", func(t *testing.T) {
		assert.Empty(t, GetTraceID(context.Background()))
	})

	t.Run("returns empty string when trace ID is wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), TraceIDKey, 12345)
		assert.Empty(t, GetTraceID(ctx))
	})
}

func TestContextFields(t *testing.T) {
	ctx := WithUserID(context.Background(), 9)
	fields := ContextFields(ctx)
	require.Len(t, fields, 1)
	assert.Equal(t, "user_id", fields[0].Key)
	assert.Equal(t, "9", fields[0].String)

	ctx = WithSessionID(WithTraceID(ctx, "t"), "s")
	assert.Len(t, ContextFields(ctx), 3)
}

func TestNewTraceID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTraceID()
		assert.Len(t, id, 36)
		assert.False(t, ids[id], "duplicate ID generated: %s", id)
		ids[id] = true
	}
}
