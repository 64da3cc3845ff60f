package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Must never return nil, even before Initialize runs.
	l := GetLogger()
	require.NotNil(t, l)
}

func TestInitializeIdempotent(t *testing.T) {
	require.NoError(t, Initialize(true, "debug"))
	require.NoError(t, Initialize(false, "error"))
}

func TestAppendContextFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "corr-1")
	ctx = context.WithValue(ctx, UserIDKey, "user-1")
	ctx = context.WithValue(ctx, RoomIDKey, "room-1")
	ctx = context.WithValue(ctx, SessionIDKey, "sess-1")

	fields := appendContextFields(ctx, []zap.Field{zap.String("extra", "x")})

	names := map[string]bool{}
	for _, f := range fields {
		names[f.Key] = true
	}
	assert.True(t, names["correlation_id"])
	assert.True(t, names["user_id"])
	assert.True(t, names["room_id"])
	assert.True(t, names["session_id"])
	assert.True(t, names["service"])
	assert.True(t, names["extra"])
}

func TestAppendContextFieldsNilContext(t *testing.T) {
	fields := appendContextFields(nil, nil)
	assert.Empty(t, fields)
}
