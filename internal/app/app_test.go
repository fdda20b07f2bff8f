package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"payments/internal/config"
)

func TestKeyFamily(t *testing.T) {
	testCases := []struct {
		args []interface{}
		want string
	}{
		{[]interface{}{"set", "lock:ledger:order-1", "1"}, "lock"},
		{[]interface{}{"hgetall", "cache:ledger:order-1"}, "cache"},
		{[]interface{}{"get", "idempotency:/v1/reservations:key-1"}, "idempotency"},
		{[]interface{}{"ping"}, ""},
		{[]interface{}{"expire", 42}, ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, keyFamily(tc.args), "%v", tc.args)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	dev, err := NewLogger(config.LogConfig{Development: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewStorage_Bolt(t *testing.T) {
	cfg := config.Load()
	cfg.Storage.Driver = "bolt"
	cfg.Storage.BoltPath = filepath.Join(t.TempDir(), "payments.db")

	storage, err := NewStorage(context.Background(), cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	events, err := storage.Events.FindByReferenceID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	instruments, err := storage.Instruments.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, instruments)
}

func TestNewStorage_UnknownDriver(t *testing.T) {
	cfg := config.Load()
	cfg.Storage.Driver = "sqlite"

	_, err := NewStorage(context.Background(), cfg, nil, zap.NewNop())
	assert.ErrorContains(t, err, "unknown storage driver")
}
