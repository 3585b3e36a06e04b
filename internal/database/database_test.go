package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/config"
)

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("disabled", func(t *testing.T) {
		assert.Nil(t, OpenRedis(ctx, config.RedisConfig{Enabled: false}, logger))
	})

	t.Run("reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := OpenRedis(ctx, config.RedisConfig{Enabled: true, Host: mr.Host(), Port: mr.Port()}, logger)
		require.NotNil(t, client)
		defer client.Close()
		assert.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		host, port := mr.Host(), mr.Port()
		mr.Close()
		assert.Nil(t, OpenRedis(ctx, config.RedisConfig{Enabled: true, Host: host, Port: port}, logger))
	})
}
