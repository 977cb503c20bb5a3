package redis

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmdash/internal/platform/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("connects and applies pool settings", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", PoolSize: 7}, nil)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 7, client.Options().PoolSize)
		require.NoError(t, client.Ping(ctx).Err())
	})

	t.Run("unreachable server is not fatal", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		var logs bytes.Buffer
		client, err := New(ctx, config.RedisConfig{URL: "redis://" + addr}, slog.New(slog.NewTextHandler(&logs, nil)))
		require.NoError(t, err)
		defer client.Close()
		assert.Contains(t, logs.String(), "redis not reachable at startup")
	})

	t.Run("bad url is rejected", func(t *testing.T) {
		_, err := New(ctx, config.RedisConfig{URL: "not a url"}, nil)
		require.Error(t, err)
	})
}
