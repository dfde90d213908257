package dispatch_test

import (
	"context"
	"testing"

	"sentinal-media/config"
	"sentinal-media/internal/dispatch"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownDriver(t *testing.T) {
	_, err := dispatch.New(config.DispatchConfig{Driver: "carrier-pigeon"}, nil, nil)
	assert.Error(t, err)
}

func TestNew_RedisDriverRequiresClient(t *testing.T) {
	_, err := dispatch.New(config.DispatchConfig{Driver: dispatch.DriverRedis}, nil, nil)
	assert.Error(t, err)
}

func TestRedisDispatcher_PublishWithoutSubscriberIsDurable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	d, err := dispatch.New(config.DispatchConfig{Driver: dispatch.DriverRedis}, client, nil)
	require.NoError(t, err)

	require.NoError(t, d.Publish(ctx, "media.exchange", "media.video.process", []byte(`{"file_id":9}`)))

	n, err := client.XLen(ctx, "media.exchange:media.video.process").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := client.XRange(ctx, "media.exchange:media.video.process", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"file_id":9}`, entries[0].Values["payload"].(string))
}
