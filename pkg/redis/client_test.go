package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/farmlink-backend/pkg/config"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := NewFromClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "fl:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "fl:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "fl:session:access:jti", client.AccessSessionKey("jti"))
	assert.Equal(t, "fl:idempotency:evt", client.IdempotencyKey(" ", "evt"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/3",
		DB:          5,
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB, "db from url wins")
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}

func TestFixedWindowAllowCountsAndExpires(t *testing.T) {
	ctx := context.Background()
	srv, client := newTestClient(t)

	for want := int64(1); want <= 2; want++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, count)
	}
	assert.Equal(t, time.Second, srv.TTL(client.RateLimitKey("test-scope")))

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.EqualValues(t, 3, count)
	assert.Equal(t, time.Second, srv.TTL(client.RateLimitKey("test-scope")), "ttl set once per window")

	_, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, 0)
	assert.Error(t, err)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	srv, client := newTestClient(t)
	require.NoError(t, srv.Set("fl:cron-worker:lock:test", "owner-a"))

	deleted, err := client.CompareAndDelete(ctx, "fl:cron-worker:lock:test", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, srv.Exists("fl:cron-worker:lock:test"))

	deleted, err = client.CompareAndDelete(ctx, "fl:cron-worker:lock:test", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, srv.Exists("fl:cron-worker:lock:test"))

	deleted, err = client.CompareAndDelete(ctx, "fl:cron-worker:lock:test", "owner-a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	_, client := newTestClient(t)
	_, err := client.Get(context.Background(), "fl:missing")
	assert.ErrorIs(t, err, goredis.Nil)
	assert.NoError(t, client.Del(context.Background()))
}
