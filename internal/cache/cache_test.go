// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemory(0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("etag:pulls", []byte(`W/"abc"`), time.Minute)
	got, ok := c.Get("etag:pulls")
	require.True(t, ok)
	assert.Equal(t, []byte(`W/"abc"`), got)

	c.Delete("etag:pulls")
	_, ok = c.Get("etag:pulls")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory(0)
	c.Set("k", []byte("v"), -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	srv := miniredis.RunT(t)

	c, err := NewRedis(RedisConfig{Addr: srv.Addr()}, zerolog.Nop())
	require.NoError(t, err)

	c.Set("etag:pulls", []byte(`W/"abc"`), time.Minute)
	got, ok := c.Get("etag:pulls")
	require.True(t, ok)
	assert.Equal(t, []byte(`W/"abc"`), got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("etag:pulls")
	_, ok = c.Get("etag:pulls")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	assert.Error(t, err)
}
