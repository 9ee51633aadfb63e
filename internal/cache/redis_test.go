// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis starts an in-process Redis server and a cache wired to it.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := &Redis{
		client: client,
		logger: zerolog.Nop(),
	}
	return mr, cache
}

func TestRedis_SetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()
	defer cache.Close()

	cache.Set("https://a/viewer.css", []byte("body {}"), 5*time.Minute)

	val, ok := cache.Get("https://a/viewer.css")
	require.True(t, ok)
	assert.Equal(t, []byte("body {}"), val)

	_, ok = cache.Get("missing")
	assert.False(t, ok)
}

func TestRedis_BytesRoundTripVerbatim(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()
	defer cache.Close()

	// Asset text with quotes and non-ASCII must come back byte for byte.
	content := []byte(`.page::before { content: "§ \"quoted\""; }`)
	cache.Set("k", content, time.Minute)

	val, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, content, val)
}

func TestRedis_TTLExpiry(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()
	defer cache.Close()

	cache.Set("shortlived", []byte("v"), 50*time.Millisecond)

	_, ok := cache.Get("shortlived")
	require.True(t, ok)

	mr.FastForward(100 * time.Millisecond)

	_, ok = cache.Get("shortlived")
	assert.False(t, ok, "entry should expire after TTL")
}

func TestRedis_DeleteAndClear(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()
	defer cache.Close()

	cache.Set("a", []byte("1"), time.Minute)
	cache.Set("b", []byte("2"), time.Minute)

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Clear()
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestRedis_Stats(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()
	defer cache.Close()

	cache.Set("a", []byte("1"), time.Minute)
	cache.Get("a")
	cache.Get("missing")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.Entries)
}

func TestRedis_HealthCheck(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer cache.Close()

	require.NoError(t, cache.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, cache.HealthCheck(context.Background()))
}

func TestRedis_GetAfterServerGoneIsMiss(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer cache.Close()

	cache.Set("a", []byte("1"), time.Minute)
	mr.Close()

	_, ok := cache.Get("a")
	assert.False(t, ok, "a broken backend degrades to misses, not errors")
}
