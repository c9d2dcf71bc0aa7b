package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptionKeyNormalisesName(t *testing.T) {
	assert.Equal(t, "nexuspos:describe:leather jacket", DescriptionKey("  Leather   JACKET "))
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c DescriptionCache = NoopDescriptionCache{}
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDescriptionCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("NEXUSPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NEXUSPOS_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	c := NewRedisDescriptionCache(addr, "", 0)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := DescriptionKey("integration " + time.Now().Format(time.RFC3339Nano))
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, "Crisp and bright.", time.Minute))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Crisp and bright.", got)
}
