package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestDeduper_AcquireOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "feed", "evt-1"))
	assert.False(t, d.AcquireOnce(ctx, "feed", "evt-1"))
	assert.True(t, d.AcquireOnce(ctx, "feed", "evt-2"))
	assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))
}

func TestDeduper_ExpiresAfterTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "feed", "evt-1"))
	mr.FastForward(2 * time.Minute)
	assert.True(t, d.AcquireOnce(ctx, "feed", "evt-1"))
}

func TestDeduper_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	d := NewDeduper(rdb, time.Minute, nil)
	assert.True(t, d.AcquireOnce(context.Background(), "feed", "evt-1"))
	assert.True(t, d.AcquireOnce(context.Background(), "feed", "evt-1"))
}
