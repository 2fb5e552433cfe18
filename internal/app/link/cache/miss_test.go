package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestMissCache(t *testing.T) *MissCache {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping test: cannot connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	local, err := NewLocalMissCache(1000)
	if err != nil {
		t.Fatalf("NewLocalMissCache: %v", err)
	}
	mc := NewMissCache(client, local)
	t.Cleanup(mc.Close)
	return mc
}

func TestMissCacheRoundtrip(t *testing.T) {
	mc := newTestMissCache(t)
	ctx := context.Background()
	id := fmt.Sprintf("miss-test-%d", time.Now().UnixNano())

	if mc.IsMissing(ctx, id) {
		t.Error("unknown id reported missing")
	}

	mc.MarkMissing(ctx, id)
	mc.local.Wait()
	if !mc.IsMissing(ctx, id) {
		t.Error("id not missing after MarkMissing")
	}

	mc.Forget(ctx, id)
	mc.local.Wait()
	if mc.IsMissing(ctx, id) {
		t.Error("id still missing after Forget")
	}
}

// L1 清掉后 L2 仍要命中（多实例下别的实例写的负缓存）。
func TestMissCacheL2Fallback(t *testing.T) {
	mc := newTestMissCache(t)
	ctx := context.Background()
	id := fmt.Sprintf("miss-test-%d", time.Now().UnixNano())

	mc.MarkMissing(ctx, id)
	mc.local.Forget(id)
	mc.local.Wait()

	if !mc.IsMissing(ctx, id) {
		t.Error("L2 negative entry not honored after L1 eviction")
	}
}
