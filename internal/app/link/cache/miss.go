package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shorty.local/internal/platform/metrics"
)

const missSentinel = "__nil__"

// MissCache 是两级负缓存：L1 本地（ristretto）+ L2 Redis。
// 解析路径上大量请求是乱猜的短码（爬虫、枚举），每个都打到数据库
// 就是缓存穿透；这里用显式哨兵值把"确认不存在"记下来。
//
// 不要用 "" 作哨兵：区分不出"未命中缓存"和"命中了不存在"。
type MissCache struct {
	client *redis.Client
	local  *LocalMissCache
	ttl    time.Duration
}

func NewMissCache(client *redis.Client, local *LocalMissCache) *MissCache {
	return &MissCache{
		client: client,
		local:  local,
		ttl:    30 * time.Second,
	}
}

// IsMissing 返回 true 表示短码最近被确认不存在，可直接按 absent 处理。
func (c *MissCache) IsMissing(ctx context.Context, id string) bool {
	if c.local != nil && c.local.IsMissing(id) {
		metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
		return true
	}

	res, err := c.client.Get(ctx, "miss:"+id).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return false
	}
	if err != nil {
		// Redis 故障时当成未命中，退回数据库
		slog.Warn("miss cache get failed", "err", err)
		return false
	}
	if res != missSentinel {
		return false
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
	// 回填 L1
	if c.local != nil {
		c.local.MarkMissing(id)
	}
	return true
}

// MarkMissing 在确认短码不存在后调用。TTL 较短，跨实例新建的短码
// 最多延迟一个 TTL 可见。
func (c *MissCache) MarkMissing(ctx context.Context, id string) {
	if c.local != nil {
		c.local.MarkMissing(id)
	}
	if err := c.client.Set(ctx, "miss:"+id, missSentinel, c.ttl).Err(); err != nil {
		slog.Warn("miss cache set failed", "err", err)
	}
}

// Forget 在短码被（重新）创建后调用，覆盖掉此前的负缓存。
func (c *MissCache) Forget(ctx context.Context, id string) {
	if c.local != nil {
		c.local.Forget(id)
	}
	if err := c.client.Del(ctx, "miss:"+id).Err(); err != nil {
		slog.Warn("miss cache del failed", "err", err)
	}
}

func (c *MissCache) Close() {
	if c.local != nil {
		c.local.Close()
	}
}
