package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalMissCache 基于 ristretto 的 L1 负缓存：只记"这个短码查过了，不存在"。
//
// 为什么只缓存"不存在"而不缓存链接本身：
// 解析短码必须在数据库里原子地 +1 使用计数，正向缓存会绕过计数，
// 直接破坏 max_uses 的上限语义；"不存在"则没有计数副作用，可以安全短缓存。
type LocalMissCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalMissCache 创建本地负缓存。
// maxItems: 最大条目数；TTL 固定较短，保证新建的短码尽快可见。
func NewLocalMissCache(maxItems int64) (*LocalMissCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalMissCache{
		cache: c,
		ttl:   10 * time.Second,
	}, nil
}

func (l *LocalMissCache) MarkMissing(id string) {
	// cost=1 按条目数限制
	l.cache.SetWithTTL(id, struct{}{}, 1, l.ttl)
}

func (l *LocalMissCache) IsMissing(id string) bool {
	_, ok := l.cache.Get(id)
	return ok
}

func (l *LocalMissCache) Forget(id string) {
	l.cache.Del(id)
}

// Wait 等待异步写入对 Get 可见（测试用）。
func (l *LocalMissCache) Wait() {
	l.cache.Wait()
}

func (l *LocalMissCache) Close() {
	l.cache.Close()
}
