package cleaner

import (
	"context"
	"log/slog"
	"time"

	"shorty.local/internal/platform/metrics"
)

// Store 是清理循环需要的最小存储能力（repo.LinkStore 实现）。
type Store interface {
	Clean(ctx context.Context) (int64, error)
}

// Cleaner 周期性地把过期短链从库里物理删除。
// 过期行留在库里不影响正确性（解析和创建都按谓词过滤），
// 清理只是回收空间、让过期短码尽快可以被重新分配。
type Cleaner struct {
	store    Store
	interval time.Duration
}

func New(store Store, interval time.Duration) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
	}
}

// Run 阻塞运行清理循环，ctx 取消后返回。启动时先清一次。
func (c *Cleaner) Run(ctx context.Context) {
	c.cleanOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanOnce(ctx)
		}
	}
}

func (c *Cleaner) cleanOnce(ctx context.Context) {
	removed, err := c.store.Clean(ctx)
	if err != nil {
		// 单次失败不致命，下个周期再试
		slog.Error("scheduled clean failed", "err", err)
		return
	}
	metrics.LinksCleaned.Add(float64(removed))
}
