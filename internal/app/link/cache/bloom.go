package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// IDFilter 记录"本进程见过的短码"，给短码分配器做快速路径：
// 过滤器说不存在，就一定没被本进程写入过，可以不查数据库直接接受候选码。
//
// 注意过滤器不是权威数据：
// - 进程重启后为空，历史短码不在里面
// - 误判率内会把空闲短码当成"可能占用"
// 两种情况都只是多走一次数据库校验，正确性由存储层的条件写入兜底。
type IDFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewIDFilter 创建布隆过滤器。
// expectedItems: 预期短码数量；falsePositiveRate: 误判率（建议 0.01）
func NewIDFilter(expectedItems uint, falsePositiveRate float64) *IDFilter {
	return &IDFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (f *IDFilter) Add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(id)
}

// MightExist 返回 false 表示短码一定未被本进程持久化过。
func (f *IDFilter) MightExist(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(id)
}

// Count 返回已添加的元素数量（估算）。
func (f *IDFilter) Count() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.ApproximatedSize()
}
