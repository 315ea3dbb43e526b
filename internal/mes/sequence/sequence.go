// Package sequence 原子分配流水号
//
// 子批次、组件编号原先靠“先数后插”生成，并发请求会拿到相同序号。
// Allocator.Next 把“取下一个序号”变成存储端的原子操作；floor 传入当前已存在的
// 同级记录数，保证计数器不会落后于历史数据。
package sequence

import (
	"context"
	"sync"
)

// Allocator 流水号分配器
type Allocator interface {
	// Next 返回 max(当前值, floor) + 1 并持久化
	Next(ctx context.Context, key string, floor int64) (int64, error)
}

// MemoryAllocator 进程内分配器，用于测试和单实例部署
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[string]int64)}
}

func (a *MemoryAllocator) Next(_ context.Context, key string, floor int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.counters[key]
	if cur < floor {
		cur = floor
	}
	cur++
	a.counters[key] = cur
	return cur, nil
}

// Key 组合分配键，如 sublot:<parent>
func Key(kind, scope string) string {
	return kind + ":" + scope
}
