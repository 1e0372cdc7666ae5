// Package cache 缓存层内存实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// MemoryCache - 进程内 Cache 实现（单机部署 / 测试）
// ============================================================================

// MemoryCache 基于内存 map 的固定窗口计数器
//
// 窗口状态不跨进程共享，多实例部署请使用 Redis 实现。
type MemoryCache struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	count   int64
	expires time.Time
}

// NewMemoryCache 创建 MemoryCache 实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{windows: make(map[string]*memoryWindow)}
}

// Incr 对 key 的当前窗口计数 +1
func (c *MemoryCache) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || now.After(w.expires) {
		w = &memoryWindow{expires: now.Add(window)}
		c.windows[key] = w
	}
	w.count++

	// 顺带清理过期窗口，避免 map 无限增长
	if len(c.windows) > 4096 {
		for k, v := range c.windows {
			if now.After(v.expires) {
				delete(c.windows, k)
			}
		}
	}

	return w.count, w.expires.Sub(now), nil
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

// 确保实现了 Cache 接口
var _ Cache = (*MemoryCache)(nil)
