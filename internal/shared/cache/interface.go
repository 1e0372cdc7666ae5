// Package cache 缓存层抽象接口
//
// 提供限流计数等临时状态的存取能力，生产环境由 Redis 实现，
// 单机部署和测试使用内存实现。
package cache

import (
	"context"
	"time"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// RateCounter 固定窗口限流计数器接口
//
// Incr 对给定 key 的当前窗口计数 +1 并返回新值和窗口剩余时间。
// 同一 key 在窗口过期后计数归零。
type RateCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	RateCounter
	Close() error
}
