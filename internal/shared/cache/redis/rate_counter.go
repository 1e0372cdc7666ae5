package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ============================================================================
// 固定窗口限流计数
// ============================================================================

const rateKeyPrefix = "ratelimit:"

// Incr 对 key 的当前窗口计数 +1，首次计数时设置窗口过期时间
//
// INCR 和 EXPIRE 在同一个 pipeline 中执行，EXPIRE 使用 NX 语义
// 保证窗口只在首次计数时启动，不会被后续请求顺延。
func (s *Store) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := rateKeyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("rate counter incr %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
