// Package infra Redis 基础设施初始化
package infra

import (
	"fmt"
	"log"

	"jobshield/internal/shared/cache"
	cacheredis "jobshield/internal/shared/cache/redis"
)

// NewCache 根据 Redis 配置创建缓存后端
//
// redisURL 为空时回退到进程内存实现，限流窗口不跨实例共享。
func NewCache(redisURL string) (cache.Cache, error) {
	if redisURL == "" {
		log.Printf("[infra] Redis not configured, using in-memory cache")
		return cache.NewMemoryCache(), nil
	}

	store, err := cacheredis.NewStoreFromURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis cache: %w", err)
	}
	return store, nil
}
