// Package ratelimit 按端点类别的固定窗口限流
//
// 计数 key 优先使用认证账户 ID，匿名请求退化为客户端 IP。
// 计数器后端由 cache.RateCounter 提供（Redis 或进程内存）。
package ratelimit

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/shared/cache"
)

// Rule 单类端点的窗口配额
type Rule struct {
	Limit  int64         `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Config 各端点类别的限流配置
type Config struct {
	Auth       Rule `yaml:"auth"`       // 登录/注册/刷新
	Submission Rule `yaml:"submission"` // 提交创建
	Upload     Rule `yaml:"upload"`     // 文件上传
	Forgot     Rule `yaml:"forgot"`     // 密码重置发起
	Default    Rule `yaml:"default"`    // 其余 API
}

// DefaultConfig 返回默认限流配置
func DefaultConfig() Config {
	return Config{
		Auth:       Rule{Limit: 5, Window: 15 * time.Minute},
		Submission: Rule{Limit: 20, Window: time.Hour},
		Upload:     Rule{Limit: 10, Window: time.Hour},
		Forgot:     Rule{Limit: 3, Window: time.Hour},
		Default:    Rule{Limit: 100, Window: 15 * time.Minute},
	}
}

// classify 将请求归入限流类别
func classify(cfg Config, method, path string) (string, Rule) {
	switch {
	case path == "/api/v1/auth/password/forgot":
		return "forgot", cfg.Forgot
	case path == "/api/v1/auth/login",
		path == "/api/v1/auth/register",
		path == "/api/v1/auth/refresh",
		path == "/api/v1/auth/external":
		return "auth", cfg.Auth
	case method == http.MethodPost && path == "/api/v1/submissions/upload":
		return "upload", cfg.Upload
	case method == http.MethodPost && path == "/api/v1/submissions":
		return "submission", cfg.Submission
	default:
		return "default", cfg.Default
	}
}

// clientKey 计数 key：账户 ID 优先，匿名用客户端 IP
func clientKey(r *http.Request) string {
	if user := auth.GetAuthUser(r.Context()); user != nil {
		return "acct:" + user.ID
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return "ip:" + strings.TrimSpace(fwd[:i])
		}
		return "ip:" + strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware 创建限流中间件，挂在认证中间件之后
func Middleware(counter cache.RateCounter, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 运维端点不限流
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			class, rule := classify(cfg, r.Method, r.URL.Path)
			key := fmt.Sprintf("%s:%s", class, clientKey(r))

			count, ttl, err := counter.Incr(r.Context(), key, rule.Window)
			if err != nil {
				// 计数器故障时放行，不让限流把服务打挂
				log.Printf("[ratelimit] counter error: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > rule.Limit {
				retryAfter := int(ttl.Round(time.Second).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"error":   "rate limit exceeded, retry later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
