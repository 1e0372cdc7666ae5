// Package server 路由配置与核心基础设施
//
// 本包将请求分发到各领域独立包，并承载跨领域的中间件链：
// CORS → 指标 → 认证 → 限流 → 业务路由。
//
// 文件组织：
//   - common.go: Handler 定义与健康检查
//   - handler.go: 路由配置与 CORS
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/apiserver/ratelimit"
	"jobshield/internal/apiserver/submission"
	"jobshield/internal/shared/cache"
	"jobshield/internal/shared/mail"
	"jobshield/internal/shared/storage"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的领域包
//   - 管理存储层 / 缓存 / 对象存储连接
//   - 组装中间件链
type Handler struct {
	store  storage.PersistentStore // 持久化业务数据
	cache  cache.Cache             // 限流计数（Redis 或进程内）
	files  submission.FileStore    // 上传文件的对象存储，可为 nil
	mailer mail.Sender             // 密码重置邮件

	authConfig   auth.Config
	rateConfig   ratelimit.Config
	uploadConfig submission.UploadConfig

	metrics *Metrics

	startedAt time.Time
}

// NewHandler 创建 Handler 实例
func NewHandler(store storage.PersistentStore, rateCache cache.Cache, files submission.FileStore, mailer mail.Sender,
	authCfg auth.Config, rateCfg ratelimit.Config, uploadCfg submission.UploadConfig) *Handler {
	if mailer == nil {
		mailer = mail.NewNoOpSender()
	}
	return &Handler{
		store:        store,
		cache:        rateCache,
		files:        files,
		mailer:       mailer,
		authConfig:   authCfg,
		rateConfig:   rateCfg,
		uploadConfig: uploadCfg,
		metrics:      defaultMetrics,
		startedAt:    time.Now(),
	}
}

// Health 服务健康检查
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}
