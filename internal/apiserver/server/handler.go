package server

import (
	"net/http"

	"jobshield/internal/apiserver/admin"
	"jobshield/internal/apiserver/auth"
	"jobshield/internal/apiserver/ratelimit"
	"jobshield/internal/apiserver/stats"
	"jobshield/internal/apiserver/submission"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET  /health  - 服务健康检查
//   - GET  /metrics - Prometheus 指标
//
// 认证 (Auth):
//   - POST   /api/v1/auth/register        - 注册
//   - POST   /api/v1/auth/login           - 登录
//   - POST   /api/v1/auth/refresh         - 刷新令牌
//   - POST   /api/v1/auth/external        - 外部身份登录
//   - POST   /api/v1/auth/password/forgot - 发起密码重置
//   - POST   /api/v1/auth/password/reset  - 完成密码重置
//   - GET    /api/v1/auth/me              - 当前用户
//   - PUT    /api/v1/auth/profile         - 更新资料
//   - PUT    /api/v1/auth/password        - 修改密码
//   - DELETE /api/v1/auth/account         - 删除账户（软删除）
//
// 提交 (Submission):
//   - POST   /api/v1/submissions              - 提交职位（JSON）
//   - POST   /api/v1/submissions/upload       - 提交职位（文件上传）
//   - GET    /api/v1/submissions              - 列出自己的提交
//   - GET    /api/v1/submissions/{id}         - 提交详情
//   - POST   /api/v1/submissions/{id}/report  - 举报提交
//   - DELETE /api/v1/submissions/{id}         - 删除提交
//
// 统计 (Stats):
//   - GET /api/v1/stats         - 总体统计（scope=me|global）
//   - GET /api/v1/stats/monthly - 月度趋势
//   - GET /api/v1/stats/flags   - 高频警告标记
//   - GET /api/v1/alerts        - 公共告警（匿名可访问）
//
// 管理端 (Admin):
//   - GET    /api/v1/admin/users            - 用户列表
//   - PATCH  /api/v1/admin/users/{id}       - 启用/停用用户
//   - GET    /api/v1/admin/submissions      - 全量提交列表
//   - DELETE /api/v1/admin/submissions/{id} - 删除任意提交
//   - GET    /api/v1/admin/dashboard        - 运营仪表盘
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 接口
	authHandler := auth.NewHandler(h.store, h.authConfig, h.mailer, nil)
	authHandler.RegisterRoutes(mux)

	// Submission 接口
	subHandler := submission.NewHandler(h.store, h.files, h.uploadConfig)
	subHandler.RegisterRoutes(mux)

	// Stats 接口
	statsHandler := stats.NewHandler(h.store)
	statsHandler.RegisterRoutes(mux)

	// Admin 接口（内部已套 AdminOnly）
	adminHandler := admin.NewHandler(h.store, h.files)
	adminHandler.RegisterRoutes(mux)

	// 中间件链：限流最内层（在认证之后，能拿到账户维度的 key）
	limited := ratelimit.Middleware(h.cache, h.rateConfig)(mux)

	// 认证中间件
	authed := auth.Middleware(h.authConfig)(limited)

	// 指标中间件
	measured := h.metrics.MetricsMiddleware(authed)

	// CORS 中间件
	return corsMiddleware(measured)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
