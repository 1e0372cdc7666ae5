// Package stats 聚合统计与公共告警
//
// 统计口径由 scope 参数决定：me（默认，当前用户）或
// global（仅管理员）。聚合全部下推到存储引擎执行。
package stats

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// Store 统计只读接口（handler 需要的子集）
type Store interface {
	SubmissionStats(ctx context.Context, filter storage.StatsFilter) (*storage.SubmissionStats, error)
	MonthlySubmissionCounts(ctx context.Context, userID string, months int) ([]storage.MonthCount, error)
	TopFlagCategories(ctx context.Context, userID string, k int) ([]storage.FlagCount, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]*model.Submission, error)
}

// Handler 统计 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建统计处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册统计相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stats", h.Overview)
	mux.HandleFunc("GET /api/v1/stats/monthly", h.Monthly)
	mux.HandleFunc("GET /api/v1/stats/flags", h.TopFlags)
	mux.HandleFunc("GET /api/v1/alerts", h.Alerts)
}

// defaultMonths 月度趋势默认回看的月份数
const defaultMonths = 12

// resolveScope 解析 scope 参数并做权限检查
//
// 返回聚合的目标用户 ID：scope=me 时为当前用户，scope=global
// （仅管理员）时为空串（不限所有者）。
func resolveScope(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}

	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "me":
		return user.ID, true
	case "global":
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return "", false
		}
		return "", true
	default:
		writeError(w, http.StatusBadRequest, "scope must be 'me' or 'global'")
		return "", false
	}
}

// Overview 提交总体统计：总数、平均概率、风险/状态分布
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveScope(w, r)
	if !ok {
		return
	}

	filter := storage.StatsFilter{UserID: userID}
	var err error
	if filter.From, err = parseDate(r.URL.Query().Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "from must be a date in YYYY-MM-DD format")
		return
	}
	if filter.To, err = parseDate(r.URL.Query().Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "to must be a date in YYYY-MM-DD format")
		return
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	stats, err := h.store.SubmissionStats(r.Context(), filter)
	if err != nil {
		log.Printf("[stats] SubmissionStats error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Monthly 按月提交趋势，新月份在前
func (h *Handler) Monthly(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveScope(w, r)
	if !ok {
		return
	}

	months := parseBoundedInt(r.URL.Query().Get("months"), defaultMonths, 36)
	counts, err := h.store.MonthlySubmissionCounts(r.Context(), userID, months)
	if err != nil {
		log.Printf("[stats] MonthlySubmissionCounts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute monthly stats")
		return
	}
	if counts == nil {
		counts = []storage.MonthCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// TopFlags 最常触发的警告标记类别
func (h *Handler) TopFlags(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveScope(w, r)
	if !ok {
		return
	}

	k := parseBoundedInt(r.URL.Query().Get("limit"), 5, 20)
	flags, err := h.store.TopFlagCategories(r.Context(), userID, k)
	if err != nil {
		log.Printf("[stats] TopFlagCategories error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute flag stats")
		return
	}
	if flags == nil {
		flags = []storage.FlagCount{}
	}
	writeJSON(w, http.StatusOK, flags)
}

// Alerts 近期中高风险告警（公开端点，匿名投影）
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := parseBoundedInt(r.URL.Query().Get("limit"), 10, 50)

	subs, err := h.store.ListRecentAlerts(r.Context(), limit)
	if err != nil {
		log.Printf("[stats] ListRecentAlerts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	alerts := make([]model.PublicAlert, 0, len(subs))
	for _, sub := range subs {
		alerts = append(alerts, sub.ToPublicAlert())
	}
	writeJSON(w, http.StatusOK, alerts)
}

// parseDate 解析 YYYY-MM-DD，空串返回零值
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

// parseBoundedInt 解析 [1, max] 内的整数，非法输入取默认值
func parseBoundedInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
