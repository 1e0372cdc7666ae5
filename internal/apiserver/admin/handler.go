// Package admin 管理端：用户管理、全量提交管理、运营仪表盘
//
// 所有路由都经过 auth.AdminOnly，非管理员一律 403。
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// Store 管理端存储接口（handler 需要的子集）
type Store interface {
	ListAccounts(ctx context.Context, limit, offset int) ([]*model.Account, int, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error

	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]*model.Submission, int, error)

	SubmissionStats(ctx context.Context, filter storage.StatsFilter) (*storage.SubmissionStats, error)
	MonthlySubmissionCounts(ctx context.Context, userID string, months int) ([]storage.MonthCount, error)
	TopFlagCategories(ctx context.Context, userID string, k int) ([]storage.FlagCount, error)
}

// FileStore 提交附件的对象存储接口
type FileStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Handler 管理端 HTTP 处理器
type Handler struct {
	store Store
	files FileStore
}

// NewHandler 创建管理端处理器
func NewHandler(store Store, files FileStore) *Handler {
	return &Handler{store: store, files: files}
}

// RegisterRoutes 注册管理端路由，全部要求管理员身份
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/users", auth.AdminOnly(h.ListUsers))
	mux.HandleFunc("PATCH /api/v1/admin/users/{id}", auth.AdminOnly(h.UpdateUserStatus))
	mux.HandleFunc("GET /api/v1/admin/submissions", auth.AdminOnly(h.ListSubmissions))
	mux.HandleFunc("DELETE /api/v1/admin/submissions/{id}", auth.AdminOnly(h.DeleteSubmission))
	mux.HandleFunc("GET /api/v1/admin/dashboard", auth.AdminOnly(h.Dashboard))
}

// ============================================================================
// 用户管理
// ============================================================================

// ListUsers 分页列出全部账户（含 suspended / deleted）
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := parseBoundedInt(r.URL.Query().Get("limit"), 20, 100)
	offset := parseOffset(r.URL.Query().Get("offset"))

	accounts, total, err := h.store.ListAccounts(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[admin.users] ListAccounts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  accounts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type updateStatusRequest struct {
	Status model.AccountStatus `json:"status"`
}

// UpdateUserStatus 启用 / 停用账户
//
// 只允许 active 与 suspended 两种目标状态；删除走账户自助删除，
// 管理员不能把自己停用（防止最后一个管理员把自己锁在门外）。
func (h *Handler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.AccountStatusActive && req.Status != model.AccountStatusSuspended {
		writeError(w, http.StatusBadRequest, "status must be 'active' or 'suspended'")
		return
	}

	if caller := auth.GetAuthUser(r.Context()); caller != nil && caller.ID == id && req.Status == model.AccountStatusSuspended {
		writeError(w, http.StatusBadRequest, "cannot suspend your own account")
		return
	}

	acc, err := h.store.GetAccountByID(r.Context(), id)
	if err != nil {
		log.Printf("[admin.users] GetAccountByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if acc == nil || acc.Status == model.AccountStatusDeleted {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.store.UpdateAccountStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		log.Printf("[admin.users] UpdateAccountStatus error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update user status")
		return
	}

	log.Printf("[admin] Account %s status set to %s", id, req.Status)
	acc.Status = req.Status
	writeJSON(w, http.StatusOK, acc)
}

// ============================================================================
// 提交管理
// ============================================================================

// ListSubmissions 跨用户的提交列表，支持与用户端相同的过滤条件
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.SubmissionFilter{
		UserID:    q.Get("userId"), // 为空表示全部用户
		Status:    model.SubmissionStatus(q.Get("status")),
		RiskLevel: model.RiskLevel(q.Get("risk")),
		Limit:     parseBoundedInt(q.Get("limit"), 20, 100),
		Offset:    parseOffset(q.Get("offset")),
	}

	subs, total, err := h.store.ListSubmissions(r.Context(), filter)
	if err != nil {
		log.Printf("[admin.submissions] ListSubmissions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":  subs,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// DeleteSubmission 管理员删除任意提交，与用户端相同的先文件后记录顺序
func (h *Handler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	sub, err := h.store.GetSubmission(r.Context(), id)
	if err != nil {
		log.Printf("[admin.submissions] GetSubmission error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	if sub.HasFile() && h.files != nil {
		if err := h.files.Delete(r.Context(), sub.FilePath); err != nil {
			log.Printf("[admin.submissions] file delete error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to delete stored file")
			return
		}
	}

	if err := h.store.DeleteSubmission(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		log.Printf("[admin.submissions] DeleteSubmission error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete submission")
		return
	}

	log.Printf("[admin] Deleted submission %s (owner %s)", id, sub.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "submission deleted"})
}

// ============================================================================
// 仪表盘
// ============================================================================

// dashboardResponse 运营仪表盘聚合视图
type dashboardResponse struct {
	Stats             *storage.SubmissionStats `json:"stats"`
	Monthly           []storage.MonthCount     `json:"monthly"`
	TopFlags          []storage.FlagCount      `json:"topFlags"`
	RecentSubmissions []*model.Submission      `json:"recentSubmissions"`
}

// Dashboard 全局统计 + 月度趋势 + 高频标记 + 最近提交的组合视图
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.store.SubmissionStats(ctx, storage.StatsFilter{})
	if err != nil {
		log.Printf("[admin.dashboard] SubmissionStats error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	monthly, err := h.store.MonthlySubmissionCounts(ctx, "", 12)
	if err != nil {
		log.Printf("[admin.dashboard] MonthlySubmissionCounts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	topFlags, err := h.store.TopFlagCategories(ctx, "", 5)
	if err != nil {
		log.Printf("[admin.dashboard] TopFlagCategories error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	recent, _, err := h.store.ListSubmissions(ctx, storage.SubmissionFilter{Limit: 10})
	if err != nil {
		log.Printf("[admin.dashboard] ListSubmissions error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	if monthly == nil {
		monthly = []storage.MonthCount{}
	}
	if topFlags == nil {
		topFlags = []storage.FlagCount{}
	}
	if recent == nil {
		recent = []*model.Submission{}
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Stats:             stats,
		Monthly:           monthly,
		TopFlags:          topFlags,
		RecentSubmissions: recent,
	})
}

// ============================================================================
// 工具函数
// ============================================================================

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

func parseOffset(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
