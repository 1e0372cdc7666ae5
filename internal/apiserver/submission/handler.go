// Package submission 职位提交：创建、上传、查询、举报、删除
//
// 评分同步执行：记录入库（pending）→ analyzing → 评分 → completed。
// 评分失败的提交标记为 failed，不会停留在 analyzing。
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/apiserver/scam"
	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// Store 提交存储接口（handler 需要的子集）
type Store interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	SetSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error
	CompleteSubmission(ctx context.Context, id string, flags []model.WarningFlag, probability int, risk model.RiskLevel) error
	MarkReportViewed(ctx context.Context, id string, at time.Time) error
	SetSubmissionReported(ctx context.Context, id, reason string) error
	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]*model.Submission, int, error)
}

// FileStore 上传文件的对象存储接口
type FileStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// UploadConfig 上传限制
type UploadConfig struct {
	MaxSize           int64    `yaml:"max_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// DefaultUploadConfig 返回默认上传限制
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxSize:           5 << 20, // 5MB
		AllowedExtensions: []string{".txt", ".md", ".pdf", ".doc", ".docx", ".rtf"},
	}
}

// Handler 提交 HTTP 处理器
type Handler struct {
	store  Store
	files  FileStore
	upload UploadConfig

	now func() time.Time
}

// NewHandler 创建提交处理器
func NewHandler(store Store, files FileStore, upload UploadConfig) *Handler {
	if upload.MaxSize == 0 {
		upload = DefaultUploadConfig()
	}
	return &Handler{store: store, files: files, upload: upload, now: time.Now}
}

// RegisterRoutes 注册提交相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/submissions", h.Create)
	mux.HandleFunc("POST /api/v1/submissions/upload", h.CreateWithUpload)
	mux.HandleFunc("GET /api/v1/submissions", h.List)
	mux.HandleFunc("GET /api/v1/submissions/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/submissions/{id}/report", h.Report)
	mux.HandleFunc("DELETE /api/v1/submissions/{id}", h.Delete)
}

// ============================================================================
// 请求类型
// ============================================================================

type createRequest struct {
	JobURL         string `json:"jobUrl"`
	Description    string `json:"description"`
	CompanyName    string `json:"companyName"`
	CompanyEmail   string `json:"companyEmail"`
	CompanyWebsite string `json:"companyWebsite"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

// ============================================================================
// 创建与评分
// ============================================================================

// Create 提交职位（JSON 输入）
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobURL == "" && strings.TrimSpace(req.Description) == "" {
		writeValidationError(w, []fieldError{{"jobUrl", "jobUrl or description is required"}})
		return
	}

	now := h.now()
	sub := &model.Submission{
		ID:             generateID("sub"),
		UserID:         user.ID,
		JobURL:         req.JobURL,
		Description:    strings.TrimSpace(req.Description),
		CompanyName:    req.CompanyName,
		CompanyEmail:   req.CompanyEmail,
		CompanyWebsite: req.CompanyWebsite,
		Status:         model.SubmissionStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	h.persistAndScore(w, r, sub)
}

// persistAndScore 入库并同步评分
func (h *Handler) persistAndScore(w http.ResponseWriter, r *http.Request, sub *model.Submission) {
	ctx := r.Context()

	if err := h.store.CreateSubmission(ctx, sub); err != nil {
		log.Printf("[submission.create] CreateSubmission error: %v", err)
		h.cleanupFile(sub)
		writeError(w, http.StatusInternalServerError, "failed to create submission")
		return
	}

	if err := h.store.SetSubmissionStatus(ctx, sub.ID, model.SubmissionStatusAnalyzing); err != nil {
		log.Printf("[submission.create] SetSubmissionStatus error: %v", err)
	}

	result, err := h.score(sub)
	if err != nil {
		log.Printf("[submission.create] scoring failed for %s: %v", sub.ID, err)
		h.markFailed(ctx, sub)
		writeError(w, http.StatusInternalServerError, "failed to analyze submission")
		return
	}

	if err := h.store.CompleteSubmission(ctx, sub.ID, result.Flags, result.Probability, result.RiskLevel); err != nil {
		log.Printf("[submission.create] CompleteSubmission error: %v", err)
		h.markFailed(ctx, sub)
		writeError(w, http.StatusInternalServerError, "failed to persist analysis")
		return
	}

	sub.Flags = result.Flags
	sub.ScamProbability = result.Probability
	sub.RiskLevel = result.RiskLevel
	sub.Status = model.SubmissionStatusCompleted
	recordScored(string(result.RiskLevel))

	log.Printf("[submission] Scored %s: probability=%d risk=%s flags=%d",
		sub.ID, result.Probability, result.RiskLevel, len(result.Flags))
	writeJSON(w, http.StatusCreated, sub)
}

// score 执行评分，评分器 panic 转换为 error
func (h *Handler) score(sub *model.Submission) (result scam.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scorer panic: %v", rec)
		}
	}()
	result = scam.Score(scam.Input{
		Description:  sub.Description,
		CompanyEmail: sub.CompanyEmail,
		HasWebsite:   sub.CompanyWebsite != "",
	})
	return result, nil
}

// markFailed 分析中断后的收尾：记录转为 failed，回收已上传的对象。
// 记录本身保留，用户可见失败状态。
func (h *Handler) markFailed(ctx context.Context, sub *model.Submission) {
	if err := h.store.SetSubmissionStatus(ctx, sub.ID, model.SubmissionStatusFailed); err != nil {
		log.Printf("[submission] SetSubmissionStatus(failed) error for %s: %v", sub.ID, err)
	}
	h.cleanupFile(sub)
}

// cleanupFile 回收本次请求上传的对象，失败路径不留孤儿文件
func (h *Handler) cleanupFile(sub *model.Submission) {
	if !sub.HasFile() || h.files == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.files.Delete(ctx, sub.FilePath); err != nil {
		log.Printf("[submission] orphan cleanup failed for %s: %v", sub.FilePath, err)
	}
}

// ============================================================================
// 查询 / 更新 / 删除
// ============================================================================

// List 当前用户的提交列表
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	filter := storage.SubmissionFilter{
		UserID:    user.ID,
		Status:    model.SubmissionStatus(r.URL.Query().Get("status")),
		RiskLevel: model.RiskLevel(r.URL.Query().Get("risk")),
		Limit:     parseLimit(r.URL.Query().Get("limit"), 20, 100),
		Offset:    parseOffset(r.URL.Query().Get("offset")),
	}

	subs, total, err := h.store.ListSubmissions(r.Context(), filter)
	if err != nil {
		log.Printf("[submission.list] ListSubmissions error: %v", err)
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

// Get 提交详情；所有者首次查看会置位 ReportViewed
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, user, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	// 首次查看标记（条件更新，重复查看为空操作）
	if !sub.ReportViewed && user.ID == sub.UserID {
		at := h.now()
		if err := h.store.MarkReportViewed(r.Context(), sub.ID, at); err != nil {
			log.Printf("[submission.get] MarkReportViewed error: %v", err)
		} else {
			sub.ReportViewed = true
			sub.ReportViewedAt = &at
		}
	}

	writeJSON(w, http.StatusOK, sub)
}

// Report 举报提交
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	sub, _, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeValidationError(w, []fieldError{{"reason", "reason is required"}})
		return
	}

	if err := h.store.SetSubmissionReported(r.Context(), sub.ID, req.Reason); err != nil {
		log.Printf("[submission.report] SetSubmissionReported error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to report submission")
		return
	}

	sub.IsReported = true
	sub.ReportReason = req.Reason
	writeJSON(w, http.StatusOK, sub)
}

// Delete 删除提交：先删存储的文件（幂等），再删记录
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sub, _, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	if sub.HasFile() && h.files != nil {
		if err := h.files.Delete(r.Context(), sub.FilePath); err != nil {
			log.Printf("[submission.delete] file delete error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to delete stored file")
			return
		}
	}

	if err := h.store.DeleteSubmission(r.Context(), sub.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		log.Printf("[submission.delete] DeleteSubmission error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete submission")
		return
	}

	log.Printf("[submission] Deleted %s", sub.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "submission deleted"})
}

// loadAuthorized 取出提交并做所有权检查
//
// 存在性先于权限：不存在 → 404；存在但非本人且非管理员 → 403。
func (h *Handler) loadAuthorized(w http.ResponseWriter, r *http.Request) (*model.Submission, *auth.AuthUser, bool) {
	user := auth.GetAuthUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, nil, false
	}

	id := r.PathValue("id")
	sub, err := h.store.GetSubmission(r.Context(), id)
	if err != nil {
		log.Printf("[submission] GetSubmission error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil, false
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "submission not found")
		return nil, nil, false
	}
	if sub.UserID != user.ID && !user.IsAdmin() {
		writeError(w, http.StatusForbidden, "access denied")
		return nil, nil, false
	}
	return sub, user, true
}

// ============================================================================
// 工具函数
// ============================================================================

func parseLimit(raw string, def, max int) int {
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
