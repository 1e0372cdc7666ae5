package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"jobshield/internal/shared/mail"
	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// AccountStore 账户存储接口（handler 需要的子集）
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*model.Account, error)
	UpdateAccountProfile(ctx context.Context, id, firstName, lastName string) error
	UpdateAccountPassword(ctx context.Context, id, passwordHash string) error
	LinkExternalIdentity(ctx context.Context, id, provider, subject string) error
	SoftDeleteAccount(ctx context.Context, id string, at time.Time) error
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*model.Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*model.Account, error)
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store    AccountStore
	cfg      Config
	mailer   mail.Sender
	provider ProviderClient

	// 可注入的时钟，测试用
	now func() time.Time
}

// NewHandler 创建认证处理器
func NewHandler(store AccountStore, cfg Config, mailer mail.Sender, provider ProviderClient) *Handler {
	if mailer == nil {
		mailer = mail.NewNoOpSender()
	}
	if provider == nil {
		provider = NewHTTPProviderClient(nil)
	}
	return &Handler{store: store, cfg: cfg, mailer: mailer, provider: provider, now: time.Now}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/external", h.ExternalLogin)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("PUT /api/v1/auth/profile", h.UpdateProfile)
	mux.HandleFunc("PUT /api/v1/auth/password", h.ChangePassword)
	mux.HandleFunc("POST /api/v1/auth/password/forgot", h.ForgotPassword)
	mux.HandleFunc("POST /api/v1/auth/password/reset", h.ResetPassword)
	mux.HandleFunc("DELETE /api/v1/auth/account", h.DeleteAccount)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type externalLoginRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
}

type authResponse struct {
	User         *model.Account `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var fields []fieldError
	if req.Email == "" {
		fields = append(fields, fieldError{"email", "email is required"})
	} else if !isValidEmail(req.Email) {
		fields = append(fields, fieldError{"email", "invalid email format"})
	}
	if len(req.Password) < 8 {
		fields = append(fields, fieldError{"password", "password must be at least 8 characters"})
	}
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.store.GetAccountByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.register] GetAccountByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}

	hash, err := HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := h.now()
	acc := &model.Account{
		ID:           generateID("usr"),
		Email:        email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         model.AccountRoleUser,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateAccount(r.Context(), acc); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("[auth.register] CreateAccount error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	resp, err := h.issueTokens(acc)
	if err != nil {
		log.Printf("[auth.register] token error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] Account registered: %s (%s)", acc.Email, acc.ID)
	writeJSON(w, http.StatusCreated, resp)
}

// Login 用户登录
//
// 锁定语义：锁定窗口内直接 423，不读密码也不动计时器；
// 密码错误走 CAS 计数，第 threshold 次失败触发锁定。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	now := h.now()
	acc, err := h.store.GetAccountByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		log.Printf("[auth.login] GetAccountByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if acc == nil || !acc.HasLocalCredential() {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if acc.IsLocked(now) {
		writeError(w, http.StatusLocked, "account temporarily locked, try again later")
		return
	}
	if !acc.CanAuthenticate() {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if !CheckPassword(req.Password, acc.PasswordHash) {
		after, err := h.store.RecordLoginFailure(r.Context(), acc.ID,
			h.cfg.LockoutThreshold, h.cfg.LockoutDuration, now)
		if err != nil {
			log.Printf("[auth.login] RecordLoginFailure error: %v", err)
		} else if after.IsLocked(now) {
			log.Printf("[auth] Account locked after repeated failures: %s", acc.Email)
			recordLockout()
			writeError(w, http.StatusLocked, "account temporarily locked, try again later")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := h.store.RecordLoginSuccess(r.Context(), acc.ID, now); err != nil {
		log.Printf("[auth.login] RecordLoginSuccess error: %v", err)
	}

	resp, err := h.issueTokens(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] Login: %s", acc.Email)
	writeJSON(w, http.StatusOK, resp)
}

// Refresh 刷新访问令牌
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if claims.Type != "refresh" {
		writeError(w, http.StatusUnauthorized, "invalid token type")
		return
	}

	acc, err := h.store.GetAccountByID(r.Context(), claims.Subject)
	if err != nil || acc == nil {
		writeError(w, http.StatusUnauthorized, "account not found")
		return
	}
	if !acc.CanAuthenticate() {
		writeError(w, http.StatusUnauthorized, "account is not active")
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, acc.ID, acc.Email, string(acc.Role))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

// Me 获取当前账户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	acc, err := h.store.GetAccountByID(r.Context(), authUser.ID)
	if err != nil || acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

// UpdateProfile 更新姓名
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FirstName == "" && req.LastName == "" {
		writeError(w, http.StatusBadRequest, "firstName or lastName is required")
		return
	}

	if err := h.store.UpdateAccountProfile(r.Context(), authUser.ID, req.FirstName, req.LastName); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		log.Printf("[auth.profile] UpdateAccountProfile error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	acc, err := h.store.GetAccountByID(r.Context(), authUser.ID)
	if err != nil || acc == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// ChangePassword 修改密码
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "oldPassword and newPassword are required")
		return
	}
	if len(req.NewPassword) < 8 {
		writeValidationError(w, []fieldError{{"newPassword", "password must be at least 8 characters"}})
		return
	}

	acc, err := h.store.GetAccountByID(r.Context(), authUser.ID)
	if err != nil || acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if !CheckPassword(req.OldPassword, acc.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "incorrect old password")
		return
	}

	hash, err := HashPassword(req.NewPassword, h.cfg.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateAccountPassword(r.Context(), acc.ID, hash); err != nil {
		log.Printf("[auth.password] UpdateAccountPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// ForgotPassword 发起密码重置
//
// 无论账户是否存在都返回 200，避免邮箱探测。
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	acceptedMsg := map[string]string{"message": "if the email exists, a reset link has been sent"}

	acc, err := h.store.GetAccountByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		log.Printf("[auth.forgot] GetAccountByEmail error: %v", err)
		writeJSON(w, http.StatusOK, acceptedMsg)
		return
	}
	if acc == nil || !acc.CanAuthenticate() {
		writeJSON(w, http.StatusOK, acceptedMsg)
		return
	}

	token, tokenHash, err := NewResetToken()
	if err != nil {
		log.Printf("[auth.forgot] NewResetToken error: %v", err)
		writeJSON(w, http.StatusOK, acceptedMsg)
		return
	}
	if err := h.store.SetResetToken(r.Context(), acc.ID, tokenHash, h.now().Add(h.cfg.ResetTokenTTL)); err != nil {
		log.Printf("[auth.forgot] SetResetToken error: %v", err)
		writeJSON(w, http.StatusOK, acceptedMsg)
		return
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(h.cfg.ResetURLBase, "/"), token)
	// 邮件投递不阻塞响应
	go func(email, url string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.mailer.SendPasswordReset(ctx, email, url); err != nil {
			log.Printf("[auth.forgot] SendPasswordReset error: %v", err)
		}
	}(acc.Email, resetURL)

	writeJSON(w, http.StatusOK, acceptedMsg)
}

// ResetPassword 消费重置令牌并设置新密码
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if len(req.NewPassword) < 8 {
		writeValidationError(w, []fieldError{{"newPassword", "password must be at least 8 characters"}})
		return
	}

	hash, err := HashPassword(req.NewPassword, h.cfg.BcryptCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	acc, err := h.store.ConsumeResetToken(r.Context(), HashResetToken(req.Token), h.now(), hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "invalid or expired reset token")
			return
		}
		log.Printf("[auth.reset] ConsumeResetToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] Password reset completed: %s", acc.Email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

// DeleteAccount 注销当前账户（软删除）
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.store.SoftDeleteAccount(r.Context(), authUser.ID, h.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		log.Printf("[auth.delete] SoftDeleteAccount error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	log.Printf("[auth] Account deleted: %s", authUser.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// issueTokens 签发访问/刷新令牌对
func (h *Handler) issueTokens(acc *model.Account) (*authResponse, error) {
	accessToken, err := GenerateAccessToken(h.cfg, acc.ID, acc.Email, string(acc.Role))
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateRefreshToken(h.cfg, acc.ID)
	if err != nil {
		return nil, err
	}
	return &authResponse{User: acc, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员账户存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该账户，则自动创建
func EnsureAdminUser(store AccountStore, cfg Config, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	email := strings.ToLower(adminEmail)
	existing, err := store.GetAccountByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check admin account: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin account already exists: %s (%s)", email, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword, cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	acc := &model.Account{
		ID:           generateID("usr"),
		Email:        email,
		FirstName:    "Admin",
		PasswordHash: hash,
		Verified:     true,
		Role:         model.AccountRoleAdmin,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateAccount(ctx, acc); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}
	log.Printf("[auth] Created admin account: %s (%s)", email, acc.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": message})
}

func writeValidationError(w http.ResponseWriter, fields []fieldError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": fields})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// generateID 生成带前缀的随机 ID
// 格式：prefix-xxxxxxxxxxxx（prefix + 12 字符 hex）
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
