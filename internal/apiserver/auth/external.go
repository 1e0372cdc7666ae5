package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"jobshield/internal/shared/model"
)

// ErrProvider 外部身份提供方不可用或返回了无效数据
var ErrProvider = errors.New("identity provider error")

// ExternalUserInfo 提供方 userinfo 端点返回的用户信息
type ExternalUserInfo struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`
}

// ProviderClient 外部身份提供方客户端
type ProviderClient interface {
	// FetchUserInfo 用提供方 access token 换取用户信息
	FetchUserInfo(ctx context.Context, provider, accessToken string) (*ExternalUserInfo, error)
}

// ============================================================================
// HTTP userinfo 客户端
// ============================================================================

// 常见提供方的 userinfo 端点
var defaultUserInfoEndpoints = map[string]string{
	"google": "https://www.googleapis.com/oauth2/v3/userinfo",
	"github": "https://api.github.com/user",
}

// HTTPProviderClient 通过提供方 userinfo 端点取用户信息
type HTTPProviderClient struct {
	endpoints map[string]string
	client    *http.Client
}

// NewHTTPProviderClient 创建 userinfo 客户端；endpoints 为 nil 时使用默认端点
func NewHTTPProviderClient(endpoints map[string]string) *HTTPProviderClient {
	if endpoints == nil {
		endpoints = defaultUserInfoEndpoints
	}
	return &HTTPProviderClient{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchUserInfo 请求 userinfo 端点
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, provider, accessToken string) (*ExternalUserInfo, error) {
	endpoint, ok := c.endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrProvider, provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: userinfo returned %d: %s", ErrProvider, resp.StatusCode, body)
	}

	var info ExternalUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrProvider, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject", ErrProvider)
	}
	return &info, nil
}

// ============================================================================
// 外部身份登录
// ============================================================================

// ExternalLogin 外部身份登录 / 注册
//
// 匹配顺序：
//  1. (provider, subject) 已有账户 → 直接登录
//  2. 同邮箱的本地账户 → 关联外部身份，保留本地密码
//  3. 新建已验证账户（无本地密码）
func (h *Handler) ExternalLogin(w http.ResponseWriter, r *http.Request) {
	var req externalLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "provider and accessToken are required")
		return
	}

	info, err := h.provider.FetchUserInfo(r.Context(), req.Provider, req.AccessToken)
	if err != nil {
		log.Printf("[auth.external] FetchUserInfo error: %v", err)
		writeError(w, http.StatusBadGateway, "identity provider unavailable")
		return
	}
	if info.Email == "" {
		writeError(w, http.StatusBadGateway, "identity provider did not supply an email")
		return
	}
	email := strings.ToLower(info.Email)

	// 1. 已绑定的外部身份
	acc, err := h.store.GetAccountByExternalIdentity(r.Context(), req.Provider, info.Subject)
	if err != nil {
		log.Printf("[auth.external] GetAccountByExternalIdentity error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if acc == nil {
		// 2. 同邮箱的本地账户 → 关联
		acc, err = h.store.GetAccountByEmail(r.Context(), email)
		if err != nil {
			log.Printf("[auth.external] GetAccountByEmail error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if acc != nil {
			if err := h.store.LinkExternalIdentity(r.Context(), acc.ID, req.Provider, info.Subject); err != nil {
				log.Printf("[auth.external] LinkExternalIdentity error: %v", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			acc.ExternalProvider = req.Provider
			acc.ExternalSubject = info.Subject
			log.Printf("[auth] Linked %s identity to account %s", req.Provider, acc.ID)
		}
	}

	if acc == nil {
		// 3. 新建账户，外部身份视为已验证
		now := h.now()
		acc = &model.Account{
			ID:               generateID("usr"),
			Email:            email,
			FirstName:        info.FirstName,
			LastName:         info.LastName,
			ExternalProvider: req.Provider,
			ExternalSubject:  info.Subject,
			Verified:         true,
			Role:             model.AccountRoleUser,
			Status:           model.AccountStatusActive,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := h.store.CreateAccount(r.Context(), acc); err != nil {
			log.Printf("[auth.external] CreateAccount error: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}
		log.Printf("[auth] Account created via %s: %s (%s)", req.Provider, acc.Email, acc.ID)
	}

	if !acc.CanAuthenticate() {
		writeError(w, http.StatusUnauthorized, "account is not active")
		return
	}

	if err := h.store.RecordLoginSuccess(r.Context(), acc.ID, h.now()); err != nil {
		log.Printf("[auth.external] RecordLoginSuccess error: %v", err)
	}

	resp, err := h.issueTokens(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
