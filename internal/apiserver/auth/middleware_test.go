package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"login", "/api/v1/auth/login", true},
		{"register", "/api/v1/auth/register", true},
		{"refresh", "/api/v1/auth/refresh", true},
		{"external", "/api/v1/auth/external", true},
		{"forgot", "/api/v1/auth/password/forgot", true},
		{"reset", "/api/v1/auth/password/reset", true},
		{"alerts", "/api/v1/alerts", true},
		{"health", "/health", true},
		{"metrics", "/metrics", true},

		{"me", "/api/v1/auth/me", false},
		{"submissions", "/api/v1/submissions", false},
		{"stats", "/api/v1/stats", false},
		{"admin", "/api/v1/admin/users", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPublicRoute(tt.path); got != tt.expected {
				t.Errorf("isPublicRoute(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	cfg := testConfig()
	var gotUser *AuthUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetAuthUser(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := Middleware(cfg)(next)

	// 无令牌访问受保护路由
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/submissions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	// 公开路由直接放行
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("public route: status = %d, want 200", rec.Code)
	}

	// 有效 access token
	token, err := GenerateAccessToken(cfg, "usr-1", "a@b.co", "admin")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/api/v1/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
	if gotUser == nil || gotUser.ID != "usr-1" || gotUser.Role != "admin" {
		t.Fatalf("auth user not injected: %+v", gotUser)
	}

	// refresh token 不能当 access 用
	refresh, err := GenerateRefreshToken(cfg, "usr-1")
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest("GET", "/api/v1/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh as access: status = %d, want 401", rec.Code)
	}
}

func TestAdminOnly(t *testing.T) {
	handler := AdminOnly(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// 普通用户被拒
	req := httptest.NewRequest("GET", "/api/v1/admin/users", nil)
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{ID: "u1", Role: "user"}))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user role: status = %d, want 403", rec.Code)
	}

	// 管理员放行
	req = httptest.NewRequest("GET", "/api/v1/admin/users", nil)
	req = req.WithContext(WithAuthUser(req.Context(), &AuthUser{ID: "u2", Role: "admin"}))
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin role: status = %d, want 200", rec.Code)
	}
}
