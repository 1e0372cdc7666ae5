package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// fakeStore 记录调用参数并返回预置数据
type fakeStore struct {
	lastFilter storage.StatsFilter
	lastUserID string
	lastLimit  int

	stats   *storage.SubmissionStats
	monthly []storage.MonthCount
	flags   []storage.FlagCount
	alerts  []*model.Submission
}

func (f *fakeStore) SubmissionStats(_ context.Context, filter storage.StatsFilter) (*storage.SubmissionStats, error) {
	f.lastFilter = filter
	if f.stats == nil {
		return &storage.SubmissionStats{
			ByRiskLevel: map[model.RiskLevel]int{},
			ByStatus:    map[model.SubmissionStatus]int{},
		}, nil
	}
	return f.stats, nil
}

func (f *fakeStore) MonthlySubmissionCounts(_ context.Context, userID string, months int) ([]storage.MonthCount, error) {
	f.lastUserID = userID
	f.lastLimit = months
	return f.monthly, nil
}

func (f *fakeStore) TopFlagCategories(_ context.Context, userID string, k int) ([]storage.FlagCount, error) {
	f.lastUserID = userID
	f.lastLimit = k
	return f.flags, nil
}

func (f *fakeStore) ListRecentAlerts(_ context.Context, limit int) ([]*model.Submission, error) {
	f.lastLimit = limit
	return f.alerts, nil
}

var testUser = &auth.AuthUser{ID: "usr-1", Email: "u@example.com", Role: "user"}
var testAdmin = &auth.AuthUser{ID: "usr-admin", Email: "a@example.com", Role: "admin"}

func doGet(h http.HandlerFunc, path string, user *auth.AuthUser) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if user != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestOverview_ScopeMe(t *testing.T) {
	store := &fakeStore{stats: &storage.SubmissionStats{
		Total:          4,
		AvgProbability: 30,
		ByRiskLevel:    map[model.RiskLevel]int{model.RiskLevelHigh: 1},
		ByStatus:       map[model.SubmissionStatus]int{model.SubmissionStatusCompleted: 4},
	}}
	h := NewHandler(store)

	rec := doGet(h.Overview, "/api/v1/stats", testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr-1", store.lastFilter.UserID)

	var got storage.SubmissionStats
	decodeData(t, rec, &got)
	assert.Equal(t, 4, got.Total)
	assert.Equal(t, 30.0, got.AvgProbability)
}

func TestOverview_GlobalRequiresAdmin(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	rec := doGet(h.Overview, "/api/v1/stats?scope=global", testUser)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doGet(h.Overview, "/api/v1/stats?scope=global", testAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", store.lastFilter.UserID, "global scope aggregates all users")
}

func TestOverview_DateRange(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	rec := doGet(h.Overview, "/api/v1/stats?from=2026-01-01&to=2026-06-30", testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.From)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), store.lastFilter.To)

	rec = doGet(h.Overview, "/api/v1/stats?from=not-a-date", testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(h.Overview, "/api/v1/stats?from=2026-06-01&to=2026-01-01", testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverview_Unauthenticated(t *testing.T) {
	h := NewHandler(&fakeStore{})
	rec := doGet(h.Overview, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOverview_InvalidScope(t *testing.T) {
	h := NewHandler(&fakeStore{})
	rec := doGet(h.Overview, "/api/v1/stats?scope=everyone", testUser)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonthly(t *testing.T) {
	store := &fakeStore{monthly: []storage.MonthCount{
		{Month: "2026-08", Count: 3},
		{Month: "2026-07", Count: 1},
	}}
	h := NewHandler(store)

	rec := doGet(h.Monthly, "/api/v1/stats/monthly", testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr-1", store.lastUserID)
	assert.Equal(t, 12, store.lastLimit, "defaults to a 12 month window")

	var got []storage.MonthCount
	decodeData(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-08", got[0].Month)
}

func TestMonthly_EmptyIsArray(t *testing.T) {
	h := NewHandler(&fakeStore{})
	rec := doGet(h.Monthly, "/api/v1/stats/monthly", testUser)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "[]", string(env.Data))
}

func TestTopFlags_LimitClamped(t *testing.T) {
	store := &fakeStore{flags: []storage.FlagCount{
		{Category: model.FlagUpfrontPayment, Count: 5},
	}}
	h := NewHandler(store)

	rec := doGet(h.TopFlags, "/api/v1/stats/flags", testUser)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, store.lastLimit)

	doGet(h.TopFlags, "/api/v1/stats/flags?limit=100", testUser)
	assert.Equal(t, 20, store.lastLimit)

	doGet(h.TopFlags, "/api/v1/stats/flags?limit=3", testUser)
	assert.Equal(t, 3, store.lastLimit)
}

func TestAlerts_PublicProjection(t *testing.T) {
	now := time.Now()
	store := &fakeStore{alerts: []*model.Submission{{
		ID:              "sub-abc",
		UserID:          "usr-secret",
		JobURL:          "https://jobs.example.com/1",
		CompanyEmail:    "hr@gmail.com",
		RiskLevel:       model.RiskLevelHigh,
		ScamProbability: 85,
		Status:          model.SubmissionStatusCompleted,
		Flags: []model.WarningFlag{
			{Category: model.FlagUpfrontPayment, Severity: model.FlagSeverityHigh, Detected: true},
			{Category: model.FlagVagueDescription, Detected: false},
		},
		CreatedAt: now,
	}}}
	h := NewHandler(store)

	// 匿名可访问
	rec := doGet(h.Alerts, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.lastLimit, "defaults to 10 alerts")

	var got []model.PublicAlert
	decodeData(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "sub-abc", got[0].ID)
	assert.Equal(t, 85, got[0].ScamProbability)
	// 投影只保留 Detected 标记
	require.Len(t, got[0].Flags, 1)
	assert.Equal(t, model.FlagUpfrontPayment, got[0].Flags[0].Category)

	// 投影不泄露所有者与联系信息
	assert.NotContains(t, rec.Body.String(), "usr-secret")
	assert.NotContains(t, rec.Body.String(), "hr@gmail.com")
}

func TestAlerts_LimitClamped(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store)

	doGet(h.Alerts, "/api/v1/alerts?limit=500", nil)
	assert.Equal(t, 50, store.lastLimit)
}
