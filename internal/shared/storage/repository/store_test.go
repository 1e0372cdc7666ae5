// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 repository 层所有存储接口的正确性。
// 无需外部数据库依赖，可在任何环境下运行。
package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
	"jobshield/internal/shared/storage/dbutil"
	sqlitedriver "jobshield/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestAccount(id, email string) *model.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Account{
		ID:           id,
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Wei",
		PasswordHash: "$2a$12$examplehash",
		Role:         model.AccountRoleUser,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newTestSubmission(id, userID string, at time.Time) *model.Submission {
	return &model.Submission{
		ID:          id,
		UserID:      userID,
		Description: "remote data entry position, competitive pay",
		CompanyName: "Acme Corp",
		Status:      model.SubmissionStatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "strftime('%Y-%m', created_at)", d.MonthBucket("created_at"))
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM accounts WHERE id = ? AND email = ?",
		d.Rebind("SELECT * FROM accounts WHERE id = $1 AND email = $2"))
}

// ============================================================================
// Account 测试
// ============================================================================

func TestAccountCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("acc-001", "ada@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.Email, got.Email)
	assert.Equal(t, model.AccountRoleUser, got.Role)
	assert.Equal(t, model.AccountStatusActive, got.Status)

	got, err = s.GetAccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.ID, got.ID)

	// 不存在的账户返回 (nil, nil)
	got, err = s.GetAccountByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "dup@example.com")))
	err := s.CreateAccount(ctx, newTestAccount("acc-002", "dup@example.com"))
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUpdateAccountProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("acc-001", "ada@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))

	require.NoError(t, s.UpdateAccountProfile(ctx, acc.ID, "Grace", "Hopper"))
	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.FirstName)
	assert.Equal(t, "Hopper", got.LastName)

	// 不存在的账户返回 ErrNotFound
	assert.ErrorIs(t, s.UpdateAccountProfile(ctx, "missing", "A", "B"), storage.ErrNotFound)
}

func TestSoftDeleteAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("acc-001", "gone@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.SoftDeleteAccount(ctx, acc.ID, time.Now().UTC()))

	// 软删除后按邮箱查不到
	got, err := s.GetAccountByEmail(ctx, "gone@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	// 按 ID 仍可取到记录，状态为 deleted
	got, err = s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.AccountStatusDeleted, got.Status)
	assert.NotNil(t, got.DeletedAt)
}

func TestCreateAccount_ReusesEmailAfterSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := newTestAccount("acc-001", "back@example.com")
	require.NoError(t, s.CreateAccount(ctx, old))
	require.NoError(t, s.SoftDeleteAccount(ctx, old.ID, time.Now().UTC()))

	// 注销后同一邮箱可以重新注册，唯一约束只覆盖未删除账户
	fresh := newTestAccount("acc-002", "back@example.com")
	require.NoError(t, s.CreateAccount(ctx, fresh))

	got, err := s.GetAccountByEmail(ctx, "back@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fresh.ID, got.ID)

	// 旧记录保留供审计
	kept, err := s.GetAccountByID(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, model.AccountStatusDeleted, kept.Status)
}

func TestExternalIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("acc-001", "oauth@example.com")
	acc.PasswordHash = ""
	acc.ExternalProvider = "google"
	acc.ExternalSubject = "sub-123"
	acc.Verified = true
	require.NoError(t, s.CreateAccount(ctx, acc))

	got, err := s.GetAccountByExternalIdentity(ctx, "google", "sub-123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.ID, got.ID)

	got, err = s.GetAccountByExternalIdentity(ctx, "google", "other")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLinkExternalIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("acc-001", "local@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.LinkExternalIdentity(ctx, acc.ID, "google", "sub-9"))

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "google", got.ExternalProvider)
	assert.Equal(t, "sub-9", got.ExternalSubject)
	// 本地密码保留
	assert.NotEmpty(t, got.PasswordHash)
}

// ============================================================================
// 登录安全计数
// ============================================================================

func TestRecordLoginFailure_LocksAtThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	acc := newTestAccount("acc-001", "lock@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))

	for i := 1; i < 5; i++ {
		got, err := s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, i, got.FailedLoginAttempts)
		assert.False(t, got.IsLocked(now))
	}

	// 第 5 次失败触发锁定，计数清零
	got, err := s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.IsLocked(now))
	assert.False(t, got.IsLocked(now.Add(3*time.Hour)))
}

func TestRecordLoginSuccess_ClearsCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	acc := newTestAccount("acc-001", "clear@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))

	_, err := s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
	require.NoError(t, err)
	_, err = s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
	require.NoError(t, err)

	require.NoError(t, s.RecordLoginSuccess(ctx, acc.ID, now))

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)
}

// ============================================================================
// 密码重置令牌
// ============================================================================

func TestResetToken_ConsumeOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	acc := newTestAccount("acc-001", "reset@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.SetResetToken(ctx, acc.ID, "tokenhash", now.Add(10*time.Minute)))

	got, err := s.ConsumeResetToken(ctx, "tokenhash", now, "newhash")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acc.ID, got.ID)

	// 令牌单次有效
	_, err = s.ConsumeResetToken(ctx, "tokenhash", now, "anotherhash")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	after, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", after.PasswordHash)
	assert.Empty(t, after.ResetTokenHash)
}

func TestResetToken_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	acc := newTestAccount("acc-001", "expired@example.com")
	require.NoError(t, s.CreateAccount(ctx, acc))
	require.NoError(t, s.SetResetToken(ctx, acc.ID, "tokenhash", now.Add(-time.Minute)))

	_, err := s.ConsumeResetToken(ctx, "tokenhash", now, "newhash")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// ============================================================================
// Submission 测试
// ============================================================================

func TestSubmissionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "sub@example.com")))
	sub := newTestSubmission("sub-001", "acc-001", now)
	require.NoError(t, s.CreateSubmission(ctx, sub))

	require.NoError(t, s.SetSubmissionStatus(ctx, sub.ID, model.SubmissionStatusAnalyzing))

	flags := []model.WarningFlag{
		{Category: model.FlagUpfrontPayment, Severity: model.FlagSeverityHigh, Description: "requests payment before hiring", Detected: true},
		{Category: model.FlagVagueDescription, Severity: model.FlagSeverityMedium, Description: "description is too short", Detected: true},
	}
	require.NoError(t, s.CompleteSubmission(ctx, sub.ID, flags, 40, model.RiskLevelMedium))

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.SubmissionStatusCompleted, got.Status)
	assert.Equal(t, 40, got.ScamProbability)
	assert.Equal(t, model.RiskLevelMedium, got.RiskLevel)
	require.Len(t, got.Flags, 2)
	assert.Equal(t, model.FlagUpfrontPayment, got.Flags[0].Category)

	require.NoError(t, s.DeleteSubmission(ctx, sub.ID))
	got, err = s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkReportViewed_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "view@example.com")))
	sub := newTestSubmission("sub-001", "acc-001", now)
	require.NoError(t, s.CreateSubmission(ctx, sub))

	first := now.Add(time.Minute)
	require.NoError(t, s.MarkReportViewed(ctx, sub.ID, first))

	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.ReportViewed)
	require.NotNil(t, got.ReportViewedAt)

	// 第二次查看不改动时间戳
	require.NoError(t, s.MarkReportViewed(ctx, sub.ID, now.Add(time.Hour)))
	again, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ReportViewedAt.Unix(), again.ReportViewedAt.Unix())
}

func TestSetSubmissionReported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "rep@example.com")))
	sub := newTestSubmission("sub-001", "acc-001", now)
	require.NoError(t, s.CreateSubmission(ctx, sub))

	require.NoError(t, s.SetSubmissionReported(ctx, sub.ID, "confirmed scam"))
	got, err := s.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, got.IsReported)
	assert.Equal(t, "confirmed scam", got.ReportReason)
}

func TestListSubmissions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "a@example.com")))
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-002", "b@example.com")))

	for i := 0; i < 3; i++ {
		sub := newTestSubmission(fmt.Sprintf("sub-a-%d", i), "acc-001", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateSubmission(ctx, sub))
	}
	subB := newTestSubmission("sub-b-0", "acc-002", now)
	require.NoError(t, s.CreateSubmission(ctx, subB))
	require.NoError(t, s.CompleteSubmission(ctx, "sub-b-0", nil, 80, model.RiskLevelHigh))

	// 按用户过滤
	list, total, err := s.ListSubmissions(ctx, storage.SubmissionFilter{UserID: "acc-001", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 3)
	// 时间倒序
	assert.Equal(t, "sub-a-2", list[0].ID)

	// 按状态过滤
	list, total, err = s.ListSubmissions(ctx, storage.SubmissionFilter{Status: model.SubmissionStatusCompleted, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "sub-b-0", list[0].ID)

	// 按风险等级过滤
	list, total, err = s.ListSubmissions(ctx, storage.SubmissionFilter{RiskLevel: model.RiskLevelHigh, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	// 分页：total 不受 limit 影响
	list, total, err = s.ListSubmissions(ctx, storage.SubmissionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, list, 2)
}

func TestListRecentAlerts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "alerts@example.com")))

	cases := []struct {
		id   string
		prob int
		risk model.RiskLevel
	}{
		{"sub-low", 10, model.RiskLevelLow},
		{"sub-med", 40, model.RiskLevelMedium},
		{"sub-high", 85, model.RiskLevelHigh},
	}
	for i, c := range cases {
		sub := newTestSubmission(c.id, "acc-001", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateSubmission(ctx, sub))
		require.NoError(t, s.CompleteSubmission(ctx, c.id, nil, c.prob, c.risk))
	}
	// pending 的提交不进告警
	require.NoError(t, s.CreateSubmission(ctx, newTestSubmission("sub-pending", "acc-001", now.Add(time.Hour))))

	alerts, err := s.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "sub-high", alerts[0].ID)
	assert.Equal(t, "sub-med", alerts[1].ID)
}

// ============================================================================
// 聚合统计
// ============================================================================

func seedStatsData(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-001", "s1@example.com")))
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("acc-002", "s2@example.com")))

	complete := func(id, userID string, at time.Time, prob int, risk model.RiskLevel, flags []model.WarningFlag) {
		sub := newTestSubmission(id, userID, at)
		require.NoError(t, s.CreateSubmission(ctx, sub))
		require.NoError(t, s.CompleteSubmission(ctx, id, flags, prob, risk))
	}

	upfront := model.WarningFlag{Category: model.FlagUpfrontPayment, Severity: model.FlagSeverityHigh, Description: "payment", Detected: true}
	vague := model.WarningFlag{Category: model.FlagVagueDescription, Severity: model.FlagSeverityMedium, Description: "vague", Detected: true}
	notDetected := model.WarningFlag{Category: model.FlagSuspiciousEmail, Severity: model.FlagSeverityMedium, Description: "email", Detected: false}

	complete("sub-1", "acc-001", now, 80, model.RiskLevelHigh, []model.WarningFlag{upfront, vague})
	complete("sub-2", "acc-001", now.Add(-time.Minute), 40, model.RiskLevelMedium, []model.WarningFlag{upfront, notDetected})
	complete("sub-3", "acc-002", now.AddDate(0, -1, 0), 0, model.RiskLevelLow, nil)
	require.NoError(t, s.CreateSubmission(ctx, newTestSubmission("sub-4", "acc-002", now)))
}

func TestSubmissionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStatsData(t, s)

	stats, err := s.SubmissionStats(ctx, storage.StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.InDelta(t, 30.0, stats.AvgProbability, 0.01)
	assert.Equal(t, 1, stats.ByRiskLevel[model.RiskLevelHigh])
	assert.Equal(t, 1, stats.ByRiskLevel[model.RiskLevelMedium])
	assert.Equal(t, 1, stats.ByRiskLevel[model.RiskLevelLow])
	assert.Equal(t, 3, stats.ByStatus[model.SubmissionStatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[model.SubmissionStatusPending])
}

func TestSubmissionStats_ScopedToUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStatsData(t, s)

	stats, err := s.SubmissionStats(ctx, storage.StatsFilter{UserID: "acc-001"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 60.0, stats.AvgProbability, 0.01)
}

func TestMonthlySubmissionCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStatsData(t, s)

	counts, err := s.MonthlySubmissionCounts(ctx, "", 12)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	// 新月份在前
	assert.Greater(t, counts[0].Month, counts[1].Month)
	assert.Equal(t, 3, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)
}

func TestTopFlagCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedStatsData(t, s)

	flags, err := s.TopFlagCategories(ctx, "", 5)
	require.NoError(t, err)
	// 未检出的标记不计数
	require.Len(t, flags, 2)
	assert.Equal(t, model.FlagUpfrontPayment, flags[0].Category)
	assert.Equal(t, 2, flags[0].Count)
	assert.Equal(t, model.FlagVagueDescription, flags[1].Category)
	assert.Equal(t, 1, flags[1].Count)

	// k 截断
	flags, err = s.TopFlagCategories(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, flags, 1)
}
