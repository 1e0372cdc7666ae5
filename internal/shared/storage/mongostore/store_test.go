package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	dbName := "jobshield_test"
	s, err := NewStore(uri, dbName)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	// 清空测试数据库
	ctx := context.Background()
	if err := s.db.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}
	// 重新创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// Compile-time interface check
var _ storage.PersistentStore = (*Store)(nil)

func mustCreateAccount(t *testing.T, s *Store, id, email string) *model.Account {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	acc := &model.Account{
		ID:           id,
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: "$2a$12$examplehash",
		Role:         model.AccountRoleUser,
		Status:       model.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return acc
}

func TestAccountCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	acc := mustCreateAccount(t, s, "acc-001", "ada@example.com")

	got, err := s.GetAccountByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail failed: %v", err)
	}
	if got == nil || got.ID != acc.ID {
		t.Fatalf("GetAccountByEmail = %+v, want ID %s", got, acc.ID)
	}

	// 重复邮箱触发唯一索引
	dup := *acc
	dup.ID = "acc-002"
	if err := s.CreateAccount(ctx, &dup); err != storage.ErrDuplicate {
		t.Fatalf("duplicate email error = %v, want ErrDuplicate", err)
	}

	// 不存在的账户返回 (nil, nil)
	got, err = s.GetAccountByID(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetAccountByID(missing) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestSoftDeleteHidesFromEmailLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	acc := mustCreateAccount(t, s, "acc-001", "gone@example.com")
	if err := s.SoftDeleteAccount(ctx, acc.ID, time.Now().UTC()); err != nil {
		t.Fatalf("SoftDeleteAccount failed: %v", err)
	}

	got, err := s.GetAccountByEmail(ctx, "gone@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail failed: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted account still visible by email: %+v", got)
	}

	// 注销后同一邮箱可以重新注册，唯一索引只覆盖未删除账户
	fresh := mustCreateAccount(t, s, "acc-002", "gone@example.com")
	got, err = s.GetAccountByEmail(ctx, "gone@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail after re-register failed: %v", err)
	}
	if got == nil || got.ID != fresh.ID {
		t.Fatalf("GetAccountByEmail after re-register = %+v, want ID %s", got, fresh.ID)
	}

	// 旧记录保留供审计
	kept, err := s.GetAccountByID(ctx, acc.ID)
	if err != nil || kept == nil || kept.Status != model.AccountStatusDeleted {
		t.Fatalf("soft-deleted record not retained: (%+v, %v)", kept, err)
	}
}

func TestRecordLoginFailure_Lockout(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	acc := mustCreateAccount(t, s, "acc-001", "lock@example.com")

	for i := 1; i < 5; i++ {
		got, err := s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
		if err != nil {
			t.Fatalf("RecordLoginFailure #%d failed: %v", i, err)
		}
		if got.FailedLoginAttempts != i {
			t.Fatalf("attempts = %d, want %d", got.FailedLoginAttempts, i)
		}
	}

	got, err := s.RecordLoginFailure(ctx, acc.ID, 5, 2*time.Hour, now)
	if err != nil {
		t.Fatalf("RecordLoginFailure #5 failed: %v", err)
	}
	if !got.IsLocked(now) {
		t.Fatalf("account not locked after threshold, LockedUntil=%v", got.LockedUntil)
	}
	if got.FailedLoginAttempts != 0 {
		t.Fatalf("attempts not reset on lock: %d", got.FailedLoginAttempts)
	}

	if err := s.RecordLoginSuccess(ctx, acc.ID, now); err != nil {
		t.Fatalf("RecordLoginSuccess failed: %v", err)
	}
	after, err := s.GetAccountByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if after.IsLocked(now) || after.FailedLoginAttempts != 0 {
		t.Fatalf("lock not cleared on success: %+v", after)
	}
}

func TestResetToken_SingleUse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	acc := mustCreateAccount(t, s, "acc-001", "reset@example.com")
	if err := s.SetResetToken(ctx, acc.ID, "tokenhash", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("SetResetToken failed: %v", err)
	}

	got, err := s.ConsumeResetToken(ctx, "tokenhash", now, "newhash")
	if err != nil {
		t.Fatalf("ConsumeResetToken failed: %v", err)
	}
	if got.ID != acc.ID {
		t.Fatalf("consumed wrong account: %s", got.ID)
	}

	if _, err := s.ConsumeResetToken(ctx, "tokenhash", now, "otherhash"); err != storage.ErrNotFound {
		t.Fatalf("second consume error = %v, want ErrNotFound", err)
	}
}

func TestSubmissionLifecycleAndAlerts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustCreateAccount(t, s, "acc-001", "sub@example.com")

	sub := &model.Submission{
		ID:          "sub-001",
		UserID:      "acc-001",
		Description: "remote data entry position",
		Status:      model.SubmissionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	flags := []model.WarningFlag{
		{Category: model.FlagUpfrontPayment, Severity: model.FlagSeverityHigh, Description: "payment", Detected: true},
	}
	if err := s.CompleteSubmission(ctx, sub.ID, flags, 45, model.RiskLevelMedium); err != nil {
		t.Fatalf("CompleteSubmission failed: %v", err)
	}

	got, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission failed: %v", err)
	}
	if got.Status != model.SubmissionStatusCompleted || got.ScamProbability != 45 {
		t.Fatalf("unexpected submission: %+v", got)
	}
	if len(got.Flags) != 1 || got.Flags[0].Category != model.FlagUpfrontPayment {
		t.Fatalf("unexpected flags: %+v", got.Flags)
	}

	alerts, err := s.ListRecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecentAlerts failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != sub.ID {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}

	// MarkReportViewed 幂等
	first := now.Add(time.Minute)
	if err := s.MarkReportViewed(ctx, sub.ID, first); err != nil {
		t.Fatalf("MarkReportViewed failed: %v", err)
	}
	if err := s.MarkReportViewed(ctx, sub.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("second MarkReportViewed failed: %v", err)
	}
	got, _ = s.GetSubmission(ctx, sub.ID)
	if got.ReportViewedAt == nil || !got.ReportViewedAt.Equal(first) {
		t.Fatalf("ReportViewedAt changed on second view: %v", got.ReportViewedAt)
	}
}

func TestStatsPipelines(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustCreateAccount(t, s, "acc-001", "stats@example.com")

	upfront := model.WarningFlag{Category: model.FlagUpfrontPayment, Severity: model.FlagSeverityHigh, Description: "payment", Detected: true}
	vague := model.WarningFlag{Category: model.FlagVagueDescription, Severity: model.FlagSeverityMedium, Description: "vague", Detected: true}

	seed := []struct {
		id    string
		prob  int
		risk  model.RiskLevel
		flags []model.WarningFlag
	}{
		{"sub-1", 80, model.RiskLevelHigh, []model.WarningFlag{upfront, vague}},
		{"sub-2", 40, model.RiskLevelMedium, []model.WarningFlag{upfront}},
	}
	for _, c := range seed {
		sub := &model.Submission{
			ID: c.id, UserID: "acc-001",
			Description: "x", Status: model.SubmissionStatusPending,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := s.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("CreateSubmission failed: %v", err)
		}
		if err := s.CompleteSubmission(ctx, c.id, c.flags, c.prob, c.risk); err != nil {
			t.Fatalf("CompleteSubmission failed: %v", err)
		}
	}

	stats, err := s.SubmissionStats(ctx, storage.StatsFilter{UserID: "acc-001"})
	if err != nil {
		t.Fatalf("SubmissionStats failed: %v", err)
	}
	if stats.Total != 2 || stats.ByRiskLevel[model.RiskLevelHigh] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	months, err := s.MonthlySubmissionCounts(ctx, "acc-001", 12)
	if err != nil {
		t.Fatalf("MonthlySubmissionCounts failed: %v", err)
	}
	if len(months) != 1 || months[0].Count != 2 {
		t.Fatalf("unexpected monthly counts: %+v", months)
	}

	top, err := s.TopFlagCategories(ctx, "acc-001", 5)
	if err != nil {
		t.Fatalf("TopFlagCategories failed: %v", err)
	}
	if len(top) != 2 || top[0].Category != model.FlagUpfrontPayment || top[0].Count != 2 {
		t.Fatalf("unexpected top flags: %+v", top)
	}
}
