// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（MongoDB）、repository/（SQL）
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"
	"time"

	"jobshield/internal/shared/model"
)

// ============================================================================
// 账户存储
// ============================================================================

// AccountStore 账户存储接口
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *model.Account) error

	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	// GetAccountByEmail 按邮箱（小写）查找未删除账户，不存在返回 (nil, nil)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*model.Account, error)

	// UpdateAccountProfile 更新姓名
	UpdateAccountProfile(ctx context.Context, id, firstName, lastName string) error
	UpdateAccountPassword(ctx context.Context, id, passwordHash string) error
	UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error
	// LinkExternalIdentity 为本地账户补充外部身份引用，保留本地密码
	LinkExternalIdentity(ctx context.Context, id, provider, subject string) error
	// SoftDeleteAccount 软删除：status=deleted + deleted_at，记录保留
	SoftDeleteAccount(ctx context.Context, id string, at time.Time) error

	// RecordLoginSuccess 登录成功：失败计数清零、解除锁定、刷新 last_login_at
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	// RecordLoginFailure 登录失败的原子计数
	//
	// 以 CAS（当前计数作为更新条件）序列化并发失败请求：
	// 计数达到 threshold 时设置 locked_until = now+lockFor 并清零计数。
	// 返回更新后的账户快照。
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*model.Account, error)

	// SetResetToken 写入密码重置令牌哈希及过期时间（覆盖旧令牌）
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	// ConsumeResetToken 原子消费重置令牌：匹配未过期的 tokenHash，
	// 同时写入新密码哈希并清除令牌。令牌无效或已过期返回 ErrNotFound。
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*model.Account, error)

	ListAccounts(ctx context.Context, limit, offset int) ([]*model.Account, int, error)
}

// ============================================================================
// 提交存储
// ============================================================================

// SubmissionFilter 提交列表过滤条件
type SubmissionFilter struct {
	UserID    string // 为空表示不限所有者（仅 admin 路径使用）
	Status    model.SubmissionStatus
	RiskLevel model.RiskLevel
	Limit     int
	Offset    int
}

// SubmissionStore 提交存储接口
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	// GetSubmission 不存在返回 (nil, nil)
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)

	// SetSubmissionStatus 状态流转（pending→analyzing、→failed）
	SetSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error
	// CompleteSubmission 一次性写入评分结果并置为 completed
	CompleteSubmission(ctx context.Context, id string, flags []model.WarningFlag, probability int, risk model.RiskLevel) error

	// MarkReportViewed 首次查看置位 report_viewed 并记录时间；
	// 已查看过的提交不改动时间戳（条件更新，幂等）。
	MarkReportViewed(ctx context.Context, id string, at time.Time) error
	// SetSubmissionReported 所有者或管理员举报
	SetSubmissionReported(ctx context.Context, id, reason string) error

	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]*model.Submission, int, error)
	// ListRecentAlerts 最近的 completed 且 risk ∈ {medium, high} 的提交，时间倒序
	ListRecentAlerts(ctx context.Context, limit int) ([]*model.Submission, error)
}

// ============================================================================
// 聚合统计（只读）
// ============================================================================

// StatsFilter 统计范围：可选用户、可选时间窗口
type StatsFilter struct {
	UserID string
	From   time.Time // 零值表示不限
	To     time.Time
}

// SubmissionStats 提交总体统计
type SubmissionStats struct {
	Total          int                            `json:"total"`
	AvgProbability float64                        `json:"avgProbability"`
	ByRiskLevel    map[model.RiskLevel]int        `json:"byRiskLevel"`
	ByStatus       map[model.SubmissionStatus]int `json:"byStatus"`
}

// MonthCount 单月提交计数，Month 格式 "2006-01"
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// FlagCount 警告标记类别频次
type FlagCount struct {
	Category model.FlagCategory `json:"category"`
	Count    int                `json:"count"`
}

// StatsStore 聚合统计接口，全部为存储引擎侧的分组计数
type StatsStore interface {
	SubmissionStats(ctx context.Context, filter StatsFilter) (*SubmissionStats, error)
	// MonthlySubmissionCounts 最近 months 个有数据的月份桶，新月份在前
	MonthlySubmissionCounts(ctx context.Context, userID string, months int) ([]MonthCount, error)
	// TopFlagCategories 频次前 k 的 Detected 标记类别；
	// 并列时按类别名升序保证稳定
	TopFlagCategories(ctx context.Context, userID string, k int) ([]FlagCount, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 完整持久化存储
type PersistentStore interface {
	AccountStore
	SubmissionStore
	StatsStore
	Close() error
}
