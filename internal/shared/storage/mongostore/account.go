package mongostore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// AccountStore
// ============================================================================

func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) error {
	acc.Email = strings.ToLower(acc.Email)
	return insertOne(ctx, s.col(ColAccounts), acc)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	return findOne[model.Account](ctx, s.col(ColAccounts), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return findOne[model.Account](ctx, s.col(ColAccounts), bson.D{
		{Key: "email", Value: strings.ToLower(email)},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: model.AccountStatusDeleted}}},
	})
}

func (s *Store) GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*model.Account, error) {
	return findOne[model.Account](ctx, s.col(ColAccounts), bson.D{
		{Key: "external_provider", Value: provider},
		{Key: "external_subject", Value: subject},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: model.AccountStatusDeleted}}},
	})
}

func (s *Store) UpdateAccountProfile(ctx context.Context, id, firstName, lastName string) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "first_name", Value: firstName},
		{Key: "last_name", Value: lastName},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) LinkExternalIdentity(ctx context.Context, id, provider, subject string) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "external_provider", Value: provider},
		{Key: "external_subject", Value: subject},
		{Key: "verified", Value: true},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) SoftDeleteAccount(ctx context.Context, id string, at time.Time) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "status", Value: model.AccountStatusDeleted},
		{Key: "deleted_at", Value: at},
		{Key: "updated_at", Value: at},
	})
}

// ============================================================================
// 登录安全计数器
// ============================================================================

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.col(ColAccounts).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "failed_login_attempts", Value: 0},
				{Key: "last_login_at", Value: at},
				{Key: "updated_at", Value: at},
			}},
			{Key: "$unset", Value: bson.D{{Key: "locked_until", Value: ""}}},
		})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// loginFailureRetries CAS 更新的最大重试次数
const loginFailureRetries = 5

// RecordLoginFailure 失败计数的原子递增
//
// 以当前计数值作为更新条件（compare-and-swap），并发失败请求
// 在同一账户上被串行化，5 次失败规则不会被竞态绕过：
//
//	Unlocked(n)  --failure--> Unlocked(n+1)         n+1 < threshold
//	Unlocked(t-1)--failure--> Locked(now+lockFor)   计数清零
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*model.Account, error) {
	for attempt := 0; attempt < loginFailureRetries; attempt++ {
		acc, err := s.GetAccountByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, storage.ErrNotFound
		}

		prev := acc.FailedLoginAttempts
		next := prev + 1
		set := bson.D{{Key: "updated_at", Value: now}}
		if next >= threshold {
			until := now.Add(lockFor)
			set = append(set,
				bson.E{Key: "failed_login_attempts", Value: 0},
				bson.E{Key: "locked_until", Value: until})
			acc.FailedLoginAttempts = 0
			acc.LockedUntil = &until
		} else {
			set = append(set, bson.E{Key: "failed_login_attempts", Value: next})
			acc.FailedLoginAttempts = next
		}

		res, err := s.col(ColAccounts).UpdateOne(ctx,
			bson.D{
				{Key: "_id", Value: id},
				// CAS 条件：计数自读取以来未被并发修改
				{Key: "failed_login_attempts", Value: prev},
			},
			bson.D{{Key: "$set", Value: set}})
		if err != nil {
			return nil, wrapError(err)
		}
		if res.MatchedCount > 0 {
			return acc, nil
		}
		// CAS 未命中：其他请求先行更新，重读后重试
	}
	return nil, storage.ErrConflict
}

// ============================================================================
// 密码重置令牌
// ============================================================================

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return updateFields(ctx, s.col(ColAccounts), id, bson.D{
		{Key: "reset_token_hash", Value: tokenHash},
		{Key: "reset_token_expires", Value: expires},
		{Key: "updated_at", Value: time.Now()},
	})
}

// ConsumeResetToken 单次原子操作完成令牌校验、消费和密码写入，
// 令牌不存在或已过期返回 ErrNotFound。
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*model.Account, error) {
	var acc model.Account
	err := s.col(ColAccounts).FindOneAndUpdate(ctx,
		bson.D{
			{Key: "reset_token_hash", Value: tokenHash},
			{Key: "reset_token_expires", Value: bson.D{{Key: "$gt", Value: now}}},
		},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "password_hash", Value: newPasswordHash},
				{Key: "failed_login_attempts", Value: 0},
				{Key: "updated_at", Value: now},
			}},
			{Key: "$unset", Value: bson.D{
				{Key: "reset_token_hash", Value: ""},
				{Key: "reset_token_expires", Value: ""},
				{Key: "locked_until", Value: ""},
			}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acc)
	if err != nil {
		return nil, wrapError(err)
	}
	return &acc, nil
}

// ============================================================================
// 列表
// ============================================================================

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]*model.Account, int, error) {
	filter := bson.D{}
	total, err := countDocs(ctx, s.col(ColAccounts), filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	accounts, err := findMany[model.Account](ctx, s.col(ColAccounts), filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, total, nil
}
