package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// accountColumns SELECT 列顺序，与 scanAccount 保持一致
const accountColumns = `id, email, first_name, last_name, password_hash,
	external_provider, external_subject, verified, role, status,
	failed_login_attempts, locked_until, reset_token_hash, reset_token_expires,
	last_login_at, created_at, updated_at, deleted_at`

// scanAccount 从单行扫描 Account
func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var acc model.Account
	var lockedUntil, resetExpires, lastLogin, deletedAt sql.NullTime
	err := row.Scan(
		&acc.ID, &acc.Email, &acc.FirstName, &acc.LastName, &acc.PasswordHash,
		&acc.ExternalProvider, &acc.ExternalSubject, &acc.Verified, &acc.Role, &acc.Status,
		&acc.FailedLoginAttempts, &lockedUntil, &acc.ResetTokenHash, &resetExpires,
		&lastLogin, &acc.CreatedAt, &acc.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	acc.LockedUntil = timeOrNil(lockedUntil)
	acc.ResetTokenExpires = timeOrNil(resetExpires)
	acc.LastLoginAt = timeOrNil(lastLogin)
	acc.DeletedAt = timeOrNil(deletedAt)
	return &acc, nil
}

// ============================================================================
// AccountStore
// ============================================================================

func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) error {
	acc.Email = strings.ToLower(acc.Email)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO accounts (id, email, first_name, last_name, password_hash,
			external_provider, external_subject, verified, role, status,
			failed_login_attempts, locked_until, reset_token_hash, reset_token_expires,
			last_login_at, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`),
		acc.ID, acc.Email, acc.FirstName, acc.LastName, acc.PasswordHash,
		acc.ExternalProvider, acc.ExternalSubject, acc.Verified, acc.Role, acc.Status,
		acc.FailedLoginAttempts, nullableTime(acc.LockedUntil), acc.ResetTokenHash,
		nullableTime(acc.ResetTokenExpires), nullableTime(acc.LastLoginAt),
		acc.CreatedAt, acc.UpdatedAt, nullableTime(acc.DeletedAt))
	return wrapError(err)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`), id)
	return scanAccount(row)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 AND status <> $2`),
		strings.ToLower(email), model.AccountStatusDeleted)
	return scanAccount(row)
}

func (s *Store) GetAccountByExternalIdentity(ctx context.Context, provider, subject string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts
		 WHERE external_provider = $1 AND external_subject = $2 AND status <> $3`),
		provider, subject, model.AccountStatusDeleted)
	return scanAccount(row)
}

// execOne 执行更新并要求恰好命中一行
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateAccountProfile(ctx context.Context, id, firstName, lastName string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET first_name = $1, last_name = $2, updated_at = $3 WHERE id = $4`,
		firstName, lastName, time.Now(), id)
}

func (s *Store) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now(), id)
}

func (s *Store) UpdateAccountStatus(ctx context.Context, id string, status model.AccountStatus) error {
	return s.execOne(ctx,
		`UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
}

func (s *Store) LinkExternalIdentity(ctx context.Context, id, provider, subject string) error {
	return s.execOne(ctx,
		`UPDATE accounts SET external_provider = $1, external_subject = $2,
			verified = $3, updated_at = $4 WHERE id = $5`,
		provider, subject, true, time.Now(), id)
}

func (s *Store) SoftDeleteAccount(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE accounts SET status = $1, deleted_at = $2, updated_at = $3 WHERE id = $4`,
		model.AccountStatusDeleted, at, at, id)
}

// ============================================================================
// 登录安全计数器
// ============================================================================

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE accounts SET failed_login_attempts = 0, locked_until = NULL,
			last_login_at = $1, updated_at = $2 WHERE id = $3`,
		at, at, id)
}

// loginFailureRetries CAS 更新的最大重试次数
const loginFailureRetries = 5

// RecordLoginFailure 失败计数的原子递增
//
// UPDATE 的 WHERE 条件带上读取时的计数值（compare-and-swap），
// 并发失败请求在同一账户上被串行化，未命中时重读重试。
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
		var lockedUntil *time.Time
		count := next
		if next >= threshold {
			until := now.Add(lockFor)
			lockedUntil = &until
			count = 0
		}

		res, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE accounts SET failed_login_attempts = $1, locked_until = $2, updated_at = $3
			 WHERE id = $4 AND failed_login_attempts = $5`),
			count, nullableTime(lockedUntil), now, id, prev)
		if err != nil {
			return nil, wrapError(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			acc.FailedLoginAttempts = count
			acc.LockedUntil = lockedUntil
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
	return s.execOne(ctx,
		`UPDATE accounts SET reset_token_hash = $1, reset_token_expires = $2, updated_at = $3
		 WHERE id = $4`,
		tokenHash, expires, time.Now(), id)
}

// ConsumeResetToken 条件更新保证令牌单次使用：
// UPDATE 同时校验哈希与过期时间并清除令牌，未命中即无效。
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newPasswordHash string) (*model.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts
		 WHERE reset_token_hash = $1 AND reset_token_expires > $2`),
		tokenHash, now))
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, storage.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE accounts SET password_hash = $1, reset_token_hash = '',
			reset_token_expires = NULL, failed_login_attempts = 0, locked_until = NULL,
			updated_at = $2
		 WHERE id = $3 AND reset_token_hash = $4`),
		newPasswordHash, now, acc.ID, tokenHash)
	if err != nil {
		return nil, wrapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 并发消费：令牌已被先行请求用掉
		return nil, storage.ErrNotFound
	}

	acc.PasswordHash = newPasswordHash
	acc.ResetTokenHash = ""
	acc.ResetTokenExpires = nil
	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	return acc, nil
}

// ============================================================================
// 列表
// ============================================================================

func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]*model.Account, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, wrapError(err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+accountColumns+` FROM accounts
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*model.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, total, rows.Err()
}
