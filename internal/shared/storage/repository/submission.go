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

// submissionColumns SELECT 列顺序，与 scanSubmission 保持一致
const submissionColumns = `id, user_id, job_url, description, company_name,
	company_email, company_website, file_name, file_path, file_size, content_type,
	scam_probability, risk_level, status, report_viewed, report_viewed_at,
	is_reported, report_reason, created_at, updated_at`

// scanSubmission 从单行扫描 Submission（不含 flags）
func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	var sub model.Submission
	var viewedAt sql.NullTime
	var risk string
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.JobURL, &sub.Description, &sub.CompanyName,
		&sub.CompanyEmail, &sub.CompanyWebsite, &sub.FileName, &sub.FilePath,
		&sub.FileSize, &sub.ContentType, &sub.ScamProbability, &risk, &sub.Status,
		&sub.ReportViewed, &viewedAt, &sub.IsReported, &sub.ReportReason,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	sub.RiskLevel = model.RiskLevel(risk)
	sub.ReportViewedAt = timeOrNil(viewedAt)
	return &sub, nil
}

// loadFlags 批量加载多条提交的标记
func (s *Store) loadFlags(ctx context.Context, subs []*model.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	byID := make(map[string]*model.Submission, len(subs))
	placeholders := make([]string, 0, len(subs))
	args := make([]any, 0, len(subs))
	for i, sub := range subs {
		byID[sub.ID] = sub
		sub.Flags = []model.WarningFlag{}
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, sub.ID)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT submission_id, category, severity, description, detected
		 FROM submission_flags
		 WHERE submission_id IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY id`), args...)
	if err != nil {
		return fmt.Errorf("load flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subID string
		var flag model.WarningFlag
		if err := rows.Scan(&subID, &flag.Category, &flag.Severity, &flag.Description, &flag.Detected); err != nil {
			return err
		}
		if sub := byID[subID]; sub != nil {
			sub.Flags = append(sub.Flags, flag)
		}
	}
	return rows.Err()
}

// ============================================================================
// SubmissionStore
// ============================================================================

func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO submissions (id, user_id, job_url, description, company_name,
			company_email, company_website, file_name, file_path, file_size, content_type,
			scam_probability, risk_level, status, report_viewed, report_viewed_at,
			is_reported, report_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`),
		sub.ID, sub.UserID, sub.JobURL, sub.Description, sub.CompanyName,
		sub.CompanyEmail, sub.CompanyWebsite, sub.FileName, sub.FilePath,
		sub.FileSize, sub.ContentType, sub.ScamProbability, string(sub.RiskLevel),
		sub.Status, sub.ReportViewed, nullableTime(sub.ReportViewedAt),
		sub.IsReported, sub.ReportReason, sub.CreatedAt, sub.UpdatedAt)
	return wrapError(err)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`), id))
	if err != nil || sub == nil {
		return sub, err
	}
	if err := s.loadFlags(ctx, []*model.Submission{sub}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Store) SetSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error {
	return s.execOne(ctx,
		`UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id)
}

// CompleteSubmission 评分结果写入与状态流转在一个事务内完成
func (s *Store) CompleteSubmission(ctx context.Context, id string, flags []model.WarningFlag, probability int, risk model.RiskLevel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE submissions SET scam_probability = $1, risk_level = $2, status = $3,
			updated_at = $4 WHERE id = $5`),
		probability, string(risk), model.SubmissionStatusCompleted, time.Now(), id)
	if err != nil {
		return wrapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	for _, flag := range flags {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO submission_flags (submission_id, category, severity, description, detected)
			 VALUES ($1, $2, $3, $4, $5)`),
			id, flag.Category, flag.Severity, flag.Description, flag.Detected); err != nil {
			return wrapError(err)
		}
	}

	return tx.Commit()
}

// MarkReportViewed 条件更新：只有未查看过的提交才会写入时间戳（幂等）
func (s *Store) MarkReportViewed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE submissions SET report_viewed = $1, report_viewed_at = $2, updated_at = $3
		 WHERE id = $4 AND report_viewed = $5`),
		true, at, at, id, false)
	return wrapError(err)
}

func (s *Store) SetSubmissionReported(ctx context.Context, id, reason string) error {
	return s.execOne(ctx,
		`UPDATE submissions SET is_reported = $1, report_reason = $2, updated_at = $3 WHERE id = $4`,
		true, reason, time.Now(), id)
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	// 标记行由外键级联删除，SQLite 依赖 PRAGMA foreign_keys=ON
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM submissions WHERE id = $1`), id)
	if err != nil {
		return wrapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]*model.Submission, int, error) {
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.RiskLevel != "" {
		where = append(where, "risk_level = "+arg(string(filter.RiskLevel)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM submissions WHERE `+cond), args...).Scan(&total); err != nil {
		return nil, 0, wrapError(err)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	subs := []*model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := s.loadFlags(ctx, subs); err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]*model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE status = $1 AND risk_level IN ($2, $3)
		 ORDER BY created_at DESC LIMIT $4`),
		model.SubmissionStatusCompleted, model.RiskLevelMedium, model.RiskLevelHigh, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	subs := []*model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadFlags(ctx, subs); err != nil {
		return nil, err
	}
	return subs, nil
}
