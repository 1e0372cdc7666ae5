package repository

import (
	"context"
	"fmt"
	"strings"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"
)

// ============================================================================
// StatsStore — 聚合统计全部下推为 GROUP BY 查询
// ============================================================================

// statsWhere 构造统计范围的 WHERE 条件
func statsWhere(filter storage.StatsFilter) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= "+arg(filter.To))
	}
	return strings.Join(where, " AND "), args
}

func (s *Store) SubmissionStats(ctx context.Context, filter storage.StatsFilter) (*storage.SubmissionStats, error) {
	cond, args := statsWhere(filter)

	stats := &storage.SubmissionStats{
		ByRiskLevel: map[model.RiskLevel]int{},
		ByStatus:    map[model.SubmissionStatus]int{},
	}

	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*), COALESCE(AVG(scam_probability), 0) FROM submissions WHERE `+cond),
		args...).Scan(&stats.Total, &stats.AvgProbability)
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT risk_level, COUNT(*) FROM submissions
		 WHERE `+cond+` AND risk_level <> ''
		 GROUP BY risk_level`), args...)
	if err != nil {
		return nil, fmt.Errorf("stats by risk: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		stats.ByRiskLevel[model.RiskLevel(level)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statusRows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT status, COUNT(*) FROM submissions WHERE `+cond+` GROUP BY status`), args...)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var count int
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[model.SubmissionStatus(status)] = count
	}
	return stats, statusRows.Err()
}

// MonthlySubmissionCounts 按方言的月份分桶表达式分组，
// 取最近 months 个有数据的月份，新月份在前。
func (s *Store) MonthlySubmissionCounts(ctx context.Context, userID string, months int) ([]storage.MonthCount, error) {
	bucket := s.dialect.MonthBucket("created_at")
	where := "1=1"
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		where = "user_id = $1"
	}
	args = append(args, months)
	limitPh := fmt.Sprintf("$%d", len(args))

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+bucket+` AS month, COUNT(*) FROM submissions
		 WHERE `+where+`
		 GROUP BY month
		 ORDER BY month DESC
		 LIMIT `+limitPh), args...)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	defer rows.Close()

	out := []storage.MonthCount{}
	for rows.Next() {
		var mc storage.MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// TopFlagCategories 频次降序、类别名升序保证并列时顺序稳定
func (s *Store) TopFlagCategories(ctx context.Context, userID string, k int) ([]storage.FlagCount, error) {
	where := "f.detected = $1"
	args := []any{true}
	if userID != "" {
		args = append(args, userID)
		where += " AND s.user_id = $2"
	}
	args = append(args, k)
	limitPh := fmt.Sprintf("$%d", len(args))

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT f.category, COUNT(*) AS cnt
		 FROM submission_flags f
		 JOIN submissions s ON s.id = f.submission_id
		 WHERE `+where+`
		 GROUP BY f.category
		 ORDER BY cnt DESC, f.category ASC
		 LIMIT `+limitPh), args...)
	if err != nil {
		return nil, fmt.Errorf("top flags: %w", err)
	}
	defer rows.Close()

	out := []storage.FlagCount{}
	for rows.Next() {
		var fc storage.FlagCount
		if err := rows.Scan(&fc.Category, &fc.Count); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}
