package mongostore

import (
	"context"
	"fmt"
	"time"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// SubmissionStore
// ============================================================================

func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return insertOne(ctx, s.col(ColSubmissions), sub)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	return findOne[model.Submission](ctx, s.col(ColSubmissions), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) SetSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus) error {
	return updateFields(ctx, s.col(ColSubmissions), id, bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) CompleteSubmission(ctx context.Context, id string, flags []model.WarningFlag, probability int, risk model.RiskLevel) error {
	if flags == nil {
		flags = []model.WarningFlag{}
	}
	return updateFields(ctx, s.col(ColSubmissions), id, bson.D{
		{Key: "flags", Value: flags},
		{Key: "scam_probability", Value: probability},
		{Key: "risk_level", Value: risk},
		{Key: "status", Value: model.SubmissionStatusCompleted},
		{Key: "updated_at", Value: time.Now()},
	})
}

// MarkReportViewed 条件更新：只有未查看过的提交才会写入时间戳，
// 重复调用不改动已有时间戳（幂等）。
func (s *Store) MarkReportViewed(ctx context.Context, id string, at time.Time) error {
	_, err := s.col(ColSubmissions).UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id},
			{Key: "report_viewed", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "report_viewed", Value: true},
			{Key: "report_viewed_at", Value: at},
			{Key: "updated_at", Value: at},
		}}})
	return wrapError(err)
}

func (s *Store) SetSubmissionReported(ctx context.Context, id, reason string) error {
	return updateFields(ctx, s.col(ColSubmissions), id, bson.D{
		{Key: "is_reported", Value: true},
		{Key: "report_reason", Value: reason},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColSubmissions), id)
}

func (s *Store) ListSubmissions(ctx context.Context, filter storage.SubmissionFilter) ([]*model.Submission, int, error) {
	query := bson.D{}
	if filter.UserID != "" {
		query = append(query, bson.E{Key: "user_id", Value: filter.UserID})
	}
	if filter.Status != "" {
		query = append(query, bson.E{Key: "status", Value: filter.Status})
	}
	if filter.RiskLevel != "" {
		query = append(query, bson.E{Key: "risk_level", Value: filter.RiskLevel})
	}

	total, err := countDocs(ctx, s.col(ColSubmissions), query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	subs, err := findMany[model.Submission](ctx, s.col(ColSubmissions), query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	return subs, total, nil
}

func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]*model.Submission, error) {
	query := bson.D{
		{Key: "status", Value: model.SubmissionStatusCompleted},
		{Key: "risk_level", Value: bson.D{{Key: "$in", Value: bson.A{
			model.RiskLevelMedium,
			model.RiskLevelHigh,
		}}}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	return findMany[model.Submission](ctx, s.col(ColSubmissions), query, opts)
}
