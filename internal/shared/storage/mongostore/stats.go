package mongostore

import (
	"context"
	"fmt"

	"jobshield/internal/shared/model"
	"jobshield/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// StatsStore — 聚合统计全部下推到 MongoDB 聚合管线
// ============================================================================

// statsMatch 构造统计范围的 $match 条件
func statsMatch(filter storage.StatsFilter) bson.D {
	match := bson.D{}
	if filter.UserID != "" {
		match = append(match, bson.E{Key: "user_id", Value: filter.UserID})
	}
	created := bson.D{}
	if !filter.From.IsZero() {
		created = append(created, bson.E{Key: "$gte", Value: filter.From})
	}
	if !filter.To.IsZero() {
		created = append(created, bson.E{Key: "$lte", Value: filter.To})
	}
	if len(created) > 0 {
		match = append(match, bson.E{Key: "created_at", Value: created})
	}
	return match
}

// SubmissionStats 一次 $facet 管线同时计算总量、均值和两个分组计数
func (s *Store) SubmissionStats(ctx context.Context, filter storage.StatsFilter) (*storage.SubmissionStats, error) {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: statsMatch(filter)}},
		bson.D{{Key: "$facet", Value: bson.D{
			{Key: "totals", Value: bson.A{
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: nil},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
					{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$scam_probability"}}},
				}}},
			}},
			{Key: "byRisk", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "risk_level", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: "$risk_level"},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
				}}},
			}},
			{Key: "byStatus", Value: bson.A{
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: "$status"},
					{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
				}}},
			}},
		}}},
	}

	cursor, err := s.col(ColSubmissions).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []struct {
		Totals []struct {
			Count int     `bson:"count"`
			Avg   float64 `bson:"avg"`
		} `bson:"totals"`
		ByRisk []struct {
			ID    string `bson:"_id"`
			Count int    `bson:"count"`
		} `bson:"byRisk"`
		ByStatus []struct {
			ID    string `bson:"_id"`
			Count int    `bson:"count"`
		} `bson:"byStatus"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("submission stats decode: %w", err)
	}

	stats := &storage.SubmissionStats{
		ByRiskLevel: map[model.RiskLevel]int{},
		ByStatus:    map[model.SubmissionStatus]int{},
	}
	if len(raw) == 0 {
		return stats, nil
	}
	if len(raw[0].Totals) > 0 {
		stats.Total = raw[0].Totals[0].Count
		stats.AvgProbability = raw[0].Totals[0].Avg
	}
	for _, r := range raw[0].ByRisk {
		if r.ID != "" {
			stats.ByRiskLevel[model.RiskLevel(r.ID)] = r.Count
		}
	}
	for _, r := range raw[0].ByStatus {
		stats.ByStatus[model.SubmissionStatus(r.ID)] = r.Count
	}
	return stats, nil
}

// MonthlySubmissionCounts 按 $dateToString 的 "%Y-%m" 分桶，
// 取最近 months 个有数据的月份，新月份在前。
func (s *Store) MonthlySubmissionCounts(ctx context.Context, userID string, months int) ([]storage.MonthCount, error) {
	match := bson.D{}
	if userID != "" {
		match = append(match, bson.E{Key: "user_id", Value: userID})
	}

	pipeline := bson.A{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m"},
				{Key: "date", Value: "$created_at"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		bson.D{{Key: "$limit", Value: months}},
	}

	cursor, err := s.col(ColSubmissions).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []struct {
		ID    string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("monthly counts decode: %w", err)
	}

	out := make([]storage.MonthCount, 0, len(raw))
	for _, r := range raw {
		out = append(out, storage.MonthCount{Month: r.ID, Count: r.Count})
	}
	return out, nil
}

// TopFlagCategories $unwind 标记数组后按类别分组计数，
// 频次降序、类别名升序保证并列时顺序稳定。
func (s *Store) TopFlagCategories(ctx context.Context, userID string, k int) ([]storage.FlagCount, error) {
	match := bson.D{}
	if userID != "" {
		match = append(match, bson.E{Key: "user_id", Value: userID})
	}

	pipeline := bson.A{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$unwind", Value: "$flags"}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "flags.detected", Value: true}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$flags.category"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "count", Value: -1},
			{Key: "_id", Value: 1},
		}}},
		bson.D{{Key: "$limit", Value: k}},
	}

	cursor, err := s.col(ColSubmissions).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("top flags: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []struct {
		ID    string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("top flags decode: %w", err)
	}

	out := make([]storage.FlagCount, 0, len(raw))
	for _, r := range raw {
		out = append(out, storage.FlagCount{Category: model.FlagCategory(r.ID), Count: r.Count})
	}
	return out, nil
}
