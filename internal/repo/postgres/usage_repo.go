package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/model"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

// IncrementUsage bumps the counter for day through increment_usage_tracking, which
// restarts the count when the stored last_reset_date is another day.
func (r *UsageRepo) IncrementUsage(ctx context.Context, userID string, feature enums.FeatureType, dayKey string) (int, error) {
	if strings.TrimSpace(userID) == "" || feature == "" || strings.TrimSpace(dayKey) == "" {
		return 0, fmt.Errorf("invalid usage increment payload")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var usageCount int
	err := r.pool.QueryRow(ctx, `
SELECT increment_usage_tracking($1::uuid, $2, $3::date)
`, userID, string(feature), dayKey).Scan(&usageCount)
	if err != nil {
		return 0, fmt.Errorf("increment usage tracking: %w", err)
	}

	return usageCount, nil
}

func (r *UsageRepo) ListUsage(ctx context.Context, userID string, features []enums.FeatureType) ([]model.UsageRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("invalid usage lookup payload")
	}
	if r.pool == nil || len(features) == 0 {
		return nil, nil
	}

	types := make([]string, 0, len(features))
	for _, f := range features {
		types = append(types, string(f))
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	feature_type,
	usage_count,
	to_char(last_reset_date, 'YYYY-MM-DD')
FROM usage_tracking
WHERE user_id = $1::uuid AND feature_type = ANY($2)
`, userID, types)
	if err != nil {
		return nil, fmt.Errorf("list usage tracking: %w", err)
	}
	defer rows.Close()

	records := make([]model.UsageRecord, 0, len(features))
	for rows.Next() {
		var (
			featureType string
			record      model.UsageRecord
		)
		if err := rows.Scan(&featureType, &record.UsageCount, &record.LastResetDate); err != nil {
			return nil, fmt.Errorf("scan usage tracking row: %w", err)
		}
		record.UserID = userID
		record.FeatureType = enums.FeatureType(featureType)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage tracking rows: %w", err)
	}

	return records, nil
}
