package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glowcheck/backend/internal/domain/model"
)

type TrialRepo struct {
	pool *pgxpool.Pool
}

func NewTrialRepo(pool *pgxpool.Pool) *TrialRepo {
	return &TrialRepo{pool: pool}
}

const trialColumns = `
	user_id::text,
	first_scan_at,
	results_unlocked_until,
	trial_started_at,
	trial_ends_at,
	has_payment_method`

func (r *TrialRepo) Get(ctx context.Context, userID string) (model.TrialTracking, error) {
	if strings.TrimSpace(userID) == "" {
		return model.TrialTracking{}, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.TrialTracking{UserID: userID}, nil
	}

	tracking, err := scanTrial(r.pool.QueryRow(ctx, `
SELECT`+trialColumns+`
FROM trial_tracking
WHERE user_id = $1::uuid
LIMIT 1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrialTracking{UserID: userID}, nil
		}
		return model.TrialTracking{}, fmt.Errorf("get trial tracking: %w", err)
	}

	return tracking, nil
}

// ExtendResultsUnlock stamps first_scan_at once and moves results_unlocked_until to until.
func (r *TrialRepo) ExtendResultsUnlock(ctx context.Context, userID string, now, until time.Time) (model.TrialTracking, error) {
	if strings.TrimSpace(userID) == "" || until.IsZero() {
		return model.TrialTracking{}, fmt.Errorf("invalid trial tracking payload")
	}
	if r.pool == nil {
		return model.TrialTracking{}, fmt.Errorf("postgres pool is nil")
	}

	tracking, err := scanTrial(r.pool.QueryRow(ctx, `
INSERT INTO trial_tracking (
	user_id,
	first_scan_at,
	results_unlocked_until,
	updated_at
) VALUES ($1::uuid, $2, $3, NOW())
ON CONFLICT (user_id) DO UPDATE SET
	first_scan_at = COALESCE(trial_tracking.first_scan_at, EXCLUDED.first_scan_at),
	results_unlocked_until = EXCLUDED.results_unlocked_until,
	updated_at = NOW()
RETURNING`+trialColumns+`
`, userID, now.UTC(), until.UTC()))
	if err != nil {
		return model.TrialTracking{}, fmt.Errorf("upsert trial tracking unlock: %w", err)
	}

	return tracking, nil
}

// MarkPaymentMethod records the payment-method-added signal. Trial dates are set only once.
func (r *TrialRepo) MarkPaymentMethod(ctx context.Context, userID string, now, trialEndsAt time.Time) (model.TrialTracking, error) {
	if strings.TrimSpace(userID) == "" || !trialEndsAt.After(now) {
		return model.TrialTracking{}, fmt.Errorf("invalid payment method payload")
	}

	var tracking model.TrialTracking
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO trial_tracking (user_id, has_payment_method, updated_at)
VALUES ($1::uuid, FALSE, NOW())
ON CONFLICT (user_id) DO NOTHING
`, userID); err != nil {
			return fmt.Errorf("ensure trial tracking row: %w", err)
		}

		updated, err := scanTrial(tx.QueryRow(ctx, `
UPDATE trial_tracking
SET
	has_payment_method = TRUE,
	trial_started_at = COALESCE(trial_started_at, $2),
	trial_ends_at = COALESCE(trial_ends_at, $3),
	updated_at = NOW()
WHERE user_id = $1::uuid
RETURNING`+trialColumns+`
`, userID, now.UTC(), trialEndsAt.UTC()))
		if err != nil {
			return fmt.Errorf("mark payment method: %w", err)
		}
		tracking = updated
		return nil
	})
	if err != nil {
		return model.TrialTracking{}, err
	}

	return tracking, nil
}

func scanTrial(row pgx.Row) (model.TrialTracking, error) {
	var tracking model.TrialTracking
	err := row.Scan(
		&tracking.UserID,
		&tracking.FirstScanAt,
		&tracking.ResultsUnlockedUntil,
		&tracking.TrialStartedAt,
		&tracking.TrialEndsAt,
		&tracking.HasPaymentMethod,
	)
	return tracking, err
}
