package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/services/entitlements"
	"github.com/glowcheck/backend/internal/services/reminders"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedPlan     = errors.New("unsupported plan")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// PurchaseRecorder is the installed client's EntitlementStore.
type PurchaseRecorder interface {
	View() entitlements.View
	RecordPurchase(ctx context.Context, in entitlements.PurchaseConfirmation) (entitlements.View, error)
}

type ReminderSyncer interface {
	Sync(ctx context.Context, userID string, in reminders.Input) error
}

type Service struct {
	reminders ReminderSyncer
	log       *zap.Logger
}

type ConfirmInput struct {
	UserID                string
	Plan                  string
	Provider              string
	PurchaseToken         string
	OriginalTransactionID string
}

type ConfirmResult struct {
	Plan        enums.PlanType
	Provider    enums.StoreProvider
	Idempotent  bool
	Entitlement entitlements.View
}

func NewService(reminders ReminderSyncer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{reminders: reminders, log: log}
}

// Confirm applies a store-verified purchase to the client's entitlements.
// Replaying the same original transaction is a no-op.
func (s *Service) Confirm(ctx context.Context, store PurchaseRecorder, in ConfirmInput) (ConfirmResult, error) {
	if store == nil || strings.TrimSpace(in.PurchaseToken) == "" {
		return ConfirmResult{}, ErrValidation
	}
	plan, ok := enums.ParsePlanType(in.Plan)
	if !ok {
		return ConfirmResult{}, ErrUnsupportedPlan
	}
	provider, ok := enums.ParseStoreProvider(in.Provider)
	if !ok {
		return ConfirmResult{}, ErrUnsupportedProvider
	}

	txID := strings.TrimSpace(in.OriginalTransactionID)
	current := store.View()
	if txID != "" && current.IsPremium && current.OriginalTransactionID != nil && *current.OriginalTransactionID == txID {
		return ConfirmResult{Plan: plan, Provider: provider, Idempotent: true, Entitlement: current}, nil
	}

	view, err := store.RecordPurchase(ctx, entitlements.PurchaseConfirmation{
		Plan:                  plan,
		PurchaseToken:         strings.TrimSpace(in.PurchaseToken),
		OriginalTransactionID: txID,
	})
	if err != nil {
		if errors.Is(err, entitlements.ErrUnknownPlan) {
			return ConfirmResult{}, ErrUnsupportedPlan
		}
		return ConfirmResult{}, fmt.Errorf("record purchase: %w", err)
	}

	s.log.Info("purchase confirmed",
		zap.String("user_id", in.UserID),
		zap.String("plan", string(plan)),
		zap.String("provider", string(provider)),
		zap.String("original_transaction_id", txID),
	)

	if s.reminders != nil && in.UserID != "" {
		if err := s.reminders.Sync(ctx, in.UserID, reminders.Input{IsPremium: true}); err != nil {
			s.log.Warn("cancel reminders after purchase failed", zap.String("user_id", in.UserID), zap.Error(err))
		}
	}

	return ConfirmResult{Plan: plan, Provider: provider, Entitlement: view}, nil
}
