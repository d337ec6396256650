package model

import (
	"time"

	"github.com/glowcheck/backend/internal/domain/enums"
)

// EntitlementSnapshot is the persisted subscription/trial record of one installed client.
type EntitlementSnapshot struct {
	IsPremium             bool            `json:"isPremium"`
	HasStartedTrial       bool            `json:"hasStartedTrial"`
	TrialStartedAt        *time.Time      `json:"trialStartedAt,omitempty"`
	TrialEndsAt           *time.Time      `json:"trialEndsAt,omitempty"`
	ScanCount             int             `json:"scanCount"`
	MaxScansInTrial       int             `json:"maxScansInTrial"`
	SubscriptionType      *enums.PlanType `json:"subscriptionType,omitempty"`
	SubscriptionPrice     *float64        `json:"subscriptionPrice,omitempty"`
	NextBillingDate       *time.Time      `json:"nextBillingDate,omitempty"`
	PurchaseToken         *string         `json:"purchaseToken,omitempty"`
	OriginalTransactionID *string         `json:"originalTransactionId,omitempty"`
}

func DefaultEntitlementSnapshot(maxScansInTrial int) EntitlementSnapshot {
	return EntitlementSnapshot{MaxScansInTrial: maxScansInTrial}
}
