package dto

import "time"

type EntitlementResponse struct {
	ClientID          string     `json:"client_id"`
	IsPremium         bool       `json:"is_premium"`
	HasStartedTrial   bool       `json:"has_started_trial"`
	TrialStartedAt    *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty"`
	ScanCount         int        `json:"scan_count"`
	MaxScansInTrial   int        `json:"max_scans_in_trial"`
	SubscriptionType  *string    `json:"subscription_type,omitempty"`
	SubscriptionPrice *float64   `json:"subscription_price,omitempty"`
	NextBillingDate   *time.Time `json:"next_billing_date,omitempty"`
	InTrial           bool       `json:"in_trial"`
	DaysLeft          int        `json:"days_left"`
	IsTrialExpired    bool       `json:"is_trial_expired"`
	CanScan           bool       `json:"can_scan"`
	// ScansLeft is -1 for premium.
	ScansLeft      int  `json:"scans_left"`
	CanViewResults bool `json:"can_view_results"`
	NeedsPremium   bool `json:"needs_premium"`
}

type StartTrialRequest struct {
	Days int `json:"days,omitempty"`
}

type EntitlementScanResponse struct {
	TrialStarted  bool                `json:"trial_started"`
	QuotaExceeded bool                `json:"quota_exceeded"`
	Entitlement   EntitlementResponse `json:"entitlement"`
}
