package dto

import (
	"encoding/json"
	"time"
)

type ScanResponse struct {
	AttemptID            string              `json:"attempt_id"`
	Feature              string              `json:"feature"`
	Analysis             json.RawMessage     `json:"analysis,omitempty"`
	TrialStarted         bool                `json:"trial_started"`
	QuotaExceeded        bool                `json:"quota_exceeded"`
	ShowPaywall          bool                `json:"show_paywall"`
	CanViewResults       bool                `json:"can_view_results"`
	ResultsUnlockedUntil *time.Time          `json:"results_unlocked_until,omitempty"`
	Entitlement          EntitlementResponse `json:"entitlement"`
	Usage                UsageResponse       `json:"usage"`
}

// PremiumRequiredResponse is returned with 402 when the guard refuses a scan.
type PremiumRequiredResponse struct {
	Code        string              `json:"code"`
	Message     string              `json:"message"`
	Entitlement EntitlementResponse `json:"entitlement"`
}
