package dto

import "time"

type UsageResponse struct {
	UserID               string         `json:"user_id"`
	IsPremium            bool           `json:"is_premium"`
	TrialActive          bool           `json:"trial_active"`
	HasPaymentMethod     bool           `json:"has_payment_method"`
	UsageToday           map[string]int `json:"usage_today"`
	CanScanGlow          bool           `json:"can_scan_glow"`
	CanScanStyle         bool           `json:"can_scan_style"`
	HasUsedFreeGlowScan  bool           `json:"has_used_free_glow_scan"`
	HasUsedFreeStyleScan bool           `json:"has_used_free_style_scan"`
	GlowScansLeft        int            `json:"glow_scans_left"`
	StyleScansLeft       int            `json:"style_scans_left"`
	ResultsUnlocked      bool           `json:"results_unlocked"`
	ResultsUnlockedUntil *time.Time     `json:"results_unlocked_until,omitempty"`
	FirstScanAt          *time.Time     `json:"first_scan_at,omitempty"`
	Stage                string         `json:"stage"`
}

type UsageIncrementResponse struct {
	Recorded             bool          `json:"recorded"`
	Count                int           `json:"count"`
	ShowPaywall          bool          `json:"show_paywall"`
	ResultsUnlockedUntil *time.Time    `json:"results_unlocked_until,omitempty"`
	Usage                UsageResponse `json:"usage"`
}
