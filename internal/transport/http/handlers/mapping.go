package handlers

import (
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	"github.com/glowcheck/backend/internal/transport/http/dto"
)

func mapEntitlement(clientID string, v entsvc.View) dto.EntitlementResponse {
	out := dto.EntitlementResponse{
		ClientID:          clientID,
		IsPremium:         v.IsPremium,
		HasStartedTrial:   v.HasStartedTrial,
		TrialStartedAt:    v.TrialStartedAt,
		TrialEndsAt:       v.TrialEndsAt,
		ScanCount:         v.ScanCount,
		MaxScansInTrial:   v.MaxScansInTrial,
		SubscriptionPrice: v.SubscriptionPrice,
		NextBillingDate:   v.NextBillingDate,
		InTrial:           v.InTrial,
		DaysLeft:          v.DaysLeft,
		IsTrialExpired:    v.IsTrialExpired,
		CanScan:           v.CanScan,
		ScansLeft:         v.ScansLeft,
		CanViewResults:    v.CanViewResults,
		NeedsPremium:      v.NeedsPremium,
	}
	if v.SubscriptionType != nil {
		plan := string(*v.SubscriptionType)
		out.SubscriptionType = &plan
	}
	return out
}

func mapUsage(v usagesvc.View) dto.UsageResponse {
	today := make(map[string]int, len(v.UsageToday))
	for feature, count := range v.UsageToday {
		today[string(feature)] = count
	}
	return dto.UsageResponse{
		UserID:               v.UserID,
		IsPremium:            v.IsPremium,
		TrialActive:          v.TrialActive,
		HasPaymentMethod:     v.HasPaymentMethod,
		UsageToday:           today,
		CanScanGlow:          v.CanScanGlow,
		CanScanStyle:         v.CanScanStyle,
		HasUsedFreeGlowScan:  v.HasUsedFreeGlowScan,
		HasUsedFreeStyleScan: v.HasUsedFreeStyleScan,
		GlowScansLeft:        v.GlowScansLeft,
		StyleScansLeft:       v.StyleScansLeft,
		ResultsUnlocked:      v.ResultsUnlocked,
		ResultsUnlockedUntil: v.ResultsUnlockedUntil,
		FirstScanAt:          v.FirstScanAt,
		Stage:                string(v.Stage),
	}
}
