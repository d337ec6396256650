package rules

import (
	"time"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/model"
)

const day = 24 * time.Hour

// Entitlement is the permission state derived from a snapshot at one instant.
type Entitlement struct {
	InTrial        bool
	DaysLeft       int
	IsTrialExpired bool
	CanScan        bool
	ScansLeft      int
	CanViewResults bool
	NeedsPremium   bool
}

func DeriveEntitlement(s model.EntitlementSnapshot, now time.Time) Entitlement {
	inTrial := InTrial(s, now)
	expired := s.HasStartedTrial && !inTrial
	canScan := s.IsPremium || !s.HasStartedTrial || (inTrial && s.ScanCount < s.MaxScansInTrial)

	scansLeft := Unlimited
	if !s.IsPremium {
		scansLeft = RemainingScans(s.ScanCount, s.MaxScansInTrial)
	}

	return Entitlement{
		InTrial:        inTrial,
		DaysLeft:       DaysLeft(s, now),
		IsTrialExpired: expired,
		CanScan:        canScan,
		ScansLeft:      scansLeft,
		CanViewResults: s.IsPremium || inTrial,
		NeedsPremium:   !s.IsPremium && (expired || !canScan),
	}
}

func InTrial(s model.EntitlementSnapshot, now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// DaysLeft rounds any partial day up and never goes below zero.
func DaysLeft(s model.EntitlementSnapshot, now time.Time) int {
	if s.TrialEndsAt == nil {
		return 0
	}
	remaining := s.TrialEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	return days
}

func TrialEndsAt(start time.Time, days int) time.Time {
	if days <= 0 {
		days = DefaultTrialDays
	}
	return start.Add(time.Duration(days) * day)
}

type Prices struct {
	Monthly float64
	Yearly  float64
}

var DefaultPrices = Prices{Monthly: 8.99, Yearly: 99}

func PlanPrice(plan enums.PlanType, prices Prices) (float64, bool) {
	switch plan {
	case enums.PlanYearly:
		return prices.Yearly, true
	case enums.PlanMonthly:
		return prices.Monthly, true
	default:
		return 0, false
	}
}

func NextBillingDate(plan enums.PlanType, now time.Time) (time.Time, bool) {
	switch plan {
	case enums.PlanYearly:
		return now.AddDate(1, 0, 0), true
	case enums.PlanMonthly:
		return now.AddDate(0, 1, 0), true
	default:
		return time.Time{}, false
	}
}
