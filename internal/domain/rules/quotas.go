package rules

import (
	"time"

	"github.com/glowcheck/backend/internal/domain/model"
)

const (
	DefaultTrialDays       = 3
	DefaultMaxScansInTrial = 3
	FreeScans              = 1
	TrialDailyScans        = 2
	ResultsUnlockWindow    = 72 * time.Hour

	// Unlimited is reported in place of a remaining count for premium users.
	Unlimited = -1
)

func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

func NextResetAt(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.UTC()
}

// EffectiveUsage treats a counter stamped with another day as unused.
func EffectiveUsage(record model.UsageRecord, today string) int {
	if record.LastResetDate != today || record.UsageCount < 0 {
		return 0
	}
	return record.UsageCount
}

func RemainingScans(used, limit int) int {
	left := limit - used
	if left < 0 {
		return 0
	}
	return left
}
