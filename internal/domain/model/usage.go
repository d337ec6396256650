package model

import (
	"time"

	"github.com/glowcheck/backend/internal/domain/enums"
)

type UsageRecord struct {
	UserID        string
	FeatureType   enums.FeatureType
	UsageCount    int
	LastResetDate string
}

type TrialTracking struct {
	UserID               string
	FirstScanAt          *time.Time
	ResultsUnlockedUntil *time.Time
	TrialStartedAt       *time.Time
	TrialEndsAt          *time.Time
	HasPaymentMethod     bool
}
