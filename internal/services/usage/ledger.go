package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/model"
	"github.com/glowcheck/backend/internal/domain/rules"
	"github.com/glowcheck/backend/internal/infra/metrics"
)

var ErrValidation = errors.New("validation error")

type UsageStore interface {
	IncrementUsage(ctx context.Context, userID string, feature enums.FeatureType, dayKey string) (int, error)
	ListUsage(ctx context.Context, userID string, features []enums.FeatureType) ([]model.UsageRecord, error)
}

type TrialStore interface {
	Get(ctx context.Context, userID string) (model.TrialTracking, error)
	ExtendResultsUnlock(ctx context.Context, userID string, now, until time.Time) (model.TrialTracking, error)
	MarkPaymentMethod(ctx context.Context, userID string, now, trialEndsAt time.Time) (model.TrialTracking, error)
}

// EntitlementSource exposes the installed client's subscription flags.
type EntitlementSource interface {
	IsPremium() bool
	HasStartedTrial() bool
}

type ConversionScheduler interface {
	ScheduleConversion(ctx context.Context, userID string, unlockedUntil time.Time) error
}

type Config struct {
	FreeScans           int
	TrialDailyScans     int
	TrialDays           int
	ResultsUnlockWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.FreeScans <= 0 {
		c.FreeScans = rules.FreeScans
	}
	if c.TrialDailyScans <= 0 {
		c.TrialDailyScans = rules.TrialDailyScans
	}
	if c.TrialDays <= 0 {
		c.TrialDays = rules.DefaultTrialDays
	}
	if c.ResultsUnlockWindow <= 0 {
		c.ResultsUnlockWindow = rules.ResultsUnlockWindow
	}
	return c
}

type View struct {
	UserID               string
	IsPremium            bool
	TrialActive          bool
	HasPaymentMethod     bool
	UsageToday           map[enums.FeatureType]int
	CanScanGlow          bool
	CanScanStyle         bool
	HasUsedFreeGlowScan  bool
	HasUsedFreeStyleScan bool
	GlowScansLeft        int
	StyleScansLeft       int
	ResultsUnlocked      bool
	ResultsUnlockedUntil *time.Time
	FirstScanAt          *time.Time
	Stage                rules.Stage
}

type IncrementResult struct {
	// Recorded is true once the remote counter accepted the increment.
	Recorded             bool
	Count                int
	ShowPaywall          bool
	ResultsUnlockedUntil *time.Time
	View                 View
}

// Ledger tracks today's per-feature usage of one user as seen from one installed client.
type Ledger struct {
	userID      string
	entitlement EntitlementSource
	usage       UsageStore
	trials      TrialStore
	reminders   ConversionScheduler
	cfg         Config
	log         *zap.Logger
	now         func() time.Time

	mu         sync.Mutex
	loc        *time.Location
	usageToday map[enums.FeatureType]int
	trial      model.TrialTracking
	stage      rules.Stage
}

type Dependencies struct {
	Usage     UsageStore
	Trials    TrialStore
	Reminders ConversionScheduler
}

func NewLedger(userID string, entitlement EntitlementSource, deps Dependencies, cfg Config, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		userID:      userID,
		entitlement: entitlement,
		usage:       deps.Usage,
		trials:      deps.Trials,
		reminders:   deps.Reminders,
		cfg:         cfg.withDefaults(),
		log:         log,
		now:         time.Now,
		loc:         time.UTC,
		usageToday:  make(map[enums.FeatureType]int, len(enums.Features)),
		trial:       model.TrialTracking{UserID: userID},
	}
}

// SetLocation selects the timezone whose calendar day the counters belong to.
func (l *Ledger) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	l.mu.Lock()
	l.loc = loc
	l.mu.Unlock()
}

// LoadUsage refreshes trial tracking and today's counters. On failure the
// previous in-memory values are kept.
func (l *Ledger) LoadUsage(ctx context.Context) View {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loadLocked(ctx)
	return l.viewLocked()
}

func (l *Ledger) loadLocked(ctx context.Context) {
	if l.usage == nil || l.trials == nil {
		return
	}

	trial, err := l.trials.Get(ctx, l.userID)
	if err != nil {
		l.storageFailure("load trial tracking failed", "trial_load", err)
		return
	}
	records, err := l.usage.ListUsage(ctx, l.userID, enums.Features)
	if err != nil {
		l.storageFailure("load usage tracking failed", "usage_load", err)
		return
	}

	today := rules.DayKey(l.now(), l.loc)
	next := make(map[enums.FeatureType]int, len(enums.Features))
	for _, rec := range records {
		next[rec.FeatureType] = rules.EffectiveUsage(rec, today)
	}

	l.trial = trial
	l.usageToday = next
	l.trackStageLocked()
}

func (l *Ledger) CanScanFeature(feature enums.FeatureType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.canScanLocked(feature)
}

func (l *Ledger) canScanLocked(feature enums.FeatureType) bool {
	if l.isPremiumLocked() {
		return true
	}
	return l.usageToday[feature] < l.limitLocked()
}

// IncrementFeatureScan records one scan of feature. The chain is increment,
// results unlock, conversion reminders, reload. A failed remote step is logged
// and stops the chain; local counters only move through the final reload.
func (l *Ledger) IncrementFeatureScan(ctx context.Context, feature enums.FeatureType) (IncrementResult, error) {
	if _, ok := enums.ParseFeatureType(string(feature)); !ok {
		return IncrementResult{}, ErrValidation
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.usage == nil || l.trials == nil {
		l.log.Warn("usage ledger has no remote store", zap.String("user_id", l.userID))
		return IncrementResult{View: l.viewLocked()}, nil
	}

	now := l.now().UTC()
	count, err := l.usage.IncrementUsage(ctx, l.userID, feature, rules.DayKey(now, l.loc))
	if err != nil {
		l.storageFailure("increment usage failed", "usage_increment", err, zap.String("feature", string(feature)))
		return IncrementResult{View: l.viewLocked()}, nil
	}

	res := IncrementResult{Recorded: true, Count: count}
	// The server count wins; the local one may come from a load that failed.
	newCount := count
	if newCount <= 0 {
		newCount = l.usageToday[feature] + 1
	}
	if l.freeTierLocked() && newCount >= l.cfg.FreeScans {
		res.ShowPaywall = true
		metrics.Get().PaywallShown("free_scan_used")
	}

	until := now.Add(l.cfg.ResultsUnlockWindow)
	if _, err := l.trials.ExtendResultsUnlock(ctx, l.userID, now, until); err != nil {
		l.storageFailure("extend results unlock failed", "trial_unlock", err, zap.Int("count", count))
		res.View = l.viewLocked()
		return res, nil
	}
	res.ResultsUnlockedUntil = &until

	if l.reminders != nil {
		if err := l.reminders.ScheduleConversion(ctx, l.userID, until); err != nil {
			l.log.Warn("schedule conversion reminders failed", zap.String("user_id", l.userID), zap.Error(err))
		}
	}

	l.loadLocked(ctx)
	res.View = l.viewLocked()
	return res, nil
}

// RecordPaymentMethod applies the payment-method-added signal that activates the daily trial allowance.
func (l *Ledger) RecordPaymentMethod(ctx context.Context) (View, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.trials == nil {
		return l.viewLocked(), fmt.Errorf("trial store is nil")
	}

	now := l.now().UTC()
	trial, err := l.trials.MarkPaymentMethod(ctx, l.userID, now, rules.TrialEndsAt(now, l.cfg.TrialDays))
	if err != nil {
		l.storageFailure("record payment method failed", "trial_payment_method", err)
		return l.viewLocked(), fmt.Errorf("record payment method: %w", err)
	}

	l.trial = trial
	l.trackStageLocked()
	return l.viewLocked(), nil
}

func (l *Ledger) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.viewLocked()
}

func (l *Ledger) viewLocked() View {
	now := l.now().UTC()
	premium := l.isPremiumLocked()
	usage := make(map[enums.FeatureType]int, len(enums.Features))
	for _, f := range enums.Features {
		usage[f] = l.usageToday[f]
	}

	v := View{
		UserID:               l.userID,
		IsPremium:            premium,
		TrialActive:          l.trialActiveLocked(),
		HasPaymentMethod:     l.trial.HasPaymentMethod,
		UsageToday:           usage,
		CanScanGlow:          l.canScanLocked(enums.FeatureGlowAnalysis),
		CanScanStyle:         l.canScanLocked(enums.FeatureStyleAnalysis),
		HasUsedFreeGlowScan:  usage[enums.FeatureGlowAnalysis] >= l.cfg.FreeScans,
		HasUsedFreeStyleScan: usage[enums.FeatureStyleAnalysis] >= l.cfg.FreeScans,
		GlowScansLeft:        l.scansLeftLocked(enums.FeatureGlowAnalysis),
		StyleScansLeft:       l.scansLeftLocked(enums.FeatureStyleAnalysis),
		ResultsUnlockedUntil: cloneTime(l.trial.ResultsUnlockedUntil),
		FirstScanAt:          cloneTime(l.trial.FirstScanAt),
		Stage:                l.currentStageLocked(),
	}
	v.ResultsUnlocked = premium || (l.trial.ResultsUnlockedUntil != nil && l.trial.ResultsUnlockedUntil.After(now))
	return v
}

func (l *Ledger) scansLeftLocked(feature enums.FeatureType) int {
	if l.isPremiumLocked() {
		return rules.Unlimited
	}
	return rules.RemainingScans(l.usageToday[feature], l.limitLocked())
}

func (l *Ledger) limitLocked() int {
	if l.trialActiveLocked() {
		return l.cfg.TrialDailyScans
	}
	return l.cfg.FreeScans
}

func (l *Ledger) isPremiumLocked() bool {
	return l.entitlement != nil && l.entitlement.IsPremium()
}

// trialActiveLocked is hasStartedTrial AND hasAddedPayment. A trial started
// through the payment-method signal counts as started.
func (l *Ledger) trialActiveLocked() bool {
	started := l.trial.TrialStartedAt != nil
	if l.entitlement != nil && l.entitlement.HasStartedTrial() {
		started = true
	}
	return started && l.trial.HasPaymentMethod
}

func (l *Ledger) freeTierLocked() bool {
	return !l.isPremiumLocked() && !l.trialActiveLocked()
}

func (l *Ledger) currentStageLocked() rules.Stage {
	usedFree := false
	for _, f := range enums.Features {
		if l.usageToday[f] >= l.cfg.FreeScans {
			usedFree = true
		}
	}
	if l.trial.FirstScanAt != nil {
		usedFree = true
	}
	return rules.DeriveStage(l.isPremiumLocked(), l.trialActiveLocked(), usedFree)
}

func (l *Ledger) trackStageLocked() {
	next := l.currentStageLocked()
	prev := l.stage
	l.stage = next
	if prev == "" || prev == next {
		return
	}
	if !rules.CanTransition(prev, next) {
		l.log.Warn("unexpected freemium stage change",
			zap.String("user_id", l.userID),
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
		)
		return
	}
	l.log.Info("freemium stage changed",
		zap.String("user_id", l.userID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
}

func (l *Ledger) storageFailure(msg, op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("user_id", l.userID), zap.Error(err))
	l.log.Warn(msg, fields...)
	metrics.Get().StorageFailure(op)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
