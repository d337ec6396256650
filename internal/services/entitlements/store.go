package entitlements

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/model"
	"github.com/glowcheck/backend/internal/domain/rules"
	"github.com/glowcheck/backend/internal/infra/metrics"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrUnknownPlan = errors.New("unknown plan type")
)

// SnapshotStore persists one entitlement snapshot per installed client. Update
// applies fn to the stored record and writes the result atomically; fn may run
// more than once when another writer got there first.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (model.EntitlementSnapshot, bool, error)
	Update(
		ctx context.Context,
		key string,
		fn func(current model.EntitlementSnapshot, found bool) (model.EntitlementSnapshot, error),
	) (model.EntitlementSnapshot, error)
}

type Config struct {
	TrialDays       int
	MaxScansInTrial int
	Prices          rules.Prices
}

func (c Config) withDefaults() Config {
	if c.TrialDays <= 0 {
		c.TrialDays = rules.DefaultTrialDays
	}
	if c.MaxScansInTrial <= 0 {
		c.MaxScansInTrial = rules.DefaultMaxScansInTrial
	}
	if c.Prices.Monthly <= 0 && c.Prices.Yearly <= 0 {
		c.Prices = rules.DefaultPrices
	}
	return c
}

// View is the snapshot together with every derived permission at one instant.
type View struct {
	model.EntitlementSnapshot
	rules.Entitlement
}

type IncrementResult struct {
	TrialStarted  bool
	QuotaExceeded bool
	View          View
}

type PurchaseConfirmation struct {
	Plan                  enums.PlanType
	PurchaseToken         string
	OriginalTransactionID string
}

// Store owns the entitlement state of one installed client. Every mutation is
// applied to the freshest stored record. Storage failures are logged; the
// in-memory state still advances so the caller never sees them.
type Store struct {
	key   string
	store SnapshotStore
	cfg   Config
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	loaded   bool
	snapshot model.EntitlementSnapshot
}

func NewStore(key string, store SnapshotStore, cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	return &Store{
		key:      key,
		store:    store,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		snapshot: model.DefaultEntitlementSnapshot(cfg.MaxScansInTrial),
	}
}

// Load reads the persisted snapshot. A missing record keeps defaults; a failed
// read keeps defaults too and is retried on the next Load.
func (s *Store) Load(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.loadLocked(ctx)
	}
	return s.viewLocked()
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.store == nil {
		s.loaded = true
		return
	}

	snapshot, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("load entitlement snapshot failed", zap.String("key", s.key), zap.Error(err))
		metrics.Get().StorageFailure("entitlement_load")
		return
	}
	s.loaded = true
	if !found {
		return
	}
	s.snapshot = s.normalize(snapshot)
}

func (s *Store) normalize(snapshot model.EntitlementSnapshot) model.EntitlementSnapshot {
	if snapshot.MaxScansInTrial <= 0 {
		snapshot.MaxScansInTrial = s.cfg.MaxScansInTrial
	}
	if snapshot.ScanCount < 0 {
		snapshot.ScanCount = 0
	}
	return snapshot
}

// StartTrial arms a fresh trial. Calling it again re-arms and clears the scan count.
func (s *Store) StartTrial(ctx context.Context, days int) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	_ = s.mutateLocked(ctx, func(snapshot *model.EntitlementSnapshot) error {
		s.startTrial(snapshot, now, days)
		return nil
	})
	metrics.Get().TrialStarted("explicit")
	return s.viewLocked()
}

func (s *Store) startTrial(snapshot *model.EntitlementSnapshot, now time.Time, days int) {
	if days <= 0 {
		days = s.cfg.TrialDays
	}

	start := now
	ends := rules.TrialEndsAt(now, days)
	snapshot.TrialStartedAt = &start
	snapshot.TrialEndsAt = &ends
	snapshot.HasStartedTrial = true
	snapshot.ScanCount = 0
}

// SetPremium records the subscription flag and its billing fields. Trial fields are untouched.
func (s *Store) SetPremium(ctx context.Context, isPremium bool, plan enums.PlanType) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	err := s.mutateLocked(ctx, func(snapshot *model.EntitlementSnapshot) error {
		return s.setPremium(snapshot, isPremium, plan, now)
	})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(), nil
}

func (s *Store) RecordPurchase(ctx context.Context, in PurchaseConfirmation) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	err := s.mutateLocked(ctx, func(snapshot *model.EntitlementSnapshot) error {
		if err := s.setPremium(snapshot, true, in.Plan, now); err != nil {
			return err
		}
		if in.PurchaseToken != "" {
			token := in.PurchaseToken
			snapshot.PurchaseToken = &token
		}
		if in.OriginalTransactionID != "" {
			txID := in.OriginalTransactionID
			snapshot.OriginalTransactionID = &txID
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.viewLocked(), nil
}

func (s *Store) setPremium(snapshot *model.EntitlementSnapshot, isPremium bool, plan enums.PlanType, now time.Time) error {
	price, ok := rules.PlanPrice(plan, s.cfg.Prices)
	if !ok {
		return ErrUnknownPlan
	}
	next, _ := rules.NextBillingDate(plan, now)

	snapshot.IsPremium = isPremium
	snapshot.SubscriptionType = &plan
	snapshot.SubscriptionPrice = &price
	snapshot.NextBillingDate = &next
	return nil
}

// IncrementScanCount does not check CanScan; callers guard first. The very first
// scan of a client that never had a trial starts one instead of counting.
func (s *Store) IncrementScanCount(ctx context.Context) IncrementResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var trialStarted bool
	_ = s.mutateLocked(ctx, func(snapshot *model.EntitlementSnapshot) error {
		trialStarted = !snapshot.HasStartedTrial && !snapshot.IsPremium
		if trialStarted {
			s.startTrial(snapshot, now, s.cfg.TrialDays)
			return nil
		}
		snapshot.ScanCount++
		return nil
	})

	view := s.viewLocked()
	if trialStarted {
		metrics.Get().TrialStarted("first_scan")
		return IncrementResult{TrialStarted: true, View: view}
	}

	exceeded := !view.IsPremium && !view.IsTrialExpired && view.ScanCount >= view.MaxScansInTrial
	if exceeded {
		metrics.Get().PaywallShown("trial_quota")
	}
	return IncrementResult{QuotaExceeded: exceeded, View: view}
}

func (s *Store) Reset(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.mutateLocked(ctx, func(snapshot *model.EntitlementSnapshot) error {
		*snapshot = model.DefaultEntitlementSnapshot(s.cfg.MaxScansInTrial)
		return nil
	})
	return s.viewLocked()
}

// View recomputes the derivations against the current clock.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.viewLocked()
}

func (s *Store) IsPremium() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot.IsPremium
}

func (s *Store) HasStartedTrial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot.HasStartedTrial
}

func (s *Store) viewLocked() View {
	return View{
		EntitlementSnapshot: cloneSnapshot(s.snapshot),
		Entitlement:         rules.DeriveEntitlement(s.snapshot, s.now().UTC()),
	}
}

// mutateLocked applies fn to the stored record and adopts the written result.
// Only errors returned by fn reach the caller. When storage fails, fn is
// applied to the in-memory copy alone so nothing stale is written back.
func (s *Store) mutateLocked(ctx context.Context, fn func(snapshot *model.EntitlementSnapshot) error) error {
	if s.store == nil {
		return s.applyLocal(fn)
	}

	var fnErr error
	next, err := s.store.Update(ctx, s.key, func(current model.EntitlementSnapshot, found bool) (model.EntitlementSnapshot, error) {
		if !found {
			current = model.DefaultEntitlementSnapshot(s.cfg.MaxScansInTrial)
		}
		current = s.normalize(cloneSnapshot(current))
		if fnErr = fn(&current); fnErr != nil {
			return model.EntitlementSnapshot{}, fnErr
		}
		return current, nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		s.log.Warn("persist entitlement snapshot failed", zap.String("key", s.key), zap.Error(err))
		metrics.Get().StorageFailure("entitlement_save")
		return s.applyLocal(fn)
	}

	s.snapshot = s.normalize(next)
	s.loaded = true
	return nil
}

func (s *Store) applyLocal(fn func(snapshot *model.EntitlementSnapshot) error) error {
	next := cloneSnapshot(s.snapshot)
	if err := fn(&next); err != nil {
		return err
	}
	s.snapshot = next
	return nil
}

func cloneSnapshot(in model.EntitlementSnapshot) model.EntitlementSnapshot {
	out := in
	out.TrialStartedAt = cloneTime(in.TrialStartedAt)
	out.TrialEndsAt = cloneTime(in.TrialEndsAt)
	out.NextBillingDate = cloneTime(in.NextBillingDate)
	if in.SubscriptionType != nil {
		v := *in.SubscriptionType
		out.SubscriptionType = &v
	}
	if in.SubscriptionPrice != nil {
		v := *in.SubscriptionPrice
		out.SubscriptionPrice = &v
	}
	if in.PurchaseToken != nil {
		v := *in.PurchaseToken
		out.PurchaseToken = &v
	}
	if in.OriginalTransactionID != nil {
		v := *in.OriginalTransactionID
		out.OriginalTransactionID = &v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
