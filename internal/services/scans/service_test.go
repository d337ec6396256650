package scans

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/rules"
	"github.com/glowcheck/backend/internal/services/analysis"
	"github.com/glowcheck/backend/internal/services/entitlements"
	"github.com/glowcheck/backend/internal/services/media"
	"github.com/glowcheck/backend/internal/services/reminders"
	"github.com/glowcheck/backend/internal/services/usage"
)

const userID = "3e7f3c2a-1b7d-4f0a-9c55-6a2f1d9b8e31"

type fakeEntitlement struct {
	view       entitlements.View
	increments int
}

func (f *fakeEntitlement) View() entitlements.View {
	return f.view
}

func (f *fakeEntitlement) IncrementScanCount(context.Context) entitlements.IncrementResult {
	f.increments++
	started := !f.view.HasStartedTrial
	f.view.HasStartedTrial = true
	f.view.InTrial = true
	return entitlements.IncrementResult{TrialStarted: started, View: f.view}
}

type fakeLedger struct {
	canScan    bool
	loads      int
	increments []enums.FeatureType
	unlock     time.Time
}

func (f *fakeLedger) LoadUsage(context.Context) usage.View {
	f.loads++
	return usage.View{}
}

func (f *fakeLedger) CanScanFeature(enums.FeatureType) bool {
	return f.canScan
}

func (f *fakeLedger) IncrementFeatureScan(_ context.Context, feature enums.FeatureType) (usage.IncrementResult, error) {
	f.increments = append(f.increments, feature)
	return usage.IncrementResult{
		Recorded:             true,
		Count:                1,
		ShowPaywall:          true,
		ResultsUnlockedUntil: &f.unlock,
		View:                 usage.View{ResultsUnlocked: true, Stage: rules.StageFreeUsed},
	}, nil
}

type fakeLimiter struct {
	allowed    bool
	retryAfter int64
}

func (f fakeLimiter) AllowScan(context.Context, string) (int64, bool, error) {
	return f.retryAfter, f.allowed, nil
}

type fakePhotos struct {
	uploads []media.UploadInput
}

func (f *fakePhotos) UploadScanPhoto(_ context.Context, in media.UploadInput) (media.ScanPhoto, error) {
	f.uploads = append(f.uploads, in)
	key := media.ScanObjectKey(in.UserID, in.Feature, in.AttemptID, ".jpg")
	return media.ScanPhoto{ObjectKey: key, URL: "https://signed.local/" + key}, nil
}

type fakeAnalyzer struct {
	requests []analysis.Request
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, in analysis.Request) (json.RawMessage, error) {
	f.requests = append(f.requests, in)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"score":91}`), nil
}

type fakeReminders struct {
	inputs []reminders.Input
}

func (f *fakeReminders) Sync(_ context.Context, _ string, in reminders.Input) error {
	f.inputs = append(f.inputs, in)
	return nil
}

type fixture struct {
	svc       *Service
	ent       *fakeEntitlement
	ledger    *fakeLedger
	photos    *fakePhotos
	analyzer  *fakeAnalyzer
	reminders *fakeReminders
}

func newFixture(limiter Limiter) *fixture {
	f := &fixture{
		ent:       &fakeEntitlement{view: entitlements.View{Entitlement: rules.Entitlement{CanScan: true}}},
		ledger:    &fakeLedger{canScan: true, unlock: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)},
		photos:    &fakePhotos{},
		analyzer:  &fakeAnalyzer{},
		reminders: &fakeReminders{},
	}
	f.svc = NewService(Dependencies{
		Limiter:   limiter,
		Photos:    f.photos,
		Analyzer:  f.analyzer,
		Reminders: f.reminders,
	}, nil)
	f.svc.newID = func() string { return "attempt-1" }
	return f
}

func input(feature enums.FeatureType) Input {
	return Input{
		UserID:      userID,
		Feature:     feature,
		ContentType: "image/jpeg",
		Body:        strings.NewReader("photo"),
		Size:        5,
	}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(fakeLimiter{allowed: true})

	res, err := f.svc.Run(context.Background(), f.ent, f.ledger, input(enums.FeatureGlowAnalysis))
	if err != nil {
		t.Fatalf("run scan: %v", err)
	}

	if res.AttemptID != "attempt-1" || res.ObjectKey != "scans/"+userID+"/glow_analysis/attempt-1.jpg" {
		t.Fatalf("unexpected attempt identifiers: %+v", res)
	}
	if string(res.Analysis) != `{"score":91}` {
		t.Fatalf("unexpected analysis %s", res.Analysis)
	}
	if !res.TrialStarted || !res.ShowPaywall || !res.CanViewResults || res.ResultsUnlockedUntil == nil {
		t.Fatalf("unexpected flags: %+v", res)
	}
	if f.ent.increments != 1 || len(f.ledger.increments) != 1 {
		t.Fatalf("expected one increment on each counter")
	}
	if len(f.analyzer.requests) != 1 || f.analyzer.requests[0].ImageURL == "" {
		t.Fatalf("expected analysis with presigned url, got %+v", f.analyzer.requests)
	}
	if len(f.reminders.inputs) != 1 || !f.reminders.inputs[0].HasUsedFreeScan || !f.reminders.inputs[0].IsTrialUser {
		t.Fatalf("unexpected reminder sync: %+v", f.reminders.inputs)
	}
}

func TestRunBlockedByGuardDoesNotCount(t *testing.T) {
	f := newFixture(nil)
	f.ledger.canScan = false

	_, err := f.svc.Run(context.Background(), f.ent, f.ledger, input(enums.FeatureStyleAnalysis))
	if !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("expected ErrPremiumRequired, got %v", err)
	}
	if f.ledger.loads != 1 {
		t.Fatalf("expected usage refresh before the guard")
	}
	if len(f.photos.uploads) != 0 || f.ent.increments != 0 || len(f.ledger.increments) != 0 {
		t.Fatalf("blocked scan must not upload or count")
	}
}

func TestRunBlockedByEntitlement(t *testing.T) {
	f := newFixture(nil)
	f.ent.view.CanScan = false

	if _, err := f.svc.Run(context.Background(), f.ent, f.ledger, input(enums.FeatureGlowAnalysis)); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("expected ErrPremiumRequired, got %v", err)
	}
}

func TestRunThrottled(t *testing.T) {
	f := newFixture(fakeLimiter{allowed: false, retryAfter: 7})

	res, err := f.svc.Run(context.Background(), f.ent, f.ledger, input(enums.FeatureGlowAnalysis))
	if !errors.Is(err, ErrRateLimited) || res.RetryAfter != 7 {
		t.Fatalf("expected throttle with retry_after=7, got res=%+v err=%v", res, err)
	}
	if f.ledger.loads != 0 || f.ent.increments != 0 {
		t.Fatalf("throttled scan must not touch the ledger")
	}
}

func TestRunAnalysisFailureStillCounts(t *testing.T) {
	f := newFixture(nil)
	f.analyzer.err = errors.New("vision api down")

	res, err := f.svc.Run(context.Background(), f.ent, f.ledger, input(enums.FeatureGlowAnalysis))
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
	if f.ent.increments != 1 || len(f.ledger.increments) != 1 {
		t.Fatalf("expected counters to be consumed before the analysis call")
	}
	if res.Analysis != nil || len(f.reminders.inputs) != 1 {
		t.Fatalf("expected reminders synced and no analysis, got %+v", res)
	}
}

func TestRunValidatesInput(t *testing.T) {
	f := newFixture(nil)
	in := input(enums.FeatureType("hair"))
	if _, err := f.svc.Run(context.Background(), f.ent, f.ledger, in); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReminderInputPremium(t *testing.T) {
	ev := entitlements.View{}
	ev.IsPremium = true
	ev.DaysLeft = 2
	in := ReminderInput(ev, usage.View{Stage: rules.StageFreeUnused})
	if !in.IsPremium || in.HasUsedFreeScan || in.TrialDaysLeft != 2 {
		t.Fatalf("unexpected reminder input: %+v", in)
	}
}
