package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/enums"
	"github.com/glowcheck/backend/internal/domain/rules"
	"github.com/glowcheck/backend/internal/infra/metrics"
	"github.com/glowcheck/backend/internal/services/analysis"
	"github.com/glowcheck/backend/internal/services/entitlements"
	"github.com/glowcheck/backend/internal/services/media"
	"github.com/glowcheck/backend/internal/services/reminders"
	"github.com/glowcheck/backend/internal/services/usage"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrRateLimited     = errors.New("scan rate limited")
	ErrPremiumRequired = errors.New("premium required")
	ErrAnalysisFailed  = errors.New("analysis failed")
)

type Limiter interface {
	AllowScan(ctx context.Context, userID string) (int64, bool, error)
}

type PhotoUploader interface {
	UploadScanPhoto(ctx context.Context, in media.UploadInput) (media.ScanPhoto, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Request) (json.RawMessage, error)
}

type ReminderSyncer interface {
	Sync(ctx context.Context, userID string, in reminders.Input) error
}

// Entitlement is the installed client's EntitlementStore.
type Entitlement interface {
	View() entitlements.View
	IncrementScanCount(ctx context.Context) entitlements.IncrementResult
}

// Ledger is the user's UsageLedger.
type Ledger interface {
	LoadUsage(ctx context.Context) usage.View
	CanScanFeature(feature enums.FeatureType) bool
	IncrementFeatureScan(ctx context.Context, feature enums.FeatureType) (usage.IncrementResult, error)
}

type Dependencies struct {
	Limiter   Limiter
	Photos    PhotoUploader
	Analyzer  Analyzer
	Reminders ReminderSyncer
}

type Service struct {
	limiter   Limiter
	photos    PhotoUploader
	analyzer  Analyzer
	reminders ReminderSyncer
	log       *zap.Logger
	newID     func() string
}

type Input struct {
	UserID      string
	Feature     enums.FeatureType
	ContentType string
	Body        io.Reader
	Size        int64
}

type Result struct {
	AttemptID            string
	Feature              enums.FeatureType
	ObjectKey            string
	Analysis             json.RawMessage
	TrialStarted         bool
	QuotaExceeded        bool
	ShowPaywall          bool
	CanViewResults       bool
	ResultsUnlockedUntil *time.Time
	Entitlement          entitlements.View
	Usage                usage.View
	// RetryAfter is set in seconds when the attempt was throttled.
	RetryAfter int64
}

func NewService(deps Dependencies, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		limiter:   deps.Limiter,
		photos:    deps.Photos,
		analyzer:  deps.Analyzer,
		reminders: deps.Reminders,
		log:       log,
		newID:     uuid.NewString,
	}
}

// Run performs one analysis attempt: throttle, guard, upload, count, analyze,
// then re-sync reminders. Quota is consumed right before the analysis call, so
// a failed analysis still counts.
func (s *Service) Run(ctx context.Context, ent Entitlement, ledger Ledger, in Input) (Result, error) {
	feature, ok := enums.ParseFeatureType(string(in.Feature))
	if !ok || strings.TrimSpace(in.UserID) == "" || in.Body == nil || in.Size <= 0 {
		return Result{}, ErrValidation
	}
	if ent == nil || ledger == nil {
		return Result{}, fmt.Errorf("scan dependencies are not configured")
	}

	res := Result{AttemptID: s.newID(), Feature: feature}
	log := s.log.With(
		zap.String("attempt_id", res.AttemptID),
		zap.String("user_id", in.UserID),
		zap.String("feature", string(feature)),
	)

	if s.limiter != nil {
		retryAfter, allowed, err := s.limiter.AllowScan(ctx, in.UserID)
		if err != nil {
			log.Warn("scan rate limiter failed", zap.Error(err))
		} else if !allowed {
			metrics.Get().ScanAttempt(string(feature), "throttled")
			res.RetryAfter = retryAfter
			return res, ErrRateLimited
		}
	}

	ledger.LoadUsage(ctx)
	if !ent.View().CanScan || !ledger.CanScanFeature(feature) {
		metrics.Get().ScanAttempt(string(feature), "premium_required")
		res.Entitlement = ent.View()
		return res, ErrPremiumRequired
	}

	if s.photos == nil || s.analyzer == nil {
		return res, fmt.Errorf("scan dependencies are not configured")
	}

	photo, err := s.photos.UploadScanPhoto(ctx, media.UploadInput{
		UserID:      in.UserID,
		Feature:     feature,
		AttemptID:   res.AttemptID,
		ContentType: in.ContentType,
		Body:        in.Body,
		Size:        in.Size,
	})
	if err != nil {
		metrics.Get().ScanAttempt(string(feature), "upload_failed")
		return res, fmt.Errorf("upload scan photo: %w", err)
	}
	res.ObjectKey = photo.ObjectKey

	entRes := ent.IncrementScanCount(ctx)
	usageRes, err := ledger.IncrementFeatureScan(ctx, feature)
	if err != nil {
		return res, fmt.Errorf("increment feature scan: %w", err)
	}
	if !usageRes.Recorded {
		log.Warn("feature scan was not recorded remotely")
	}
	res.TrialStarted = entRes.TrialStarted
	res.QuotaExceeded = entRes.QuotaExceeded
	res.ShowPaywall = usageRes.ShowPaywall
	res.ResultsUnlockedUntil = usageRes.ResultsUnlockedUntil

	result, analyzeErr := s.analyzer.Analyze(ctx, analysis.Request{
		AttemptID: res.AttemptID,
		UserID:    in.UserID,
		Feature:   feature,
		ImageURL:  photo.URL,
	})

	res.Entitlement = ent.View()
	res.Usage = usageRes.View
	res.CanViewResults = res.Entitlement.CanViewResults || res.Usage.ResultsUnlocked
	s.syncReminders(ctx, log, in.UserID, res.Entitlement, res.Usage)

	if analyzeErr != nil {
		metrics.Get().ScanAttempt(string(feature), "analysis_failed")
		log.Warn("analysis call failed", zap.Error(analyzeErr))
		return res, fmt.Errorf("%w: %v", ErrAnalysisFailed, analyzeErr)
	}

	res.Analysis = result
	metrics.Get().ScanAttempt(string(feature), "ok")
	log.Info("scan completed",
		zap.Bool("trial_started", res.TrialStarted),
		zap.Bool("quota_exceeded", res.QuotaExceeded),
		zap.Bool("show_paywall", res.ShowPaywall),
	)
	return res, nil
}

func (s *Service) syncReminders(ctx context.Context, log *zap.Logger, userID string, ev entitlements.View, uv usage.View) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.Sync(ctx, userID, ReminderInput(ev, uv)); err != nil {
		log.Warn("sync reminders failed", zap.Error(err))
	}
}

// ReminderInput folds the entitlement and usage views into the scheduler's input.
func ReminderInput(ev entitlements.View, uv usage.View) reminders.Input {
	return reminders.Input{
		IsPremium:       ev.IsPremium,
		IsTrialUser:     ev.InTrial || uv.TrialActive,
		HasUsedFreeScan: uv.Stage != rules.StageFreeUnused,
		TrialDaysLeft:   ev.DaysLeft,
	}
}
