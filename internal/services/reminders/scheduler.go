package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/model"
	"github.com/glowcheck/backend/internal/infra/metrics"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	Schedule(ctx context.Context, reminder model.Reminder) error
	Cancel(ctx context.Context, userID string, templates ...string) error
	CancelAll(ctx context.Context, userID string) error
}

// Input is the entitlement snapshot the scheduler reacts to.
type Input struct {
	IsPremium       bool
	IsTrialUser     bool
	HasUsedFreeScan bool
	TrialDaysLeft   int
}

type Scheduler struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewScheduler(store Store, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Sync arms the lifecycle reminders whose condition holds and cancels the rest.
// Premium users have every pending reminder cancelled.
func (s *Scheduler) Sync(ctx context.Context, userID string, in Input) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrValidation
	}
	if s.store == nil {
		return nil
	}

	if in.IsPremium {
		if err := s.store.CancelAll(ctx, userID); err != nil {
			return fmt.Errorf("cancel reminders for premium user: %w", err)
		}
		return nil
	}

	wanted := map[string]bool{
		TemplateTrialEnding:    in.IsTrialUser && in.TrialDaysLeft == 1,
		TemplateFreeScanUnused: !in.IsTrialUser && !in.HasUsedFreeScan,
		TemplateUpgradeNudge:   !in.IsTrialUser && in.HasUsedFreeScan,
	}

	now := s.now().UTC()
	var cancel []string
	for _, key := range templateKeys(GroupLifecycle) {
		if !wanted[key] {
			cancel = append(cancel, key)
			continue
		}
		tpl, _ := templateByKey(key)
		if err := s.arm(ctx, userID, tpl, now.Add(tpl.Delay)); err != nil {
			return err
		}
	}

	if len(cancel) > 0 {
		if err := s.store.Cancel(ctx, userID, cancel...); err != nil {
			return fmt.Errorf("cancel lifecycle reminders: %w", err)
		}
	}
	return nil
}

// ScheduleConversion replaces the user's conversion reminders with ones anchored
// to unlockedUntil. Reminders that would already be due are skipped.
func (s *Scheduler) ScheduleConversion(ctx context.Context, userID string, unlockedUntil time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || unlockedUntil.IsZero() {
		return ErrValidation
	}
	if s.store == nil {
		return nil
	}

	if err := s.store.Cancel(ctx, userID, templateKeys(GroupConversion)...); err != nil {
		return fmt.Errorf("cancel conversion reminders: %w", err)
	}

	now := s.now().UTC()
	for _, key := range templateKeys(GroupConversion) {
		tpl, _ := templateByKey(key)
		due := unlockedUntil.UTC().Add(-tpl.Delay)
		if !due.After(now) {
			continue
		}
		if err := s.arm(ctx, userID, tpl, due); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) arm(ctx context.Context, userID string, tpl Template, due time.Time) error {
	err := s.store.Schedule(ctx, model.Reminder{
		UserID:   userID,
		Template: tpl.Key,
		Title:    tpl.Title,
		Body:     tpl.Body,
		DueAt:    due,
		Group:    tpl.Group,
	})
	if err != nil {
		return fmt.Errorf("schedule %s reminder: %w", tpl.Key, err)
	}

	metrics.Get().ReminderArmed(tpl.Key)
	s.log.Debug("reminder armed",
		zap.String("user_id", userID),
		zap.String("template", tpl.Key),
		zap.Time("due_at", due),
	)
	return nil
}
