package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/model"
	"github.com/glowcheck/backend/internal/infra/metrics"
	"github.com/glowcheck/backend/internal/infra/push"
)

type dueQueue interface {
	PopDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error)
}

type tokenStore interface {
	Get(ctx context.Context, userID string) (string, bool, error)
}

type notifier interface {
	Send(ctx context.Context, msg push.Message) error
}

// Job delivers due reminders through the push notifier.
type Job struct {
	queue     dueQueue
	tokens    tokenStore
	notifier  notifier
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func New(queue dueQueue, tokens tokenStore, notifier notifier, batchSize int, logger *zap.Logger) *Job {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		queue:     queue,
		tokens:    tokens,
		notifier:  notifier,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Run drains due reminders until a batch comes back short. Delivery failures
// are logged per reminder; the reminder is not requeued.
func (j *Job) Run(ctx context.Context) (int, error) {
	if j.queue == nil || j.tokens == nil || j.notifier == nil {
		return 0, nil
	}

	sent := 0
	for {
		due, err := j.queue.PopDue(ctx, j.now(), j.batchSize)
		if err != nil {
			return sent, fmt.Errorf("pop due reminders: %w", err)
		}

		for _, reminder := range due {
			if j.deliver(ctx, reminder) {
				sent++
			}
		}

		if len(due) < j.batchSize || ctx.Err() != nil {
			break
		}
	}

	if sent > 0 {
		j.logger.Info("reminders dispatched", zap.Int("sent", sent))
	}
	return sent, nil
}

// Loop calls Run every interval until ctx is cancelled.
func (j *Job) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Warn("reminder dispatch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (j *Job) deliver(ctx context.Context, reminder model.Reminder) bool {
	token, found, err := j.tokens.Get(ctx, reminder.UserID)
	if err != nil {
		j.logger.Warn("lookup push token failed", zap.String("user_id", reminder.UserID), zap.Error(err))
		metrics.Get().ReminderSent(reminder.Template, "token_error")
		return false
	}
	if !found {
		metrics.Get().ReminderSent(reminder.Template, "no_token")
		return false
	}

	err = j.notifier.Send(ctx, push.Message{
		To:    token,
		Title: reminder.Title,
		Body:  reminder.Body,
		Data: map[string]string{
			"template": reminder.Template,
			"group":    reminder.Group,
		},
	})
	switch {
	case errors.Is(err, push.ErrDeviceNotRegistered):
		j.logger.Info("push device not registered", zap.String("user_id", reminder.UserID))
		metrics.Get().ReminderSent(reminder.Template, "unregistered")
		return false
	case err != nil:
		j.logger.Warn("send reminder failed",
			zap.String("user_id", reminder.UserID),
			zap.String("template", reminder.Template),
			zap.Error(err),
		)
		metrics.Get().ReminderSent(reminder.Template, "error")
		return false
	}

	metrics.Get().ReminderSent(reminder.Template, "ok")
	return true
}
