package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glowcheck/backend/internal/domain/model"
)

const (
	remindersDueKey    = "reminders:due"
	reminderItemPrefix = "reminders:item:"
	reminderUserPrefix = "reminders:user:"
)

// ReminderRepo keeps pending reminders in a due-time sorted set with a per-user index.
// Reminder ids are stable per (user, template), so scheduling again replaces the old entry.
type ReminderRepo struct {
	client *goredis.Client
}

func NewReminderRepo(client *goredis.Client) *ReminderRepo {
	return &ReminderRepo{client: client}
}

func ReminderID(userID, template string) string {
	return userID + ":" + template
}

func (r *ReminderRepo) Schedule(ctx context.Context, reminder model.Reminder) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(reminder.UserID) == "" || strings.TrimSpace(reminder.Template) == "" || reminder.DueAt.IsZero() {
		return fmt.Errorf("invalid reminder payload")
	}
	if reminder.ID == "" {
		reminder.ID = ReminderID(reminder.UserID, reminder.Template)
	}

	raw, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, reminderItemPrefix+reminder.ID, raw, 0)
	pipe.ZAdd(ctx, remindersDueKey, goredis.Z{
		Score:  float64(reminder.DueAt.UTC().Unix()),
		Member: reminder.ID,
	})
	pipe.SAdd(ctx, reminderUserPrefix+reminder.UserID, reminder.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}

	return nil
}

func (r *ReminderRepo) Cancel(ctx context.Context, userID string, templates ...string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(templates) == 0 {
		return nil
	}

	ids := make([]string, 0, len(templates))
	for _, template := range templates {
		ids = append(ids, ReminderID(userID, template))
	}
	return r.remove(ctx, userID, ids)
}

func (r *ReminderRepo) CancelAll(ctx context.Context, userID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}

	ids, err := r.client.SMembers(ctx, reminderUserPrefix+userID).Result()
	if err != nil {
		return fmt.Errorf("list user reminders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	return r.remove(ctx, userID, ids)
}

func (r *ReminderRepo) Pending(ctx context.Context, userID string) ([]model.Reminder, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	ids, err := r.client.SMembers(ctx, reminderUserPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("list user reminders: %w", err)
	}

	reminders := make([]model.Reminder, 0, len(ids))
	for _, id := range ids {
		reminder, ok, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			reminders = append(reminders, reminder)
		}
	}
	return reminders, nil
}

// PopDue claims up to limit reminders due at or before now. A reminder is returned
// only to the caller whose ZREM removed it, so concurrent dispatchers do not double-send.
func (r *ReminderRepo) PopDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	ids, err := r.client.ZRangeByScore(ctx, remindersDueKey, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UTC().Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}

	due := make([]model.Reminder, 0, len(ids))
	for _, id := range ids {
		removed, err := r.client.ZRem(ctx, remindersDueKey, id).Result()
		if err != nil {
			return nil, fmt.Errorf("claim due reminder: %w", err)
		}
		if removed == 0 {
			continue
		}

		reminder, ok, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		pipe := r.client.TxPipeline()
		pipe.Del(ctx, reminderItemPrefix+id)
		pipe.SRem(ctx, reminderUserPrefix+reminder.UserID, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("clear claimed reminder: %w", err)
		}
		due = append(due, reminder)
	}

	return due, nil
}

func (r *ReminderRepo) load(ctx context.Context, id string) (model.Reminder, bool, error) {
	raw, err := r.client.Get(ctx, reminderItemPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return model.Reminder{}, false, nil
		}
		return model.Reminder{}, false, fmt.Errorf("get reminder: %w", err)
	}

	var reminder model.Reminder
	if err := json.Unmarshal(raw, &reminder); err != nil {
		return model.Reminder{}, false, fmt.Errorf("decode reminder: %w", err)
	}
	return reminder, true, nil
}

func (r *ReminderRepo) remove(ctx context.Context, userID string, ids []string) error {
	members := make([]interface{}, 0, len(ids))
	itemKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		members = append(members, id)
		itemKeys = append(itemKeys, reminderItemPrefix+id)
	}

	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, remindersDueKey, members...)
	pipe.SRem(ctx, reminderUserPrefix+userID, members...)
	pipe.Del(ctx, itemKeys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel reminders: %w", err)
	}
	return nil
}
