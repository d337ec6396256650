package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

const pushTokensKey = "push_tokens"

type PushTokenRepo struct {
	client *goredis.Client
}

func NewPushTokenRepo(client *goredis.Client) *PushTokenRepo {
	return &PushTokenRepo{client: client}
}

func (r *PushTokenRepo) Save(ctx context.Context, userID, token string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return fmt.Errorf("invalid push token payload")
	}
	if err := r.client.HSet(ctx, pushTokensKey, userID, strings.TrimSpace(token)).Err(); err != nil {
		return fmt.Errorf("save push token: %w", err)
	}
	return nil
}

func (r *PushTokenRepo) Get(ctx context.Context, userID string) (string, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}

	token, err := r.client.HGet(ctx, pushTokensKey, userID).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get push token: %w", err)
	}
	return token, token != "", nil
}
