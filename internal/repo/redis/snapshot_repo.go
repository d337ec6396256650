package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glowcheck/backend/internal/domain/model"
)

// SnapshotKey is the record name the mobile client used for its local entitlement state.
const SnapshotKey = "glowcheck_subscription_state"

const maxSnapshotUpdateAttempts = 8

var ErrSnapshotContended = errors.New("entitlement snapshot update contended")

type snapshotReader interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

type SnapshotRepo struct {
	client *goredis.Client
}

func NewSnapshotRepo(client *goredis.Client) *SnapshotRepo {
	return &SnapshotRepo{client: client}
}

func (r *SnapshotRepo) Get(ctx context.Context, key string) (model.EntitlementSnapshot, bool, error) {
	if err := r.check(key); err != nil {
		return model.EntitlementSnapshot{}, false, err
	}
	return readSnapshot(ctx, r.client, snapshotKey(key))
}

// Update runs fn against the stored record inside WATCH/MULTI and writes its
// result. fn is called again when another writer touched the record first.
func (r *SnapshotRepo) Update(
	ctx context.Context,
	key string,
	fn func(current model.EntitlementSnapshot, found bool) (model.EntitlementSnapshot, error),
) (model.EntitlementSnapshot, error) {
	if err := r.check(key); err != nil {
		return model.EntitlementSnapshot{}, err
	}
	if fn == nil {
		return model.EntitlementSnapshot{}, fmt.Errorf("update func is nil")
	}

	redisKey := snapshotKey(key)
	var next model.EntitlementSnapshot
	txf := func(tx *goredis.Tx) error {
		current, found, err := readSnapshot(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		updated, err := fn(current, found)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode entitlement snapshot: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisKey, raw, 0)
			return nil
		}); err != nil {
			return err
		}
		next = updated
		return nil
	}

	for attempt := 0; attempt < maxSnapshotUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return model.EntitlementSnapshot{}, fmt.Errorf("update entitlement snapshot: %w", err)
	}
	return model.EntitlementSnapshot{}, ErrSnapshotContended
}

func (r *SnapshotRepo) check(key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("client id is required")
	}
	return nil
}

func readSnapshot(ctx context.Context, c snapshotReader, redisKey string) (model.EntitlementSnapshot, bool, error) {
	raw, err := c.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return model.EntitlementSnapshot{}, false, nil
		}
		return model.EntitlementSnapshot{}, false, fmt.Errorf("get entitlement snapshot: %w", err)
	}

	var snapshot model.EntitlementSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return model.EntitlementSnapshot{}, false, fmt.Errorf("decode entitlement snapshot: %w", err)
	}
	return snapshot, true, nil
}

func snapshotKey(key string) string {
	return SnapshotKey + ":" + key
}
