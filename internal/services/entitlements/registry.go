package entitlements

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/pkg/validate"
)

// Registry loads the Store of one installed client for each request. Stores are
// not kept between requests; another API instance may have changed the record.
type Registry struct {
	store SnapshotStore
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

func NewRegistry(store SnapshotStore, cfg Config, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// For returns the loaded Store of clientID owned by userID. The record key
// carries both ids, so one user can never reach another user's client.
func (r *Registry) For(ctx context.Context, userID, clientID string) (*Store, error) {
	clientID = strings.TrimSpace(clientID)
	if !validate.UserID(userID) || clientID == "" {
		return nil, ErrValidation
	}

	s := NewStore(SnapshotKey(userID, clientID), r.store, r.cfg, r.log)
	s.now = r.now
	s.Load(ctx)
	return s, nil
}

func SnapshotKey(userID, clientID string) string {
	return userID + ":" + clientID
}
