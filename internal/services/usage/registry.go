package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/pkg/validate"
)

// Registry builds a loaded Ledger per request. Counters live remotely, so a
// ledger is never reused once its request is done.
type Registry struct {
	deps Dependencies
	cfg  Config
	log  *zap.Logger
	now  func() time.Time
}

func NewRegistry(deps Dependencies, cfg Config, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
	}
}

// For returns the ledger for userID bound to the client's entitlements, loaded
// for the calendar day in loc.
func (r *Registry) For(ctx context.Context, userID, clientID string, entitlement EntitlementSource, loc *time.Location) (*Ledger, error) {
	if !validate.UserID(userID) || !validate.Required(clientID) {
		return nil, ErrValidation
	}

	l := NewLedger(userID, entitlement, r.deps, r.cfg, r.log)
	l.now = r.now
	l.SetLocation(loc)
	l.LoadUsage(ctx)
	return l, nil
}
