package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	authsvc "github.com/glowcheck/backend/internal/services/auth"
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	"github.com/glowcheck/backend/internal/services/reminders"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

type ReminderSyncer interface {
	Sync(ctx context.Context, userID string, in reminders.Input) error
}

// Sessions resolves the caller's EntitlementStore and UsageLedger.
type Sessions struct {
	entitlements *entsvc.Registry
	ledgers      *usagesvc.Registry
	defaultLoc   *time.Location
}

func NewSessions(entitlements *entsvc.Registry, ledgers *usagesvc.Registry, defaultTimezone string) *Sessions {
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &Sessions{entitlements: entitlements, ledgers: ledgers, defaultLoc: loc}
}

func (s *Sessions) entitlement(w http.ResponseWriter, r *http.Request) (*entsvc.Store, authsvc.Identity, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok || identity.ClientID == "" {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return nil, authsvc.Identity{}, false
	}
	if s == nil || s.entitlements == nil {
		writeInternal(w, "ENTITLEMENT_SERVICE_UNAVAILABLE", "entitlement service is unavailable")
		return nil, authsvc.Identity{}, false
	}

	store, err := s.entitlements.For(r.Context(), identity.UserID, identity.ClientID)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid user or client id")
		return nil, authsvc.Identity{}, false
	}
	return store, identity, true
}

func (s *Sessions) ledger(w http.ResponseWriter, r *http.Request) (*entsvc.Store, *usagesvc.Ledger, authsvc.Identity, bool) {
	store, identity, ok := s.entitlement(w, r)
	if !ok {
		return nil, nil, authsvc.Identity{}, false
	}
	if s.ledgers == nil {
		writeInternal(w, "USAGE_SERVICE_UNAVAILABLE", "usage service is unavailable")
		return nil, nil, authsvc.Identity{}, false
	}

	ledger, err := s.ledgers.For(r.Context(), identity.UserID, identity.ClientID, store, s.location(r))
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid user id")
		return nil, nil, authsvc.Identity{}, false
	}
	return store, ledger, identity, true
}

func (s *Sessions) location(r *http.Request) *time.Location {
	if tz := timezoneFromRequest(r); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return s.defaultLoc
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	if err := decodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func timezoneFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v := strings.TrimSpace(r.Header.Get("X-Timezone")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.URL.Query().Get("tz")); v != "" {
		return v
	}
	return ""
}
