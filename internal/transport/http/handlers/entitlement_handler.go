package handlers

import (
	"net/http"

	"go.uber.org/zap"

	authsvc "github.com/glowcheck/backend/internal/services/auth"
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

type EntitlementHandler struct {
	sessions  *Sessions
	reminders ReminderSyncer
	log       *zap.Logger
}

func NewEntitlementHandler(sessions *Sessions, reminders ReminderSyncer, log *zap.Logger) *EntitlementHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EntitlementHandler{sessions: sessions, reminders: reminders, log: log}
}

func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	store, identity, ok := h.sessions.entitlement(w, r)
	if !ok {
		return
	}
	httperrors.Write(w, http.StatusOK, mapEntitlement(identity.ClientID, store.View()))
}

func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	var req dto.StartTrialRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.Days < 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "days must not be negative")
		return
	}

	store, ledger, identity, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}

	view := store.StartTrial(r.Context(), req.Days)
	h.syncReminders(r, identity, view, ledger.View())
	httperrors.Write(w, http.StatusOK, mapEntitlement(identity.ClientID, view))
}

func (h *EntitlementHandler) IncrementScan(w http.ResponseWriter, r *http.Request) {
	store, identity, ok := h.sessions.entitlement(w, r)
	if !ok {
		return
	}

	res := store.IncrementScanCount(r.Context())
	httperrors.Write(w, http.StatusOK, dto.EntitlementScanResponse{
		TrialStarted:  res.TrialStarted,
		QuotaExceeded: res.QuotaExceeded,
		Entitlement:   mapEntitlement(identity.ClientID, res.View),
	})
}

func (h *EntitlementHandler) Reset(w http.ResponseWriter, r *http.Request) {
	store, ledger, identity, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}

	view := store.Reset(r.Context())
	h.syncReminders(r, identity, view, ledger.View())
	httperrors.Write(w, http.StatusOK, mapEntitlement(identity.ClientID, view))
}

func (h *EntitlementHandler) syncReminders(r *http.Request, identity authsvc.Identity, ev entsvc.View, uv usagesvc.View) {
	if h.reminders == nil {
		return
	}
	if err := h.reminders.Sync(r.Context(), identity.UserID, scansvc.ReminderInput(ev, uv)); err != nil {
		h.log.Warn("sync reminders failed", zap.String("user_id", identity.UserID), zap.Error(err))
	}
}
