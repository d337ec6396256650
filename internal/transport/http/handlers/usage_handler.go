package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/domain/enums"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

type UsageHandler struct {
	sessions  *Sessions
	reminders ReminderSyncer
	log       *zap.Logger
}

func NewUsageHandler(sessions *Sessions, reminders ReminderSyncer, log *zap.Logger) *UsageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageHandler{sessions: sessions, reminders: reminders, log: log}
}

// Get reloads today's usage before answering.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, ledger, _, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}
	httperrors.Write(w, http.StatusOK, mapUsage(ledger.LoadUsage(r.Context())))
}

func (h *UsageHandler) Increment(w http.ResponseWriter, r *http.Request) {
	feature, ok := enums.ParseFeatureType(chi.URLParam(r, "feature"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown feature")
		return
	}

	_, ledger, _, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}

	res, err := ledger.IncrementFeatureScan(r.Context(), feature)
	if err != nil {
		if errors.Is(err, usagesvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid usage increment")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to record usage")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UsageIncrementResponse{
		Recorded:             res.Recorded,
		Count:                res.Count,
		ShowPaywall:          res.ShowPaywall,
		ResultsUnlockedUntil: res.ResultsUnlockedUntil,
		Usage:                mapUsage(res.View),
	})
}

// PaymentMethod records that the store billing sheet completed for this user.
func (h *UsageHandler) PaymentMethod(w http.ResponseWriter, r *http.Request) {
	store, ledger, identity, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}

	view, err := ledger.RecordPaymentMethod(r.Context())
	if err != nil {
		h.log.Warn("record payment method failed", zap.String("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "TRIAL_UPDATE_FAILED", "failed to record payment method")
		return
	}

	if h.reminders != nil {
		if err := h.reminders.Sync(r.Context(), identity.UserID, scansvc.ReminderInput(store.View(), view)); err != nil {
			h.log.Warn("sync reminders failed", zap.String("user_id", identity.UserID), zap.Error(err))
		}
	}
	httperrors.Write(w, http.StatusOK, mapUsage(view))
}
