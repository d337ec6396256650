package handlers

import (
	"errors"
	"net/http"

	paymentsvc "github.com/glowcheck/backend/internal/services/payments"
	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

type PurchaseHandler struct {
	sessions *Sessions
	service  *paymentsvc.Service
}

func NewPurchaseHandler(sessions *Sessions, service *paymentsvc.Service) *PurchaseHandler {
	return &PurchaseHandler{sessions: sessions, service: service}
}

func (h *PurchaseHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENTS_SERVICE_UNAVAILABLE", "payments service is unavailable")
		return
	}

	var req dto.PurchaseConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	store, identity, ok := h.sessions.entitlement(w, r)
	if !ok {
		return
	}

	res, err := h.service.Confirm(r.Context(), store, paymentsvc.ConfirmInput{
		UserID:                identity.UserID,
		Plan:                  req.Plan,
		Provider:              req.Provider,
		PurchaseToken:         req.PurchaseToken,
		OriginalTransactionID: req.OriginalTransactionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, paymentsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "purchase_token is required")
		case errors.Is(err, paymentsvc.ErrUnsupportedPlan):
			writeBadRequest(w, "UNSUPPORTED_PLAN", "plan must be monthly or yearly")
		case errors.Is(err, paymentsvc.ErrUnsupportedProvider):
			writeBadRequest(w, "UNSUPPORTED_PROVIDER", "provider must be app_store or play_store")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to confirm purchase")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseConfirmResponse{
		OK:          true,
		Plan:        string(res.Plan),
		Provider:    string(res.Provider),
		Idempotent:  res.Idempotent,
		Entitlement: mapEntitlement(identity.ClientID, res.Entitlement),
	})
}
