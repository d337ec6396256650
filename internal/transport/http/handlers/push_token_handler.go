package handlers

import (
	"context"
	"net/http"

	"github.com/glowcheck/backend/internal/pkg/validate"
	authsvc "github.com/glowcheck/backend/internal/services/auth"
	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

type PushTokenStore interface {
	Save(ctx context.Context, userID, token string) error
}

type PushTokenHandler struct {
	tokens PushTokenStore
}

func NewPushTokenHandler(tokens PushTokenStore) *PushTokenHandler {
	return &PushTokenHandler{tokens: tokens}
}

func (h *PushTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.tokens == nil {
		writeInternal(w, "PUSH_SERVICE_UNAVAILABLE", "push service is unavailable")
		return
	}

	var req dto.PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	if !validate.Required(req.Token) {
		writeBadRequest(w, "VALIDATION_ERROR", "token is required")
		return
	}

	if err := h.tokens.Save(r.Context(), identity.UserID, req.Token); err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to save push token")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}
