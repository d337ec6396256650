package handlers

import (
	"net/http"

	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

func Health(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}
