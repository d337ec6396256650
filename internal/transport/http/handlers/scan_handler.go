package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glowcheck/backend/internal/domain/enums"
	mediasvc "github.com/glowcheck/backend/internal/services/media"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	"github.com/glowcheck/backend/internal/transport/http/dto"
	httperrors "github.com/glowcheck/backend/internal/transport/http/errors"
)

const defaultMaxPhotoSize = 10 << 20 // 10 MiB

type ScanHandler struct {
	sessions     *Sessions
	service      *scansvc.Service
	maxPhotoSize int64
}

func NewScanHandler(sessions *Sessions, service *scansvc.Service, maxPhotoSize int64) *ScanHandler {
	if maxPhotoSize <= 0 {
		maxPhotoSize = defaultMaxPhotoSize
	}
	return &ScanHandler{sessions: sessions, service: service, maxPhotoSize: maxPhotoSize}
}

func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	feature, ok := enums.ParseFeatureType(chi.URLParam(r, "feature"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown feature")
		return
	}
	if h.service == nil {
		writeInternal(w, "SCAN_SERVICE_UNAVAILABLE", "scan service is unavailable")
		return
	}

	store, ledger, identity, ok := h.sessions.ledger(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoSize)
	if err := r.ParseMultipartForm(h.maxPhotoSize); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "photo is required")
		return
	}
	defer file.Close()

	res, err := h.service.Run(r.Context(), store, ledger, scansvc.Input{
		UserID:      identity.UserID,
		Feature:     feature,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
	})
	if err != nil {
		switch {
		case errors.Is(err, scansvc.ErrValidation), errors.Is(err, mediasvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid scan request")
		case errors.Is(err, mediasvc.ErrUnsupportedContent):
			httperrors.Write(w, http.StatusUnsupportedMediaType, httperrors.APIError{
				Code:    "UNSUPPORTED_MEDIA_TYPE",
				Message: "photo must be jpeg, png, heic or webp",
			})
		case errors.Is(err, scansvc.ErrRateLimited):
			httperrors.WriteRateLimited(w, httperrors.RateLimitError{
				Code:          "TOO_FAST",
				Message:       "too many scans, slow down",
				RetryAfterSec: res.RetryAfter,
			})
		case errors.Is(err, scansvc.ErrPremiumRequired):
			httperrors.Write(w, http.StatusPaymentRequired, dto.PremiumRequiredResponse{
				Code:        "PREMIUM_REQUIRED",
				Message:     "upgrade to premium to keep scanning",
				Entitlement: mapEntitlement(identity.ClientID, res.Entitlement),
			})
		case errors.Is(err, scansvc.ErrAnalysisFailed):
			httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
				Code:    "ANALYSIS_FAILED",
				Message: "analysis is unavailable, try again later",
			})
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process scan")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ScanResponse{
		AttemptID:            res.AttemptID,
		Feature:              string(res.Feature),
		Analysis:             res.Analysis,
		TrialStarted:         res.TrialStarted,
		QuotaExceeded:        res.QuotaExceeded,
		ShowPaywall:          res.ShowPaywall,
		CanViewResults:       res.CanViewResults,
		ResultsUnlockedUntil: res.ResultsUnlockedUntil,
		Entitlement:          mapEntitlement(identity.ClientID, res.Entitlement),
		Usage:                mapUsage(res.Usage),
	})
}
