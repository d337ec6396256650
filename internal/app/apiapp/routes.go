package apiapp

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/config"
	redrepo "github.com/glowcheck/backend/internal/repo/redis"
	authsvc "github.com/glowcheck/backend/internal/services/auth"
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	paymentsvc "github.com/glowcheck/backend/internal/services/payments"
	remindersvc "github.com/glowcheck/backend/internal/services/reminders"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
	"github.com/glowcheck/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	JWTManager     *authsvc.JWTManager
	Entitlements   *entsvc.Registry
	Ledgers        *usagesvc.Registry
	Reminders      *remindersvc.Scheduler
	ScanService    *scansvc.Service
	PaymentService *paymentsvc.Service
	PushTokens     *redrepo.PushTokenRepo
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	sessions := handlers.NewSessions(deps.Entitlements, deps.Ledgers, deps.Config.Freemium.DefaultTimezone)

	// A nil *Scheduler must stay a nil interface for the handlers.
	var reminders handlers.ReminderSyncer
	if deps.Reminders != nil {
		reminders = deps.Reminders
	}
	var pushTokens handlers.PushTokenStore
	if deps.PushTokens != nil {
		pushTokens = deps.PushTokens
	}

	entitlementHandler := handlers.NewEntitlementHandler(sessions, reminders, deps.Logger)
	usageHandler := handlers.NewUsageHandler(sessions, reminders, deps.Logger)
	scanHandler := handlers.NewScanHandler(sessions, deps.ScanService, deps.Config.HTTP.MaxPhotoSize)
	purchaseHandler := handlers.NewPurchaseHandler(sessions, deps.PaymentService)
	pushTokenHandler := handlers.NewPushTokenHandler(pushTokens)

	var tokens tokenParser
	if deps.JWTManager != nil {
		tokens = deps.JWTManager
	}
	authMW := AuthMiddleware(tokens, deps.Logger)

	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMW)

		r.Get("/entitlement", entitlementHandler.Get)
		r.Post("/entitlement/trial", entitlementHandler.StartTrial)
		r.Post("/entitlement/scan", entitlementHandler.IncrementScan)
		r.Post("/entitlement/reset", entitlementHandler.Reset)
		r.Post("/purchases/confirm", purchaseHandler.Confirm)

		r.Get("/usage", usageHandler.Get)
		r.Post("/usage/{feature}/increment", usageHandler.Increment)
		r.Post("/trial/payment-method", usageHandler.PaymentMethod)

		r.Post("/scans/{feature}", scanHandler.Scan)
		r.Post("/push-token", pushTokenHandler.Register)
	})
}
