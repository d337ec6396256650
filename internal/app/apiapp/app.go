package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/glowcheck/backend/internal/config"
	"github.com/glowcheck/backend/internal/domain/rules"
	"github.com/glowcheck/backend/internal/infra/httpclient"
	s3infra "github.com/glowcheck/backend/internal/infra/s3"
	pgrepo "github.com/glowcheck/backend/internal/repo/postgres"
	redrepo "github.com/glowcheck/backend/internal/repo/redis"
	analysissvc "github.com/glowcheck/backend/internal/services/analysis"
	authsvc "github.com/glowcheck/backend/internal/services/auth"
	entsvc "github.com/glowcheck/backend/internal/services/entitlements"
	mediasvc "github.com/glowcheck/backend/internal/services/media"
	paymentsvc "github.com/glowcheck/backend/internal/services/payments"
	ratesvc "github.com/glowcheck/backend/internal/services/rate"
	remindersvc "github.com/glowcheck/backend/internal/services/reminders"
	scansvc "github.com/glowcheck/backend/internal/services/scans"
	usagesvc "github.com/glowcheck/backend/internal/services/usage"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	snapshotRepo := redrepo.NewSnapshotRepo(redisClient)
	reminderRepo := redrepo.NewReminderRepo(redisClient)
	pushTokenRepo := redrepo.NewPushTokenRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)
	usageRepo := pgrepo.NewUsageRepo(pool)
	trialRepo := pgrepo.NewTrialRepo(pool)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing in degraded mode", zap.Error(err))
	} else {
		s3Client = c
	}

	mediaStorage := mediasvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	mediaService := mediasvc.NewService(mediaStorage, cfg.S3.URLTTL)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, 0)
	scheduler := remindersvc.NewScheduler(reminderRepo, log)
	entitlements := entsvc.NewRegistry(snapshotRepo, entsvc.Config{
		TrialDays:       cfg.Freemium.TrialDays,
		MaxScansInTrial: cfg.Freemium.MaxScansInTrial,
		Prices: rules.Prices{
			Monthly: cfg.Freemium.Prices.Monthly,
			Yearly:  cfg.Freemium.Prices.Yearly,
		},
	}, log)
	ledgers := usagesvc.NewRegistry(usagesvc.Dependencies{
		Usage:     usageRepo,
		Trials:    trialRepo,
		Reminders: scheduler,
	}, usagesvc.Config{
		FreeScans:           cfg.Freemium.FreeScans,
		TrialDailyScans:     cfg.Freemium.TrialDailyScans,
		TrialDays:           cfg.Freemium.TrialDays,
		ResultsUnlockWindow: cfg.Freemium.ResultsUnlockWindow,
	}, log)

	rateLimiter := ratesvc.NewLimiter(rateRepo, cfg.Rate.ScansPerMinute, cfg.Rate.ScansPer10Secs)
	analyzer := analysissvc.NewClient(httpclient.New(cfg.Analysis.Timeout), cfg.Analysis.Endpoint, cfg.Analysis.APIKey)
	scanService := scansvc.NewService(scansvc.Dependencies{
		Limiter:   rateLimiter,
		Photos:    mediaService,
		Analyzer:  analyzer,
		Reminders: scheduler,
	}, log)
	paymentService := paymentsvc.NewService(scheduler, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		JWTManager:     jwtManager,
		Entitlements:   entitlements,
		Ledgers:        ledgers,
		Reminders:      scheduler,
		ScanService:    scanService,
		PaymentService: paymentService,
		PushTokens:     pushTokenRepo,
		Logger:         log,
		Config:         cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
