package workerapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glowcheck/backend/internal/config"
	"github.com/glowcheck/backend/internal/infra/httpclient"
	"github.com/glowcheck/backend/internal/infra/push"
	s3infra "github.com/glowcheck/backend/internal/infra/s3"
	"github.com/glowcheck/backend/internal/jobs/cleanup"
	reminderjob "github.com/glowcheck/backend/internal/jobs/reminders"
	redrepo "github.com/glowcheck/backend/internal/repo/redis"
	mediasvc "github.com/glowcheck/backend/internal/services/media"
	"github.com/glowcheck/backend/internal/transport/http/handlers"
)

const defaultCleanupInterval = 24 * time.Hour

type runner interface {
	Run(ctx context.Context) error
}

// App runs the reminder dispatcher, the scan photo cleanup and a small
// health/metrics server side by side.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	redis      *goredis.Client
	storage    *mediasvc.S3Storage
	dispatcher *reminderjob.Job
	cleanupJob runner
	health     *http.Server
}

func New(_ context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	notifier := push.NewExpoNotifier(httpclient.New(cfg.Push.Timeout), cfg.Push.Endpoint, cfg.Push.AccessToken)
	dispatcher := reminderjob.New(
		redrepo.NewReminderRepo(redisClient),
		redrepo.NewPushTokenRepo(redisClient),
		notifier,
		cfg.Reminders.BatchSize,
		logger,
	)

	app := &App{
		cfg:        cfg,
		logger:     logger,
		redis:      redisClient,
		dispatcher: dispatcher,
		health: &http.Server{
			Addr:              cfg.Reminders.HealthAddr,
			Handler:           newHealthRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	s3Client, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		logger.Warn("s3 init failed, scan photo cleanup disabled", zap.Error(err))
		return app, nil
	}

	app.storage = mediasvc.NewS3Storage(s3Client, cfg.S3.Bucket)
	app.cleanupJob = cleanup.NewScanPhotoCleanupJob(app.storage, mediasvc.ScanPrefix, cfg.Cleanup.Retention, logger)
	return app, nil
}

func newHealthRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("worker app started",
		zap.String("health_addr", a.cfg.Reminders.HealthAddr),
		zap.Duration("poll_interval", a.cfg.Reminders.PollInterval),
	)

	if a.storage != nil {
		if err := a.storage.EnsureBucket(ctx); err != nil {
			a.logger.Warn("s3 bucket check failed", zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.dispatcher.Loop(ctx, a.cfg.Reminders.PollInterval)
	})
	g.Go(func() error {
		return runCleanupLoop(ctx, a.cleanupJob, a.cfg.Cleanup.Interval, a.logger)
	})
	g.Go(func() error {
		err := a.health.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.health.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// runCleanupLoop runs job right away and then every interval. A failed run is
// logged and retried on the next tick.
func runCleanupLoop(ctx context.Context, job runner, interval time.Duration, logger *zap.Logger) error {
	if job == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := job.Run(ctx); err != nil {
			logger.Warn("scan photo cleanup failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
