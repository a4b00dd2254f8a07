package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soulease/backend/internal/config"
	"soulease/backend/internal/domain/admin"
	"soulease/backend/internal/domain/booking"
	"soulease/backend/internal/domain/matching"
	"soulease/backend/internal/domain/report"
	"soulease/backend/internal/domain/therapist"
	"soulease/backend/internal/domain/user"
	"soulease/backend/internal/firebase"
	apihttp "soulease/backend/internal/http"
	"soulease/backend/internal/jobs"
	"soulease/backend/internal/logging"
	"soulease/backend/internal/maps"
	"soulease/backend/internal/middleware"
	"soulease/backend/internal/notify"
	"soulease/backend/internal/uploads"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	fb, err := firebase.NewClients(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("firebase: %w", err)
	}
	defer fb.Close()

	// Repositories
	therapistRepo := therapist.NewRepo(fb.Firestore)
	bookingRepo := booking.NewRepo(fb.Firestore)
	userRepo := user.NewRepo(fb.Firestore)

	// Maps (optional)
	var mapsClient *maps.Client
	if cfg.GoogleMapsAPIKey != "" {
		opts := maps.Options{}
		if cfg.RedisAddr != "" {
			rdb, err := maps.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				logger.Warn("redis unavailable, maps cache disabled", zap.Error(err))
			} else {
				defer rdb.Close()
				opts.Cache = maps.NewRedisCache(rdb)
			}
		}
		mapsClient = maps.NewClient(cfg.GoogleMapsAPIKey, opts)
	} else {
		logger.Info("GOOGLE_MAPS_API_KEY not set, using straight-line distances")
	}

	// Notifications
	var notifiers notify.Multi
	if cfg.ChatWebhookURL != "" {
		notifiers = append(notifiers, notify.NewChatWebhook(cfg.ChatWebhookURL, cfg.ChatWebhookToken))
	}
	if fb.Messaging != nil {
		notifiers = append(notifiers, notify.NewFCM(fb.Messaging))
	}

	// Services
	therapistSvc := therapist.NewService(therapistRepo, cfg.Now, logger.Named("therapist"))
	bookingOpts := booking.Options{
		Notifier: notifiers,
		Fees:     &booking.FeePolicy{FreeKm: cfg.TravelFeeFreeKm, PerKm: cfg.TravelFeePerKm},
		Now:      cfg.Now,
		Logger:   logger.Named("booking"),
	}
	if mapsClient != nil {
		bookingOpts.Router = mapsClient
	}
	bookingSvc := booking.NewService(bookingRepo, therapistSvc, bookingOpts)
	matchingSvc := matching.NewService(therapistSvc, bookingSvc, cfg.Now)
	reportSvc := report.NewService(bookingSvc, cfg.Now)
	adminSvc := admin.NewService(fb.Auth, userRepo, logger.Named("admin"))

	deps := apihttp.RouterDeps{
		Cfg:          cfg,
		Logger:       logger,
		Auth:         fb.Auth,
		Limiter:      middleware.NewRateLimiter(cfg.RateLimitPerMin, logger),
		TherapistSvc: therapistSvc,
		BookingSvc:   bookingSvc,
		MatchingSvc:  matchingSvc,
		ReportSvc:    reportSvc,
		AdminSvc:     adminSvc,
	}
	if mapsClient != nil {
		deps.Maps = mapsClient
	}

	// Signed upload URLs (optional)
	if cfg.StorageBucket != "" && cfg.SignedURLServiceAccountEmail != "" {
		signer, closeSigner, err := uploads.NewIAMSigner(ctx, cfg.StorageBucket, cfg.SignedURLServiceAccountEmail)
		if err != nil {
			logger.Warn("upload signer disabled", zap.Error(err))
		} else {
			defer closeSigner()
			deps.Uploads = signer
		}
	}

	// Scheduled jobs
	scheduler := jobs.NewScheduler(cfg.Location, logger.Named("jobs"))
	if err := scheduler.AddDailyReset(cfg.DailyResetCron, therapistSvc); err != nil {
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     apihttp.NewRouter(deps),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the therapist stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	// graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("port", cfg.Port), zap.String("project", cfg.ProjectID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	scheduler.Stop(ctxShutdown)
	return srv.Shutdown(ctxShutdown)
}
