package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"muenzbox/internal/config"
	"muenzbox/internal/database"
	"muenzbox/internal/device"
	"muenzbox/internal/handlers"
	"muenzbox/internal/logging"
	"muenzbox/internal/metrics"
	"muenzbox/internal/notify"
	"muenzbox/internal/repository"
	"muenzbox/internal/scheduler"
	"muenzbox/internal/security"
	"muenzbox/internal/service"
	"muenzbox/internal/timewindow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info().Str("type", cfg.Database.Type).Msg("database connection established")

	if err := db.RunMigrations(ctx, logger); err != nil {
		return err
	}

	provider := metrics.New(cfg.Metrics)
	dispatcher := device.NewFromConfig(cfg.Devices, logger, provider)
	if dispatcher.MockMode() {
		logger.Warn().Msg("device mock mode enabled, no hardware will be switched")
	}

	notifier, err := notify.NewEmailNotifier(ctx, cfg.Alerts, logger)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	tokens := security.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.ChildTokenTTL, cfg.Auth.AdminTokenTTL)
	limiter := security.NewRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)

	// Initialize services
	ledgerService := service.NewLedgerService(db, logger)
	sessionService := service.NewSessionService(db, ledgerService, timewindow.NewEvaluator(loc), dispatcher, provider, notifier, logger)
	childService := service.NewChildService(db, logger)
	authService := service.NewAuthService(repository.NewChildRepository(db), tokens, cfg.Auth.AdminPIN, logger)
	deviceService := service.NewDeviceService(repository.NewDeviceRepository(db), dispatcher, logger)
	backupService := service.NewBackupService(db, logger)

	routes := &handlers.Routes{
		Middleware: handlers.NewMiddleware(authService),
		Limiter:    limiter,
		Auth:       handlers.NewAuthHandler(authService, childService, db),
		Sessions:   handlers.NewSessionHandler(sessionService),
		Admin:      handlers.NewAdminHandler(childService, ledgerService, sessionService, deviceService, backupService),
	}

	mux := http.NewServeMux()
	routes.Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	sched := scheduler.New(sessionService, ledgerService, db, loc, cfg.Scheduler.Interval, provider, logger)
	go sched.Run(ctx)
	go limiter.Run(ctx, cfg.Auth.LoginRateWindow)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.Logging(logger, metrics.Middleware(provider, mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("timezone", loc.String()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
