package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/api"
	"github.com/shehryarbajwa/whatsapp-sender/internal/browser"
	"github.com/shehryarbajwa/whatsapp-sender/internal/config"
	"github.com/shehryarbajwa/whatsapp-sender/internal/logging"
	"github.com/shehryarbajwa/whatsapp-sender/internal/profile"
	"github.com/shehryarbajwa/whatsapp-sender/internal/ratelimit"
	"github.com/shehryarbajwa/whatsapp-sender/internal/sender"
	"github.com/shehryarbajwa/whatsapp-sender/internal/session"
	"github.com/shehryarbajwa/whatsapp-sender/internal/sheet"
	"github.com/shehryarbajwa/whatsapp-sender/internal/status"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger not built yet
		os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if !cfg.EnvFileLoaded {
		logger.Info("no .env file found, using system environment variables")
	}
	logger.Info("starting whatsapp sender",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("browser_mode", string(cfg.BrowserMode)),
		zap.String("whatsapp_url", cfg.WhatsAppURL))

	userDataDir, err := filepath.Abs(cfg.ProfileDir)
	if err != nil {
		logger.Fatal("invalid profile directory", zap.Error(err))
	}

	// Browser launcher
	var launcher browser.Launcher
	switch cfg.BrowserMode {
	case config.BrowserDocker:
		pool, err := browser.NewPool(cfg.ChromeImage, logger)
		if err != nil {
			logger.Fatal("failed to create browser pool", zap.Error(err))
		}
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		logger.Info("ensuring chrome image is available", zap.String("image", cfg.ChromeImage))
		if err := pool.EnsureImage(ctx); err != nil {
			cancel()
			logger.Fatal("failed to ensure chrome image", zap.Error(err))
		}
		cancel()
		launcher = pool
	default:
		launcher = browser.NewLocalLauncher(cfg.ChromePath, cfg.ChromeHeadless)
	}

	// Login snapshots
	var profiles *profile.Store
	if cfg.ProfileArchiveDir != "" {
		profiles, err = profile.NewStore(cfg.ProfileArchiveDir)
		if err != nil {
			logger.Fatal("failed to create profile store", zap.Error(err))
		}
		logger.Info("profile snapshots enabled", zap.String("dir", cfg.ProfileArchiveDir))
	}

	hub := status.NewHub(logger)
	tracker := status.NewTracker(hub)

	sessionOpts := session.Options{
		BaseURL:      cfg.WhatsAppURL,
		LoginTimeout: cfg.LoginTimeout,
		SendTimeout:  cfg.SendTimeout,
		PollInterval: cfg.PollInterval,
		UserDataDir:  userDataDir,
		ProfileName:  cfg.ProfileName,
	}
	manager := sender.NewManager(func() sender.Session {
		return session.NewController(launcher, profiles, sessionOpts, logger)
	}, tracker, sender.ManagerOptions{
		MinDelay: cfg.MinSendDelay,
		MaxDelay: cfg.MaxSendDelay,
	}, logger)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	fetch := func(ctx context.Context, sheetURL string) (*models.Batch, error) {
		return sheet.Fetch(ctx, httpClient, sheetURL)
	}

	rateLimiter := ratelimit.NewLimiter(cfg.RunStartsPerHour, cfg.RunStartBurst)

	handler := api.NewHandler(manager, tracker, hub, fetch, profiles, rateLimiter, api.Options{
		DefaultDelay:   cfg.SendDelay,
		MinDelay:       cfg.MinSendDelay,
		MaxDelay:       cfg.MaxSendDelay,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ProfileName:    cfg.ProfileName,
		UserDataDir:    userDataDir,
	}, logger)
	router := handler.SetupRoutes()

	// No WriteTimeout: the status websocket is long lived
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.Int("run_starts_per_hour", cfg.RunStartsPerHour),
			zap.Duration("default_delay", cfg.SendDelay))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// The in-flight send finishes and the browser closes, saving the login
	ctx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout+30*time.Second)
	defer cancel()

	if err := manager.Shutdown(ctx); err != nil {
		logger.Error("run did not stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}
