package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/agrionboard/internal/application"
	"github.com/JonMunkholm/agrionboard/internal/config"
	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/JonMunkholm/agrionboard/internal/logging"
	"github.com/JonMunkholm/agrionboard/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Overload so a local .env wins over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	app, err := application.Build(jobCtx, cfg)
	if err != nil {
		slog.Error("failed to start onboarding engine", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	service := app.Service

	if cfg.FollowUp.Enabled {
		go service.StartFollowUpScheduler(jobCtx, core.FollowUpConfig{
			TemplateID:    cfg.FollowUp.TemplateID,
			CheckInterval: cfg.FollowUp.Interval,
		})
	}

	server := web.NewServer(service, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.ImportLimiter().Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.ImportLimiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		app.Close()
		os.Exit(1)
	}
	slog.Info("server stopped")
}
