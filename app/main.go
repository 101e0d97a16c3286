package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knosm/pixisync/app/api"
	"github.com/knosm/pixisync/app/cfg"
	"github.com/knosm/pixisync/app/collector"
	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/pixiv"
	"github.com/knosm/pixisync/app/ratelimit"
	"github.com/knosm/pixisync/app/scheduler"
	"github.com/knosm/pixisync/app/settings"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting PixiSync", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	artworkRepo := database.NewArtworkRepository(db)
	followRepo := database.NewFollowRepository(db)
	logRepo := database.NewCollectionLogRepository(db)
	schedRepo := database.NewSchedulerConfigRepository(db)
	settingsStore := settings.NewStore(database.NewSystemConfigRepository(db))

	client := pixiv.NewHTTPClient(pixiv.Credentials{
		AccessToken:  settingsStore.GetString(settings.KeyAccessToken, ""),
		RefreshToken: settingsStore.GetString(settings.KeyRefreshToken, ""),
		UserID:       int64(settingsStore.GetInt(settings.KeyRemoteUserID, 0)),
	}, appCfg.UserAgent)

	engine := collector.NewCollector(
		artworkRepo, followRepo, logRepo, settingsStore,
		client, pixiv.NewTokenManager(settingsStore, client),
		ratelimit.NewLimiter(settingsStore),
	)

	if err := scheduler.SeedJobs(schedRepo, appCfg.JobsFile); err != nil {
		slog.Error("Failed to seed scheduler configs", "error", err)
		os.Exit(1)
	}

	dispatcher := scheduler.NewDispatcher(engine, schedRepo)
	dispatcher.Start()
	defer dispatcher.Stop()

	apiHandler := api.NewHandler(artworkRepo, followRepo, logRepo, schedRepo, settingsStore, dispatcher)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Dispatcher is stopped via defer
	slog.Info("Shutdown complete")
}
