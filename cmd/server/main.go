package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/ebusdash/internal/config"
	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/device"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	"github.com/JonMunkholm/ebusdash/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging; recent records are kept for /api/diagnostics
	diag := logging.NewDiagnostics(cfg.Logging.DiagnosticsCapacity)
	logging.Setup(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Diagnostics: diag,
	})

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"device_max_concurrent", cfg.Device.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	panels, err := loadPanels(cfg.Panels.File)
	if err != nil {
		slog.Error("failed to load panels", "file", cfg.Panels.File, "error", err)
		os.Exit(1)
	}
	registry := core.NewPanelRegistry(panels...)
	slog.Info("panels registered",
		"count", registry.Count(),
		"groups", len(registry.Groups()),
	)
	for _, group := range registry.Groups() {
		slog.Debug("panel group", "group", group, "panels", len(registry.ByGroup(group)))
	}

	fetcher, err := core.NewFetcher(core.FetcherConfig{
		BaseURL:        cfg.Device.URL,
		RequestTimeout: cfg.Device.RequestTimeout,
		MaxConcurrent:  cfg.Device.MaxConcurrent,
		MaxWait:        cfg.Device.MaxWait,
		Dedupe:         cfg.Device.Dedupe,
	}, &http.Client{})
	if err != nil {
		slog.Error("failed to create device client", "error", err)
		os.Exit(1)
	}

	checker, err := device.NewChecker(cfg.Device.URL, device.CheckOptions{
		Count:      cfg.Device.PingCount,
		Timeout:    cfg.Device.PingTimeout,
		Privileged: cfg.Device.PingPrivileged,
	})
	if err != nil {
		slog.Warn("device check disabled", "error", err)
		checker = nil
	}

	server := web.NewServer(web.Deps{
		Config:      cfg,
		Fetcher:     fetcher,
		Panels:      registry,
		Checker:     checker,
		Diagnostics: diag,
	})

	// Background reachability checks for the header indicator
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	if checker != nil && cfg.Device.PingInterval > 0 {
		go checker.Monitor(monitorCtx, cfg.Device.PingInterval)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		stopMonitor()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight adapter requests finish
		if active := fetcher.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for device requests to complete", "active", active)
			if err := fetcher.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("device requests did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// loadPanels reads the panels file, or returns the built-in layout when
// none is configured.
func loadPanels(path string) ([]core.Panel, error) {
	if path == "" {
		return core.DefaultPanels(), nil
	}
	return core.LoadPanelsFile(path)
}
