package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ratio_watch/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to config.yaml")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	if cfg.Server.EnablePprof {
		go func() {
			// Localhost only for security
			slog.Info("🕵️ Pprof server started on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Instruments & credentials
	if err := bootstrap.ResolveInstruments(ctx); err != nil {
		slog.Error("❌ Instrument resolution failed", slog.Any("error", err))
		os.Exit(1)
	}

	token, err := bootstrap.InitialToken(ctx)
	if err != nil {
		slog.Error("❌ No access token", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Reducer, feed, push & mirror
	application := app.New(ctx, bootstrap)

	slog.InfoContext(ctx, "✨ ratio_watch fully operational. Press Ctrl+C to exit.",
		slog.Int("port", cfg.Server.Port),
	)

	if err := application.Run(ctx, token); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("❌ Server stopped", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("👋 Shutting down gracefully...")
}
