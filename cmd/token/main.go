// Command token prints a Groww access token generated from the configured
// API credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ratio_watch/internal/infra"
	"ratio_watch/internal/infra/groww"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("❌ Config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := groww.NewTokenClient(cfg.Groww.RestURL, groww.Credentials{
		AccessToken: cfg.Groww.AccessToken,
		APIKey:      cfg.Groww.APIKey,
		APISecret:   cfg.Groww.APISecret,
		TOTPSecret:  cfg.Groww.TOTPSecret,
	})

	token, err := client.AccessToken(ctx)
	if err != nil {
		slog.Error("❌ Token generation failed", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(token)
}
