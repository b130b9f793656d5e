package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"
	"ratio_watch/internal/infra/groww"
	"ratio_watch/internal/infra/mirror"
	"ratio_watch/internal/infra/storage"
)

// DefaultConfigPath is where the config file is looked up.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath  string
	Config      *infra.Config
	Storage     *storage.Storage
	Credentials groww.Credentials
	Tokens      *groww.TokenClient
	Instruments domain.InstrumentSet
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping ratio_watch...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Token client
	b.Credentials = groww.Credentials{
		AccessToken: cfg.Groww.AccessToken,
		APIKey:      cfg.Groww.APIKey,
		APISecret:   cfg.Groww.APISecret,
		TOTPSecret:  cfg.Groww.TOTPSecret,
	}
	b.Tokens = groww.NewTokenClient(cfg.Groww.RestURL, b.Credentials)

	return nil
}

// ResolveInstruments fixes the instrument set for this run.
func (b *Bootstrap) ResolveInstruments(ctx context.Context) error {
	resolver := groww.NewResolver(groww.ResolverConfig{
		URL:            b.Config.Groww.InstrumentsURL,
		NiftyFutToken:  b.Config.Groww.NiftyFutToken,
		SensexFutToken: b.Config.Groww.SensexFutToken,
	}, b.Storage)

	set, err := resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve instruments: %w", err)
	}
	b.Instruments = set
	slog.Info("✅ Instruments resolved",
		slog.Any("nifty_fut", set.NiftyFut),
		slog.Any("sensex_fut", set.SensexFut),
	)
	return nil
}

// InitialToken returns the credential for the first feed session: the
// configured token, a freshly generated one, or the last stored refresh.
func (b *Bootstrap) InitialToken(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(b.Config.Groww.AccessToken); tok != "" {
		return tok, nil
	}

	var genErr error
	if b.Credentials.CanGenerate() {
		tok, err := b.Tokens.Generate(ctx)
		if err == nil {
			if err := b.Storage.SaveAccessToken(tok); err != nil {
				slog.Warn("Failed to persist access token", slog.Any("error", err))
			}
			return tok, nil
		}
		genErr = err
		slog.Warn("Token generation failed, trying stored token", slog.Any("error", err))
	}

	tok, ok, err := b.Storage.AccessToken()
	if err != nil {
		return "", err
	}
	if ok && tok != "" {
		return tok, nil
	}

	if genErr != nil {
		return "", genErr
	}
	return "", fmt.Errorf("%w: set GROWW_ACCESS_TOKEN, or GROWW_API_KEY with GROWW_TOTP_SECRET or GROWW_API_SECRET", domain.ErrNoCredentials)
}

// Sinks builds the configured mirror sinks. A sink that cannot be built is
// logged and skipped.
func (b *Bootstrap) Sinks(ctx context.Context) []domain.SnapshotSink {
	var sinks []domain.SnapshotSink
	mc := b.Config.Mirror

	if mc.Sheets.SheetID != "" {
		sink, err := mirror.NewSheetsSink(ctx, mirror.SheetsConfig{
			SheetID:         mc.Sheets.SheetID,
			Range:           mc.Sheets.Range,
			CredentialsJSON: mc.Sheets.CredentialsJSON,
			CredentialsFile: mc.Sheets.CredentialsFile,
		})
		if err != nil {
			slog.Warn("Sheets mirror disabled", slog.Any("error", err))
		} else {
			sinks = append(sinks, sink)
			slog.Info("✅ Sheets mirror enabled", slog.String("range", mc.Sheets.Range))
		}
	}

	if mc.Redis.Addr != "" {
		client := mirror.NewRedisClient(mc.Redis.Addr, mc.Redis.Password, mc.Redis.DB)
		sinks = append(sinks, mirror.NewRedisSink(client, mc.Redis.Key, mc.Redis.Channel))
		slog.Info("✅ Redis mirror enabled", slog.String("addr", mc.Redis.Addr))
	}

	return sinks
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Storage != nil {
		errs = append(errs, b.Storage.Close())
	}
	return errors.Join(errs...)
}
