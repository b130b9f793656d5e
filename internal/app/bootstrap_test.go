package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ratio_watch/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GROWW_ACCESS_TOKEN", "GROWW_API_KEY", "GROWW_API_SECRET", "GROWW_TOTP_SECRET", "GROWW_WS_URL",
		"NIFTY_FUT_EXCHANGE_TOKEN", "SENSEX_FUT_EXCHANGE_TOKEN", "REFRESH_SECRET", "PORT",
		"GOOGLE_SHEET_ID", "GOOGLE_SHEET_RANGE", "GOOGLE_SHEETS_CREDENTIALS_JSON", "GOOGLE_APPLICATION_CREDENTIALS",
		"REDIS_ADDR", "REDIS_PASSWORD", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

// newTestBootstrap writes a config into a temp dir and initializes against it.
func newTestBootstrap(t *testing.T, extra string) *Bootstrap {
	t.Helper()
	return newTestBootstrapEnv(t, extra, nil)
}

func newTestBootstrapEnv(t *testing.T, extra string, env map[string]string) *Bootstrap {
	t.Helper()
	clearEnv(t)
	for k, v := range env {
		t.Setenv(k, v)
	}

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	yaml := fmt.Sprintf(`
groww:
  nifty_fut_exchange_token: "35001"
  sensex_fut_exchange_token: "1104650"
storage:
  path: %q
logging:
  dir: %q
%s`, filepath.Join(dir, "data", "test.db"), filepath.Join(dir, "logs"), extra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBootstrap(path)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewBootstrap_DefaultPath(t *testing.T) {
	if got := NewBootstrap("").ConfigPath; got != DefaultConfigPath {
		t.Errorf("ConfigPath = %q, want %q", got, DefaultConfigPath)
	}
}

func TestBootstrap_ResolveInstrumentsFromConfigTokens(t *testing.T) {
	b := newTestBootstrap(t, "")

	if err := b.ResolveInstruments(context.Background()); err != nil {
		t.Fatalf("ResolveInstruments: %v", err)
	}

	set := b.Instruments
	if len(set.NiftyFut) != 1 || set.NiftyFut[0].ExchangeToken != "35001" {
		t.Errorf("NiftyFut = %+v", set.NiftyFut)
	}
	if len(set.SensexFut) != 2 {
		t.Fatalf("SensexFut candidates = %d, want 2", len(set.SensexFut))
	}
	if set.SensexFut[0].Exchange != domain.ExchangeNSE || set.SensexFut[1].Exchange != domain.ExchangeBSE {
		t.Errorf("SensexFut order = %v, %v", set.SensexFut[0].Exchange, set.SensexFut[1].Exchange)
	}
}

func TestBootstrap_InitialToken(t *testing.T) {
	t.Run("configured token wins", func(t *testing.T) {
		b := newTestBootstrap(t, "")
		b.Config.Groww.AccessToken = " tok-config "
		if err := b.Storage.SaveAccessToken("tok-stored"); err != nil {
			t.Fatal(err)
		}

		got, err := b.InitialToken(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != "tok-config" {
			t.Errorf("token = %q, want tok-config", got)
		}
	})

	t.Run("falls back to stored token", func(t *testing.T) {
		b := newTestBootstrap(t, "")
		if err := b.Storage.SaveAccessToken("tok-stored"); err != nil {
			t.Fatal(err)
		}

		got, err := b.InitialToken(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != "tok-stored" {
			t.Errorf("token = %q, want tok-stored", got)
		}
	})

	t.Run("nothing available", func(t *testing.T) {
		b := newTestBootstrap(t, "")

		_, err := b.InitialToken(context.Background())
		if !errors.Is(err, domain.ErrNoCredentials) {
			t.Errorf("err = %v, want ErrNoCredentials", err)
		}
	})
}

func TestBootstrap_Sinks(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		b := newTestBootstrap(t, "")
		if sinks := b.Sinks(context.Background()); len(sinks) != 0 {
			t.Errorf("sinks = %d, want 0", len(sinks))
		}
	})

	t.Run("redis configured", func(t *testing.T) {
		b := newTestBootstrap(t, "mirror:\n  redis:\n    addr: \"127.0.0.1:6379\"\n")
		sinks := b.Sinks(context.Background())
		if len(sinks) != 1 || sinks[0].Name() != "redis" {
			t.Fatalf("sinks = %v", sinks)
		}
	})
}

func TestNew_WiresComponents(t *testing.T) {
	b := newTestBootstrap(t, "")
	if err := b.ResolveInstruments(context.Background()); err != nil {
		t.Fatal(err)
	}

	a := New(context.Background(), b)
	if a.Reducer == nil || a.Hub == nil || a.Mirror == nil || a.Feed == nil || a.Server == nil {
		t.Fatalf("unwired component: %+v", a)
	}
	if a.Mirror.Enabled() {
		t.Error("mirror enabled without sinks")
	}
	if a.Feed.Running() {
		t.Error("feed running before Run")
	}

	snap := a.Reducer.Snapshot()
	if snap.FutRatio != nil || snap.CashRatio != nil {
		t.Errorf("fresh snapshot has ratios: %+v", snap)
	}
}

func TestBootstrap_Credentials(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		b := newTestBootstrap(t, "")
		if b.Credentials.CanGenerate() {
			t.Error("defaults carry no credentials")
		}
	})

	t.Run("key and totp secret from env", func(t *testing.T) {
		b := newTestBootstrapEnv(t, "", map[string]string{
			"GROWW_API_KEY":     "key",
			"GROWW_TOTP_SECRET": "JBSWY3DPEHPK3PXP",
		})
		if !b.Credentials.CanGenerate() {
			t.Errorf("credentials = %+v, want generator enabled", b.Credentials)
		}
	})
}
