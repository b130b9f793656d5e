package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ratio_watch/internal/domain"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on plain HTTP downloads (instrument master).
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultInstrumentsURL = "https://growwapi-assets.groww.in/instruments/instrument.csv"
	DefaultSheetRange     = "Sheet1!A1:B11"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Port          int    `yaml:"port"`
		RefreshSecret string `yaml:"refresh_secret"`
		EnablePprof   bool   `yaml:"enable_pprof"`
	} `yaml:"server"`

	Groww struct {
		WSURL          string `yaml:"ws_url"`
		RestURL        string `yaml:"rest_url"`
		InstrumentsURL string `yaml:"instruments_url"`
		AccessToken    string `yaml:"access_token"`
		APIKey         string `yaml:"api_key"`
		APISecret      string `yaml:"api_secret"`
		TOTPSecret     string `yaml:"totp_secret"`
		NiftyFutToken  string `yaml:"nifty_fut_exchange_token"`
		SensexFutToken string `yaml:"sensex_fut_exchange_token"`
		// MaxReconnects bounds feed reconnect attempts; 0 disables reconnects.
		MaxReconnects int `yaml:"max_reconnects"`
	} `yaml:"groww"`

	Engine struct {
		InboxSize int `yaml:"inbox_size"`
	} `yaml:"engine"`

	Mirror struct {
		IntervalMS     int `yaml:"interval_ms"`
		PushTimeoutSec int `yaml:"push_timeout_sec"`
		Sheets         struct {
			SheetID         string `yaml:"sheet_id"`
			Range           string `yaml:"range"`
			CredentialsJSON string `yaml:"credentials_json"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"sheets"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Key      string `yaml:"key"`
			Channel  string `yaml:"channel"`
		} `yaml:"redis"`
	} `yaml:"mirror"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "ratio_watch"
	cfg.App.Version = "dev"
	cfg.Server.Port = 8002
	cfg.Groww.WSURL = "wss://socket-api.groww.in/v1/feed"
	cfg.Groww.RestURL = "https://api.groww.in"
	cfg.Groww.InstrumentsURL = DefaultInstrumentsURL
	cfg.Groww.MaxReconnects = 5
	cfg.Engine.InboxSize = 1024
	cfg.Mirror.IntervalMS = 2000
	cfg.Mirror.PushTimeoutSec = 10
	cfg.Mirror.Sheets.Range = DefaultSheetRange
	cfg.Mirror.Redis.Key = "ratio_watch:state"
	cfg.Mirror.Redis.Channel = "ratio_watch:updates"
	cfg.Storage.Path = "data/ratio_watch.db"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 파일이 없으면 기본값을 사용합니다.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}

	// .env가 없는 환경(운영)도 있으므로 에러는 무시합니다.
	_ = godotenv.Load()

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Err: fmt.Errorf("out of range: %d", c.Server.Port)}
	}

	if !strings.HasPrefix(c.Groww.WSURL, "ws://") && !strings.HasPrefix(c.Groww.WSURL, "wss://") {
		return &domain.ConfigError{Field: "groww.ws_url", Err: fmt.Errorf("invalid websocket URL: %q", c.Groww.WSURL)}
	}
	if c.Groww.MaxReconnects < 0 {
		return &domain.ConfigError{Field: "groww.max_reconnects", Err: errors.New("must not be negative")}
	}

	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}

	if c.Mirror.IntervalMS <= 0 {
		return &domain.ConfigError{Field: "mirror.interval_ms", Err: errors.New("must be positive")}
	}
	if c.Mirror.PushTimeoutSec <= 0 {
		return &domain.ConfigError{Field: "mirror.push_timeout_sec", Err: errors.New("must be positive")}
	}
	if c.Mirror.Sheets.SheetID != "" && c.Mirror.Sheets.Range == "" {
		return &domain.ConfigError{Field: "mirror.sheets.range", Err: errors.New("required when sheet_id is set")}
	}

	if c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("required")}
	}

	return nil
}

// envOverrides carries the environment variables that may override the file.
// Empty values leave the file setting untouched.
type envOverrides struct {
	AccessToken    string `envconfig:"GROWW_ACCESS_TOKEN"`
	APIKey         string `envconfig:"GROWW_API_KEY"`
	APISecret      string `envconfig:"GROWW_API_SECRET"`
	TOTPSecret     string `envconfig:"GROWW_TOTP_SECRET"`
	WSURL          string `envconfig:"GROWW_WS_URL"`
	NiftyFutToken  string `envconfig:"NIFTY_FUT_EXCHANGE_TOKEN"`
	SensexFutToken string `envconfig:"SENSEX_FUT_EXCHANGE_TOKEN"`
	RefreshSecret  string `envconfig:"REFRESH_SECRET"`
	Port           string `envconfig:"PORT"`

	SheetID         string `envconfig:"GOOGLE_SHEET_ID"`
	SheetRange      string `envconfig:"GOOGLE_SHEET_RANGE"`
	CredentialsJSON string `envconfig:"GOOGLE_SHEETS_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	LogLevel string `envconfig:"LOG_LEVEL"`
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return &domain.ConfigError{Field: "env", Err: err}
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}

	set(&cfg.Groww.AccessToken, env.AccessToken)
	set(&cfg.Groww.APIKey, env.APIKey)
	set(&cfg.Groww.APISecret, env.APISecret)
	set(&cfg.Groww.TOTPSecret, env.TOTPSecret)
	set(&cfg.Groww.WSURL, env.WSURL)
	set(&cfg.Groww.NiftyFutToken, env.NiftyFutToken)
	set(&cfg.Groww.SensexFutToken, env.SensexFutToken)
	set(&cfg.Server.RefreshSecret, env.RefreshSecret)
	if p := strings.TrimSpace(env.Port); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return &domain.ConfigError{Field: "PORT", Err: err}
		}
		cfg.Server.Port = port
	}

	set(&cfg.Mirror.Sheets.SheetID, env.SheetID)
	set(&cfg.Mirror.Sheets.Range, env.SheetRange)
	set(&cfg.Mirror.Sheets.CredentialsJSON, env.CredentialsJSON)
	set(&cfg.Mirror.Sheets.CredentialsFile, env.CredentialsFile)

	set(&cfg.Mirror.Redis.Addr, env.RedisAddr)
	set(&cfg.Mirror.Redis.Password, env.RedisPassword)

	set(&cfg.Logging.Level, env.LogLevel)
	return nil
}
