package server

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ratio_watch/internal/domain"
	"ratio_watch/internal/infra"
)

// StateSource provides the current snapshot and band zones.
type StateSource interface {
	Snapshot() domain.Snapshot
	Zones() (fut, cash domain.Zone)
}

// TokenGenerator requests a fresh access token with the API credentials.
type TokenGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// FeedController restarts the feed with a new credential.
type FeedController interface {
	Restart(token string) error
	Running() bool
	LastError() error
}

// TokenStore persists the credential across restarts.
type TokenStore interface {
	SaveAccessToken(token string) error
}

// Config holds the HTTP surface settings.
type Config struct {
	Addr string
	// RefreshSecret gates POST /token when set.
	RefreshSecret string
}

// Deps are the collaborators behind the handlers. Tokens and Store may be nil.
type Deps struct {
	State   StateSource
	Push    http.Handler
	Feed    FeedController
	Tokens  TokenGenerator
	Store   TokenStore
	Metrics *infra.Metrics
}

// Server exposes the dashboard state over HTTP and websocket.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates a server.
func New(cfg Config, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("module", "server"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/state.csv", s.handleStateCSV)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /token", s.handleToken)
	if s.deps.Push != nil {
		mux.Handle("GET /ws", s.deps.Push)
	}

	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/api/state", http.StatusFound)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.State.Snapshot())
}

func (s *Server) handleStateCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(s.deps.State.Snapshot().Rows()); err != nil {
		s.logger.Warn("Failed to write CSV", slog.Any("error", err))
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"feed_up": s.deps.Metrics.FeedUp(),
	}
	fut, cash := s.deps.State.Zones()
	resp["fut_zone"] = fut.String()
	resp["cash_zone"] = cash.String()
	if s.deps.Feed != nil {
		resp["feed_running"] = s.deps.Feed.Running()
		if err := s.deps.Feed.LastError(); err != nil {
			resp["feed_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleToken refreshes the feed credential. Form fields: secret (required
// when a refresh secret is configured) and access_token (optional; a token
// is generated from the API credentials when absent).
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form")
		return
	}

	if s.cfg.RefreshSecret != "" {
		secret := strings.TrimSpace(r.PostForm.Get("secret"))
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.RefreshSecret)) != 1 {
			s.logger.Warn("Token refresh rejected", slog.String("remote", r.RemoteAddr))
			writeError(w, http.StatusForbidden, domain.ErrInvalidSecret.Error())
			return
		}
	}

	token := strings.TrimSpace(r.PostForm.Get("access_token"))
	if token == "" {
		if s.deps.Tokens == nil {
			writeError(w, http.StatusBadRequest, "API key and secret (or TOTP secret) must be configured to refresh the token here")
			return
		}
		generated, err := s.deps.Tokens.Generate(r.Context())
		if err != nil {
			s.logger.Error("Token generation failed", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		token = generated
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.SaveAccessToken(token); err != nil {
			s.logger.Warn("Failed to persist access token", slog.Any("error", err))
		}
	}

	if err := s.deps.Feed.Restart(token); err != nil {
		s.logger.Error("Feed restart failed", slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.logger.Info("Access token refreshed, feed restarted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "token_updated"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
