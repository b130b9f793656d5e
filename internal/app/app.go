package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ratio_watch/internal/engine"
	"ratio_watch/internal/infra/groww"
	"ratio_watch/internal/infra/mirror"
	"ratio_watch/internal/infra/push"
	"ratio_watch/internal/server"
	"ratio_watch/internal/service"
)

// App is the wired live server.
type App struct {
	Reducer *engine.Reducer
	Hub     *push.Hub
	Mirror  *mirror.Mirror
	Feed    *service.FeedService
	Server  *server.Server
}

// New wires every component from an initialized bootstrap.
func New(ctx context.Context, b *Bootstrap) *App {
	cfg := b.Config

	reducer := engine.NewReducer(cfg.Engine.InboxSize, b.Instruments, nil)
	hub := push.NewHub(reducer.Snapshot)
	mir := mirror.New(
		time.Duration(cfg.Mirror.IntervalMS)*time.Millisecond,
		time.Duration(cfg.Mirror.PushTimeoutSec)*time.Second,
		b.Sinks(ctx)...,
	)

	publisher := service.NewPublisher(hub)
	if mir.Enabled() {
		publisher.Subscribe(mir)
	}
	reducer.SetOnUpdate(publisher.Publish)

	feed := service.NewFeedService(groww.Factory(groww.FeedConfig{
		URL:           cfg.Groww.WSURL,
		Instruments:   b.Instruments,
		MaxReconnects: cfg.Groww.MaxReconnects,
	}), reducer.Inbox())

	deps := server.Deps{
		State: reducer,
		Push:  http.HandlerFunc(hub.ServeWS),
		Feed:  feed,
		Store: b.Storage,
	}
	if b.Credentials.CanGenerate() {
		deps.Tokens = b.Tokens
	}
	srv := server.New(server.Config{
		Addr:          fmt.Sprintf(":%d", cfg.Server.Port),
		RefreshSecret: cfg.Server.RefreshSecret,
	}, deps)

	return &App{Reducer: reducer, Hub: hub, Mirror: mir, Feed: feed, Server: srv}
}

// Run starts the reducer, the feed and the HTTP server and blocks until ctx
// is done. A failed feed does not stop the server.
func (a *App) Run(ctx context.Context, token string) error {
	go a.Reducer.Run(ctx)
	slog.InfoContext(ctx, "✅ Reducer started")

	if err := a.Feed.Start(ctx, token); err != nil {
		return err
	}

	err := a.Server.Run(ctx)

	a.Feed.Stop()
	a.Hub.CloseAll()
	a.Mirror.Wait()
	return err
}
