package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/httpapi"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/mirror"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	mir, err := openMirror(cfg)
	if err != nil {
		log.Fatalf("mirror init error: %v", err)
	}
	defer mir.Close()

	store := session.NewStore()
	cleaner := session.NewCleaner(store, mir, cfg.CleanupDelay)
	queue := matchmaking.NewQueue(cfg.NotifyCapacity)
	matcher := matchmaking.NewMatcher(queue, store, mir, cfg.BroadcastCapacity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go matcher.Run(ctx)

	wsh := ws.NewHandler(store, mir, cleaner, cfg.BroadcastCapacity)
	api := httpapi.New(queue, store, mir, wsh, cfg.BroadcastCapacity)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}
	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve error: %v", err)
		}
	}()

	<-ctx.Done()
	obslog.L().Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Error("server_shutdown_error", zap.Error(err))
	}
}

func openMirror(cfg *appcfg.Config) (mirror.Store, error) {
	if cfg.DatabaseURL != "" {
		return mirror.NewPostgres(cfg.DatabaseURL)
	}
	return mirror.NewRedis(cfg.RedisURL)
}
