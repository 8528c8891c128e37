package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/focus-service/config"
	"github.com/cwrk-planet/focus-service/internal/postgres"
	"github.com/cwrk-planet/focus-service/internal/presence"
	"github.com/cwrk-planet/focus-service/internal/service"
	"github.com/cwrk-planet/focus-service/internal/session"
	httpx "github.com/cwrk-planet/focus-service/internal/transport/http"
	"github.com/cwrk-planet/focus-service/internal/transport/ws"
	"github.com/cwrk-planet/logger/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting focus-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	roomRepo := postgres.NewRoomRepository(db.Pool)
	sessionRepo := postgres.NewSessionRepository(db.Pool)

	// --- core ---
	store := presence.NewStore(presence.Options{
		DefaultRoomName: cfg.Room.DefaultName,
		GracePeriod:     cfg.GracePeriod(),
	})
	coordinator := session.NewCoordinator(roomRepo, sessionRepo, store)
	statsSvc := service.NewStatsService(roomRepo, sessionRepo)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, store, coordinator)
	store.SetSink(wsServer) // асинхронные события грейс-таймера

	// --- HTTP ---
	handler := httpx.NewHandler(store, statsSvc)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- run ---
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}
