package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/meet-relay/config"
	"github.com/cwrk-planet/meet-relay/internal/postgres"
	"github.com/cwrk-planet/meet-relay/internal/service"
	grpcx "github.com/cwrk-planet/meet-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/meet-relay/internal/transport/http"
	"github.com/cwrk-planet/meet-relay/internal/transport/ws"
	"github.com/cwrk-planet/meet-relay/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting meet-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	policy, err := service.ParseHostPolicy(cfg.Rooms.HostPolicy)
	if err != nil {
		log.Fatalf("host policy: %v", err)
	}

	// --- meeting log (optional) ---
	ctx := context.Background()
	var (
		recorder *service.AsyncRecorder
		meetings httpx.MeetingLister
	)
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        4,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()

		repo := postgres.NewMeetingRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres: %v", err)
		}
		recorder = service.NewAsyncRecorder(repo, 0)
		meetings = repo
		slog.Info("meeting log enabled")
	}

	// --- relay engine ---
	engineOpts := service.Options{
		HistoryLimit:     *cfg.Chat.HistoryLimit,
		Policy:           policy,
		CheckConsistency: cfg.Logging.Debug,
	}
	if recorder != nil {
		engineOpts.Recorder = recorder
	}
	engine := service.NewEngine(engineOpts)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, engine, ws.Options{
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		PingInterval:    cfg.PingInterval(),
		WriteTimeout:    cfg.WriteTimeout(),
		SendBuffer:      cfg.WS.SendBuffer,
		RateLimit:       cfg.WS.RateLimit,
		RateBurst:       cfg.WS.RateBurst,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(engine, meetings, cfg.ICE.WebRTC())
	router := httpx.NewRouter(handler, wsServer.HandleWS, httpx.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	// no WriteTimeout: it would cut long-lived websocket connections
	httpSrv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout(),
		IdleTimeout: cfg.IdleTimeout(),
	}

	// --- run servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpcx.Server
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpcx.NewServer()
		grpcSrv.SetServing(true)

		go func() {
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.Drain()
	}
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	// hijacked websocket connections are not tracked by http.Server
	if err := hub.CloseAll(ctxShutdown); err != nil {
		slog.Warn("ws close", "err", err, "left", hub.Len())
	}
	if recorder != nil {
		if err := recorder.Close(ctxShutdown); err != nil {
			slog.Warn("meeting log drain", "err", err)
		}
	}
	if grpcSrv != nil {
		grpcSrv.Stop(ctxShutdown)
	}
	slog.Info("stopped", "rooms", engine.Stats().Rooms)
}
