package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dq-agent/internal/cache"
	"dq-agent/internal/config"
	"dq-agent/internal/domain/ports/adapter"
	"dq-agent/internal/infra/auth"
	"dq-agent/internal/infra/engine"
	"dq-agent/internal/infra/logging"
	"dq-agent/internal/infra/metrics"
	"dq-agent/internal/infra/s3store"
	"dq-agent/internal/infra/web"
	"dq-agent/internal/infra/worker"
	"dq-agent/internal/infra/ws"
	"dq-agent/internal/notify"
	"dq-agent/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logging & metrics ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Task store (S3) ----
	s3Client, err := s3store.NewClient(ctx, &cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Msg("s3 client")
	}
	taskStore := s3store.NewTaskStore(s3Client, cfg.Store.Bucket, cfg.Store.TaskPrefix, logger)

	// ---- Result cache ----
	results := cache.NewResultCache(cfg.Cache.TTL.Std())

	// ---- Websocket hub & push dispatcher ----
	registry := ws.NewConnectionRegistry()
	hub := ws.NewHub(registry, logger)
	var transport notify.Transport
	if cfg.Notify.URL != "" {
		transport = notify.NewHTTPTransport(cfg.Notify.URL, cfg.Notify.Timeout.Std(), logger)
		logger.Info().Str("url", cfg.Notify.URL).Msg("push transport: HTTP")
	} else {
		transport = notify.NewWSTransport(hub, ws.MsgTypeNotification)
	}
	dispatcher := notify.NewDispatcher(transport, cfg.Notify.MaxRetries, cfg.Notify.BackoffBase.Std(), logger)

	// ---- Reasoning engine ----
	var eng adapter.AgentEngine
	if cfg.Engine.URL != "" {
		eng = engine.NewHTTPEngine(&cfg.Engine)
		logger.Info().Str("url", cfg.Engine.URL).Msg("engine: HTTP")
	} else {
		eng = engine.NewNoopEngine()
		logger.Warn().Msg("engine.url not set, using noop engine")
	}

	// ---- Async worker pool ----
	pool := worker.NewPool(8, logger)
	pool.Start(ctx)

	// ---- Use cases ----
	dispatchUC := usecase.NewDispatchUseCase(taskStore, eng, results, pool, dispatcher, logger)
	resultUC := usecase.NewResultUseCase(taskStore, eng, results, dispatcher, logger)

	// ---- HTTP server ----
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	srv := web.NewServer(dispatchUC, resultUC, verifier, hub, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	pool.Stop()
	cancel()
}
