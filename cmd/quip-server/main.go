// Package main provides the quip chat server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quiplabs/quip/internal/chat"
	"github.com/quiplabs/quip/internal/config"
	"github.com/quiplabs/quip/internal/db"
	"github.com/quiplabs/quip/internal/llm"
	"github.com/quiplabs/quip/internal/memory"
	"github.com/quiplabs/quip/internal/server"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLogger := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLogger(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	logger.Info("starting quip-server", "port", cfg.ServerPort,
		"llm", cfg.LLMModel, "long_term_memory", cfg.LongTermMemory)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("QUIP_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}
	cancel()

	memStore, err := memory.NewChromemStore(cfg.MemoryPath)
	if err != nil {
		logger.Error("failed to open memory store", "error", err)
		os.Exit(1)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		cancel()
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	generator, err := llm.NewGenerator(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to create generator", "error", err)
		os.Exit(1)
	}

	orchestrator := chat.NewOrchestrator(
		chat.NewGate(),
		dbClient,
		memStore,
		embedder,
		generator,
		chat.Options{
			LongTermMemory: cfg.LongTermMemory,
			Window:         cfg.RecentWindow,
			TopK:           cfg.TopK,
			RetryAfter:     cfg.RetryAfter,
		},
		logger,
	)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		// Sessions do not survive a restart without a configured secret.
		jwtSecret = randomSecret()
		logger.Warn("QUIP_JWT_SECRET not set, using an ephemeral secret")
	}

	srv := server.New(dbClient, orchestrator, jwtSecret, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // long for LLM responses
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
