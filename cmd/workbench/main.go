package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/config"
	"github.com/termhub/workbench/internal/orchestrator"
	"github.com/termhub/workbench/internal/server"
	"github.com/termhub/workbench/internal/session"
	"github.com/termhub/workbench/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	log.Info().
		Str("version", cfg.Version).
		Str("env", cfg.Env).
		Msg("Starting Workbench")

	store := session.NewStore(cfg.SessionsFile)
	if _, err := store.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}

	orch := orchestrator.New(store, cfg.ScratchDir)

	bg := worker.New(cfg.RedisAddr, store, cfg.ScratchDir)
	if bg != nil {
		bg.Start()
		log.Info().Str("redis", cfg.RedisAddr).Msg("Background transfer worker started")
	} else {
		log.Info().Msg("No Redis configured, folder transfers run in-process")
	}

	srv := server.New(cfg, store, orch, bg)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if bg != nil {
		bg.Shutdown()
	}
	orch.Shutdown()

	log.Info().Msg("Workbench exited")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" && cfg.LogFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
