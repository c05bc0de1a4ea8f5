package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Circle-Cat/edu-agent/internal/agent"
	"github.com/Circle-Cat/edu-agent/internal/config"
	"github.com/Circle-Cat/edu-agent/internal/httpapi"
	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/service"
	"github.com/Circle-Cat/edu-agent/internal/sessions"
	"github.com/Circle-Cat/edu-agent/internal/store"
	storefile "github.com/Circle-Cat/edu-agent/internal/store/file"
	storesqlite "github.com/Circle-Cat/edu-agent/internal/store/sqlite"
	"github.com/Circle-Cat/edu-agent/internal/telemetry"
)

func runServe() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	artifacts, err := openArtifactStore(cfg)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	state := store.NewStateStore()
	rt, err := runtime.NewGemini(ctx, state)
	if err != nil {
		return fmt.Errorf("init model runtime: %w", err)
	}

	selector := agent.ModalitySelector{
		TextModel:  cfg.Models.Text,
		AudioModel: cfg.Models.Audio,
	}
	factory := func(key sessions.Key) *agent.Session {
		return agent.NewSession(agent.Config{
			AppName:     key.AppName,
			UserID:      key.UserID,
			SessionID:   key.SessionID,
			Instruction: cfg.Agent.Instruction,
			Selector:    selector,
			Runtime:     rt,
			History:     state,
		})
	}

	maxIdle, err := cfg.SessionMaxIdle()
	if err != nil {
		return err
	}
	registry := sessions.NewManager(factory, maxIdle)
	registry.Start(ctx)

	svc := service.NewMessageService(artifacts)
	server := httpapi.NewServer(cfg, registry, svc)

	slog.Info("starting edu-agent",
		"version", Version,
		"text_model", cfg.Models.Text,
		"audio_model", cfg.Models.Audio,
		"artifact_backend", artifactBackendName(cfg))
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.Server.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}

func openArtifactStore(cfg *config.Config) (store.ArtifactStore, error) {
	switch cfg.Artifacts.Backend {
	case "", "memory":
		return store.NewMemoryArtifactStore(), nil
	case "file":
		return storefile.NewArtifactStore(cfg.Artifacts.Dir)
	case "sqlite":
		return storesqlite.NewArtifactStore(cfg.Artifacts.DBPath)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Artifacts.Backend)
	}
}

func artifactBackendName(cfg *config.Config) string {
	if cfg.Artifacts.Backend == "" {
		return "memory"
	}
	return cfg.Artifacts.Backend
}
