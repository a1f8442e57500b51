package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SuessVilliano/LIV8-OS-sub003/internal/agentstate"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/api"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/capability"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/config"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/dispatch"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/knowledge"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/orchestrator"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/provider"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/store"
	"github.com/SuessVilliano/LIV8-OS-sub003/internal/taskqueue"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting agency engine...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agency.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Language-model gateway: providers tried in config order, canned
	// fallback at the tail.
	var providers []provider.Provider
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			providers = append(providers, provider.NewOpenAI(provCfg, logger))
		case "anthropic":
			providers = append(providers, provider.NewAnthropic(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	llmTimeout := time.Duration(cfg.Timeouts.LLMSeconds) * time.Second
	chain := provider.NewChain(providers, llmTimeout, logger)

	// Durable KV: prefer Postgres, then Redis, then in-memory.
	var kv store.KV
	switch {
	case cfg.Database.Postgres.DSN != "":
		pg, pgErr := store.NewPostgres(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Fatal("postgres unavailable", zap.Error(pgErr))
		}
		defer pg.Close()
		if mErr := pg.Migrate(context.Background(), "migrations"); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		kv = pg
	case cfg.Database.Redis.URL != "":
		rd, rdErr := store.NewRedis(cfg.Database.Redis.URL)
		if rdErr != nil {
			logger.Fatal("redis unavailable", zap.Error(rdErr))
		}
		defer rd.Close()
		kv = rd
	default:
		logger.Warn("no database configured, state is in-memory only")
		kv = store.NewMemory()
	}

	// Brand knowledge lookup.
	var kb knowledge.Lookup
	if cfg.Knowledge.Qdrant.Host != "" {
		q, qErr := knowledge.NewQdrant(knowledge.QdrantConfig{
			Host:       cfg.Knowledge.Qdrant.Host,
			Port:       cfg.Knowledge.Qdrant.Port,
			Collection: cfg.Knowledge.Qdrant.Collection,
		}, logger)
		if qErr != nil {
			logger.Warn("qdrant unavailable, running without brand knowledge", zap.Error(qErr))
			kb = knowledge.NewStatic(nil)
		} else {
			defer q.Close()
			kb = q
		}
	} else {
		kb = knowledge.NewStatic(nil)
	}

	registry := capability.NewRegistry(capability.Builtin())
	agents := agentstate.New(kv, registry, logger)
	defer agents.Close()

	dispatcher := dispatch.New(registry, chain, kb, agents, kv, logger)
	stepTimeout := time.Duration(cfg.Timeouts.StepSeconds) * time.Second
	orch := orchestrator.New(registry, dispatcher, chain, kv, stepTimeout, logger)
	defer orch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Task queue consumer.
	if cfg.Queue.URL != "" {
		queue, qErr := taskqueue.NewQueue(taskqueue.QueueConfig{
			URL:         cfg.Queue.URL,
			Name:        cfg.Queue.Name,
			MaxAttempts: cfg.Queue.MaxAttempts,
		}, logger)
		if qErr != nil {
			logger.Fatal("task queue unavailable", zap.Error(qErr))
		}
		defer queue.Close()

		consumer := taskqueue.NewConsumer(dispatcher, logger)
		go func() {
			if cErr := queue.Consume(ctx, cfg.Queue.Workers, consumer.Handle); cErr != nil && ctx.Err() == nil {
				logger.Error("queue consumer stopped", zap.Error(cErr))
			}
		}()
		logger.Info("Task queue consumer started",
			zap.String("queue", cfg.Queue.Name), zap.Int("workers", cfg.Queue.Workers))
	}

	// HTTP server.
	handler := api.NewHandler(orch, dispatcher, agents, logger)
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", port))
		if sErr := srv.ListenAndServe(); sErr != nil && sErr != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(sErr))
		}
	}()

	// Graceful shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("Goodbye")
}
