package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"dealdesk/internal/adapter/crm"
	"dealdesk/internal/adapter/gateway"
	"dealdesk/internal/adapter/llm"
	"dealdesk/internal/adapter/msgraph"
	"dealdesk/internal/adapter/store"
	"dealdesk/internal/adapter/tool"
	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
	"dealdesk/internal/infra/logger"
	"dealdesk/internal/infra/tracer"
	"dealdesk/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	// 1. Config (.env is optional, env vars override the file)
	_ = godotenv.Load()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Local cache
	store, err := initStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.Close()

	// 4. LLM provider chain
	provider := initLLM(cfg, log)

	// 5. Tools
	registry := tool.NewRegistry(log)
	registry.Register(tool.NewQueryDealsTool(store, log))
	registry.Register(tool.NewQueryContactsTool(store, log))
	registry.Register(tool.NewSearchEmailsTool(store, log))
	registry.Register(tool.NewPredictCashflowTool(store, log))
	registry.Register(tool.NewCreateBonusTool(store, log))
	registry.Register(tool.NewCreateDocumentTool(store, log))
	executor := tool.NewCommitExecutor(registry)

	// 6. Agent
	agent, err := initAgent(cfg, provider, registry, executor, log)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	// 7. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 8. Background sync
	if cfg.Scheduler.Enabled {
		syncer := initSyncer(cfg, store, log)
		if err := syncer.Start(cfg.Scheduler); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer syncer.Stop()
	}

	// 9. Gateway (blocks until shutdown)
	srv := gateway.NewServer(cfg.Gateway, agent, usecase.NewSessionManager(), store, log)
	return srv.Start(ctx)
}

func initStore(cfg *config.Config) (domain.CacheStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

func initLLM(cfg *config.Config, log *slog.Logger) domain.StreamingChatProvider {
	var provider domain.StreamingChatProvider = llm.NewClient(cfg.LLM.Provider, log)
	provider = llm.NewRetryingClient(provider, cfg.LLM.Retry, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerClient(provider, cfg.LLM.CircuitBreaker, log)
	}
	return provider
}

func initAgent(cfg *config.Config, provider domain.StreamingChatProvider, registry *tool.Registry, executor domain.ActionExecutor, log *slog.Logger) (*usecase.Agent, error) {
	deps := usecase.AgentDeps{
		LLM:           provider,
		Tools:         registry,
		Executor:      executor,
		Logger:        log,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
	}
	if cfg.Agent.ContextGuard.Enabled {
		guard, err := usecase.NewContextGuard(cfg.Agent.ContextGuard.MaxTokens, cfg.Agent.ContextGuard.Encoding, log)
		if err != nil {
			return nil, fmt.Errorf("context guard: %w", err)
		}
		deps.ContextGuard = guard
	}
	return usecase.NewAgent(deps), nil
}

func initSyncer(cfg *config.Config, cache domain.CacheStore, log *slog.Logger) *usecase.Syncer {
	var crmSource domain.CRMSource
	if cfg.CRM.Enabled {
		crmSource = crm.NewClient(cfg.CRM, log)
	}
	var mailSource domain.MailSource
	if cfg.Graph.Enabled {
		mailSource = msgraph.NewClient(cfg.Graph, cfg.LLM.Retry, log)
	}
	return usecase.NewSyncer(cache, crmSource, mailSource, log)
}
