package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomlabs/loom/internal/agent"
	"github.com/loomlabs/loom/internal/config"
	"github.com/loomlabs/loom/internal/llm"
	"github.com/loomlabs/loom/internal/observability"
	"github.com/loomlabs/loom/internal/published"
	"github.com/loomlabs/loom/internal/sessions"
	"github.com/loomlabs/loom/internal/skills"
	"github.com/loomlabs/loom/internal/tasks"
	"github.com/loomlabs/loom/internal/tools"
	"github.com/loomlabs/loom/internal/trace"
)

// staleWorkspaceAge is how old a scratch workspace must be before the
// startup reaper removes it.
const staleWorkspaceAge = 24 * time.Hour

// runtime holds the assembled engine and its backing services.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	agent  *agent.Agent
	front  *published.Front
	runner *tasks.Runner

	traces    trace.Store
	taskStore tasks.Store

	shutdowns []func(context.Context) error
}

// buildRuntime wires providers, stores, tools and the engine from config.
// withMetrics controls prometheus registration so one-shot CLI commands do
// not register collectors they never serve.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, withMetrics bool) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	client, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracer, stopTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName: "loom",
		Endpoint:    cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}
	rt.shutdowns = append(rt.shutdowns, stopTracer)

	var metrics *observability.Metrics
	if withMetrics {
		metrics = observability.NewMetrics()
	}

	sessionStore, traceStore, taskStore, err := buildStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.traces = traceStore
	rt.taskStore = taskStore

	workspaces := tools.NewWorkspaceManager(cfg.Tools.WorkspaceRoot)
	if n, err := workspaces.ReapStale(staleWorkspaceAge); err != nil {
		logger.Warn("workspace reap failed", "error", err)
	} else if n > 0 {
		logger.Info("reaped stale workspaces", "count", n)
	}

	var skillRegistry skills.Registry
	if cfg.Skills.Dir != "" {
		skillRegistry = &skills.DirRegistry{Root: cfg.Skills.Dir}
	}

	rt.agent = agent.New(agent.Config{
		Client:          client,
		Workspaces:      workspaces,
		BuildTools:      func(workspace string) *tools.Registry { return buildToolRegistry(cfg, workspace) },
		Invoker:         tools.InvokerConfig{MaxConcurrent: cfg.Tools.MaxConcurrent, DefaultTimeout: cfg.Tools.DefaultTimeout},
		Skills:          skillRegistry,
		Sessions:        sessionStore,
		Recorder:        trace.NewRecorder(traceStore, logger),
		SystemPrompt:    cfg.LLM.SystemPrompt,
		DefaultProvider: cfg.LLM.DefaultProvider,
		DefaultModel:    defaultModel(cfg),
		MaxTokens:       cfg.LLM.MaxTokens,
		Metrics:         metrics,
		Tracer:          tracer,
		Logger:          logger,
	})

	presets := published.NewMemoryPresetStore()
	for i := range cfg.Presets {
		presets.Put(&cfg.Presets[i])
	}
	rt.front = published.NewFront(presets, rt.agent, logger)

	rt.runner = tasks.NewRunner(taskStore, logger)
	rt.runner.RegisterHandler("agent_run", tasks.AgentHandler(rt.agent))

	return rt, nil
}

// close runs the registered shutdown hooks.
func (rt *runtime) close(ctx context.Context) {
	for _, stop := range rt.shutdowns {
		if err := stop(ctx); err != nil {
			rt.logger.Warn("shutdown hook failed", "error", err)
		}
	}
}

func buildProviders(ctx context.Context, cfg *config.Config) (*llm.Client, error) {
	client := llm.NewClient()
	registered := 0

	if key := cfg.LLM.Anthropic.APIKey; key != "" {
		p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:       key,
			BaseURL:      cfg.LLM.Anthropic.BaseURL,
			DefaultModel: cfg.LLM.Anthropic.Model,
		})
		if err != nil {
			return nil, err
		}
		client.Register(p)
		registered++
	}
	if key := cfg.LLM.OpenAI.APIKey; key != "" {
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:       key,
			BaseURL:      cfg.LLM.OpenAI.BaseURL,
			DefaultModel: cfg.LLM.OpenAI.Model,
		})
		if err != nil {
			return nil, err
		}
		client.Register(p)
		registered++
	}
	if key := cfg.LLM.Gemini.APIKey; key != "" {
		p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey:       key,
			DefaultModel: cfg.LLM.Gemini.Model,
		})
		if err != nil {
			return nil, err
		}
		client.Register(p)
		registered++
	}
	if region := cfg.LLM.Bedrock.Region; region != "" {
		p, err := llm.NewBedrockProvider(ctx, llm.BedrockConfig{
			Region:          region,
			AccessKeyID:     cfg.LLM.Bedrock.AccessKeyID,
			SecretAccessKey: cfg.LLM.Bedrock.SecretAccessKey,
			DefaultModel:    cfg.LLM.Bedrock.Model,
		})
		if err != nil {
			return nil, err
		}
		client.Register(p)
		registered++
	}

	if registered == 0 {
		return nil, fmt.Errorf("no LLM provider configured; set at least one API key")
	}
	return client, nil
}

func buildStores(cfg *config.Config, logger *slog.Logger) (sessions.Store, trace.Store, tasks.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		sessionStore, err := sessions.NewPostgresStore(sessions.PostgresConfig{DSN: cfg.Storage.PostgresDSN})
		if err != nil {
			return nil, nil, nil, err
		}
		traceStore, err := trace.NewPostgresStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		taskStore, err := tasks.NewPostgresStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return sessionStore, traceStore, taskStore, nil
	case "sqlite":
		traceStore, err := trace.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		taskStore, err := tasks.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		// Sessions need postgres JSONB appends; sqlite runs keep them
		// in memory.
		logger.Info("sqlite storage: sessions are in-memory for this process")
		return sessions.NewMemoryStore(), traceStore, taskStore, nil
	default:
		return sessions.NewMemoryStore(), trace.NewMemoryStore(), tasks.NewMemoryStore(), nil
	}
}

func buildToolRegistry(cfg *config.Config, workspace string) *tools.Registry {
	fileCfg := tools.FileConfig{
		Workspace:    workspace,
		MaxReadBytes: int(cfg.Tools.MaxReadBytes),
	}
	return tools.NewRegistry(
		tools.NewBashTool(workspace),
		tools.NewExecuteCodeTool(workspace),
		tools.NewReadTool(fileCfg),
		tools.NewWriteTool(fileCfg),
		tools.NewEditTool(fileCfg),
		tools.NewGlobTool(fileCfg),
		tools.NewGrepTool(fileCfg),
		tools.NewWebFetchTool(),
		tools.NewWebSearchTool(),
	)
}

func defaultModel(cfg *config.Config) string {
	if cfg.LLM.DefaultModel != "" {
		return cfg.LLM.DefaultModel
	}
	switch cfg.LLM.DefaultProvider {
	case "anthropic":
		return cfg.LLM.Anthropic.Model
	case "openai":
		return cfg.LLM.OpenAI.Model
	case "gemini":
		return cfg.LLM.Gemini.Model
	case "bedrock":
		return cfg.LLM.Bedrock.Model
	}
	return ""
}
