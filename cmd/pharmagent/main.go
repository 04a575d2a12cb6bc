// Command pharmagent is the main entry point for the pharmacy assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonderful-ai/pharmagent/internal/agent"
	"github.com/wonderful-ai/pharmagent/internal/config"
	"github.com/wonderful-ai/pharmagent/internal/health"
	"github.com/wonderful-ai/pharmagent/internal/observe"
	"github.com/wonderful-ai/pharmagent/internal/server"
	"github.com/wonderful-ai/pharmagent/internal/stats"
	"github.com/wonderful-ai/pharmagent/internal/store"
	"github.com/wonderful-ai/pharmagent/internal/tools"
	"github.com/wonderful-ai/pharmagent/internal/tools/mcpbridge"
	"github.com/wonderful-ai/pharmagent/internal/tools/pharmacy"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm/anyllm"
	"github.com/wonderful-ai/pharmagent/pkg/provider/llm/openai"
)

// defaultSystemPrompt instructs the model when agent.system_prompt_file is
// not configured.
const defaultSystemPrompt = `You are a helpful pharmacy assistant for the MediCare pharmacy chain.
You help customers look up medications, check stock at our stores, review their
prescriptions, and request refills.

Guidelines:
- Use the provided tools to answer questions; never invent medication data,
  prices, stock levels, or prescription details.
- If a medication lookup reports a fuzzy match, confirm the suggested name with
  the customer before acting on it.
- Never give medical advice, dosage recommendations, or drug interaction
  guidance. Direct those questions to a pharmacist or doctor.
- For prescription operations, always confirm the customer's identity first by
  looking up their account.
- Be concise and friendly.`

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pharmagent: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pharmagent: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("pharmagent starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "pharmagent",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Database ──────────────────────────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to create database pool", "err", err)
			return 1
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("database unreachable", "err", err)
			return 1
		}
		slog.Info("database connected")
	} else {
		slog.Warn("no database configured — pharmacy tools disabled, stats kept in memory")
	}

	// ── Tool usage stats ──────────────────────────────────────────────────────
	var recorder stats.Recorder
	if pool != nil {
		pg := stats.NewPostgres(pool, logger)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate tool stats schema", "err", err)
			return 1
		}
		recorder = pg
	} else {
		recorder = stats.NewMemory()
	}

	// ── Tool registry ─────────────────────────────────────────────────────────
	reg := tools.NewRegistry(recorder,
		tools.WithToolTimeout(cfg.Agent.ToolTimeout.Std()),
		tools.WithLogger(logger),
	)

	if pool != nil {
		st := store.New(pool)
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to migrate pharmacy schema", "err", err)
			return 1
		}
		if err := pharmacy.New(st, logger).Register(reg); err != nil {
			slog.Error("failed to register pharmacy tools", "err", err)
			return 1
		}
	}

	// ── MCP tool servers (optional) ───────────────────────────────────────────
	bridge := mcpbridge.New()
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Warn("mcp bridge close error", "err", err)
		}
	}()
	for _, mcpCfg := range cfg.MCP.Servers {
		if err := bridge.Connect(ctx, mcpCfg, reg); err != nil {
			slog.Error("failed to connect MCP server", "name", mcpCfg.Name, "err", err)
			return 1
		}
		slog.Info("mcp server connected", "name", mcpCfg.Name, "transport", mcpCfg.Transport)
	}

	// ── Completion provider ───────────────────────────────────────────────────
	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		slog.Error("failed to create completion provider", "err", err)
		return 1
	}

	// ── System prompt ─────────────────────────────────────────────────────────
	systemPrompt := defaultSystemPrompt
	if cfg.Agent.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.Agent.SystemPromptFile)
		if err != nil {
			slog.Error("failed to read system prompt file", "path", cfg.Agent.SystemPromptFile, "err", err)
			return 1
		}
		systemPrompt = string(data)
	}

	// ── Agent loop ────────────────────────────────────────────────────────────
	loop := agent.New(provider, reg,
		agent.WithMaxToolRounds(cfg.Agent.MaxToolRounds),
		agent.WithCompletionTimeout(cfg.Agent.CompletionTimeout.Std()),
		agent.WithSampling(cfg.Agent.Temperature, cfg.Agent.MaxTokens),
		agent.WithSystemPrompt(systemPrompt),
		agent.WithLogger(logger),
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	printStartupSummary(cfg, reg)

	serverOpts := []server.Option{
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithLogger(logger),
	}
	if pool != nil {
		serverOpts = append(serverOpts, server.WithHealth(health.New(health.Database(pool))))
	}
	if cfg.Server.TLS != nil {
		serverOpts = append(serverOpts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}

	srv := server.New(cfg.Server.ListenAddr, loop, recorder, serverOpts...)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProvider instantiates the configured completion backend.
// "openai-native" uses the official OpenAI SDK client directly; every other
// name is handed to any-llm-go, which routes it to the matching backend.
func buildProvider(cfg config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Name {
	case "":
		return nil, errors.New("provider.name is required")
	case "openai-native":
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	default:
		var opts []anyllmlib.Option
		if cfg.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New(cfg.Name, cfg.Model, opts...)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, reg *tools.Registry) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Pharmagent — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name+" / "+cfg.Provider.Model)
	if cfg.Database.DSN != "" {
		printRow("Database", "postgres")
	} else {
		printRow("Database", "(not configured)")
	}
	printRow("Tools", fmt.Sprintf("%d registered", len(reg.Definitions())))
	printRow("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	printRow("Max tool rounds", fmt.Sprintf("%d", cfg.Agent.MaxToolRounds))
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
