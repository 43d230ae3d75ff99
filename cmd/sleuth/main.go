// Sleuth - LLM-driven incident triage agent over your source tree and logs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/triage-labs/sleuth/pkg/agent"
	"github.com/triage-labs/sleuth/pkg/agent/pipeline"
	"github.com/triage-labs/sleuth/pkg/api"
	"github.com/triage-labs/sleuth/pkg/config"
	"github.com/triage-labs/sleuth/pkg/events"
	"github.com/triage-labs/sleuth/pkg/llm"
	"github.com/triage-labs/sleuth/pkg/llm/anthropic"
	"github.com/triage-labs/sleuth/pkg/llm/openai"
	"github.com/triage-labs/sleuth/pkg/observability"
	"github.com/triage-labs/sleuth/pkg/observability/clickhouse"
	"github.com/triage-labs/sleuth/pkg/version"
)

type cli struct {
	Config  string `help:"Path to the YAML config file." default:"sleuth.yaml" type:"path"`
	EnvFile string `help:"Optional .env file to load." default:".env" type:"path"`
	Debug   bool   `help:"Enable debug logging."`

	Run     runCmd     `cmd:"" help:"Run one triage investigation."`
	Serve   serveCmd   `cmd:"" help:"Start the HTTP API."`
	Version versionCmd `cmd:"" help:"Print the version."`
}

type runCmd struct {
	Query string `arg:"" help:"Natural-language incident description."`
}

type serveCmd struct {
	Addr string `help:"Listen address." default:":8080"`
}

type versionCmd struct{}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("sleuth"),
		kong.Description("LLM-driven incident triage agent."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(c.EnvFile); err != nil {
		slog.Debug("No .env file loaded", "path", c.EnvFile, "error", err)
	}

	ctx.FatalIfErrorf(ctx.Run(&c))
}

func (v *versionCmd) Run(_ *cli) error {
	fmt.Println(version.String())
	return nil
}

func (r *runCmd) Run(c *cli) error {
	cfg, client, obs, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := func(u events.StreamUpdate) {
		if chunk, ok := u.(events.ChunkUpdate); ok {
			fmt.Fprint(os.Stderr, chunk.Chunk)
			return
		}
		fmt.Fprintf(os.Stderr, "\n[%s]\n", u.UpdateType())
	}

	state := agent.NewStateManager(nil, sink)
	runner := pipeline.NewRunner(cfg, client, obs, state, r.Query)
	result, err := runner.Run(runCtx, r.Query)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr)
	fmt.Println(result.Answer)
	return nil
}

func (s *serveCmd) Run(c *cli) error {
	cfg, client, obs, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return api.NewServer(cfg, client, obs).Run(s.Addr)
}

// setup loads config and constructs the provider and observability clients.
func setup(c *cli) (*config.Config, llm.Client, observability.Client, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, nil, nil, err
	}

	apiKey := ""
	if cfg.LLM.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}

	var client llm.Client
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		client = anthropic.New(anthropic.Config{
			APIKey:    apiKey,
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	case config.ProviderOpenAI:
		client = openai.New(openai.Config{
			APIKey:    apiKey,
			BaseURL:   cfg.LLM.BaseURL,
			MaxTokens: cfg.LLM.MaxTokens,
		})
	default:
		return nil, nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	var obs observability.Client
	if cfg.DataSourceEnabled(config.DataSourceLogs) {
		ch, err := clickhouse.New(context.Background(), clickhouse.Config{
			DSN:            cfg.ClickHouse.DSN,
			Database:       cfg.ClickHouse.Database,
			LogsTable:      cfg.ClickHouse.LogsTable,
			TimeoutSeconds: cfg.ClickHouse.TimeoutSeconds,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect log backend: %w", err)
		}
		obs = ch
	}

	slog.Info("Sleuth configured",
		"repo", cfg.RepoPath,
		"data_sources", cfg.DataSources,
		"provider", cfg.LLM.Provider)
	return cfg, client, obs, nil
}
