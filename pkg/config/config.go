// Package config defines the immutable configuration a pipeline run reads.
package config

import (
	"errors"
	"fmt"
	"slices"
)

// Data source names.
const (
	DataSourceLogs = "logs"
	DataSourceCode = "code"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultMaxSubAgentIterations = 12
	DefaultMaxReasoningPasses    = 50
	DefaultMaxReviewRejections   = 3
)

// Sentinel validation errors.
var (
	ErrRepoPathRequired  = errors.New("repo_path is required")
	ErrNoDataSources     = errors.New("at least one data source must be enabled")
	ErrUnknownDataSource = errors.New("unknown data source")
	ErrProviderRequired  = errors.New("llm provider type is required")
	ErrModelRequired     = errors.New("llm model is required")
)

// ProviderType selects the LLM provider adapter.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
)

// LLMConfig configures the provider and the two model tiers the pipeline
// uses: a reasoning model for the reasoner/reviewer and a fast model for
// sub-agents and post-processing.
type LLMConfig struct {
	Provider       ProviderType `yaml:"provider"`
	APIKeyEnv      string       `yaml:"api_key_env,omitempty"`
	BaseURL        string       `yaml:"base_url,omitempty"`
	ReasoningModel string       `yaml:"reasoning_model"`
	FastModel      string       `yaml:"fast_model"`
	MaxTokens      int          `yaml:"max_tokens,omitempty"`
}

// ClickHouseConfig configures the ClickHouse-backed observability client.
type ClickHouseConfig struct {
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database,omitempty"`
	LogsTable      string `yaml:"logs_table,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// Config is the immutable configuration for one agent instance. All pipeline
// nodes hold a shared read-only reference.
type Config struct {
	// RepoPath is the root of the source tree under investigation.
	RepoPath string `yaml:"repo_path"`

	// CodebaseOverview is a host-supplied description of the repository,
	// embedded into sub-agent prompts. Optional.
	CodebaseOverview string `yaml:"codebase_overview,omitempty"`

	// DataSources enables evidence kinds: "logs", "code".
	DataSources []string `yaml:"data_sources"`

	// ReviewEnabled turns on the reviewer loop after each candidate answer.
	ReviewEnabled bool `yaml:"review_enabled"`

	MaxSubAgentIterations int `yaml:"max_sub_agent_iterations,omitempty"`
	MaxReasoningPasses    int `yaml:"max_reasoning_passes,omitempty"`
	MaxReviewRejections   int `yaml:"max_review_rejections,omitempty"`

	LLM        LLMConfig        `yaml:"llm"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse,omitempty"`
}

// ApplyDefaults fills unset numeric knobs with their defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxSubAgentIterations <= 0 {
		c.MaxSubAgentIterations = DefaultMaxSubAgentIterations
	}
	if c.MaxReasoningPasses <= 0 {
		c.MaxReasoningPasses = DefaultMaxReasoningPasses
	}
	if c.MaxReviewRejections <= 0 {
		c.MaxReviewRejections = DefaultMaxReviewRejections
	}
	if len(c.DataSources) == 0 {
		c.DataSources = []string{DataSourceLogs, DataSourceCode}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return ErrRepoPathRequired
	}
	if len(c.DataSources) == 0 {
		return ErrNoDataSources
	}
	for _, ds := range c.DataSources {
		if ds != DataSourceLogs && ds != DataSourceCode {
			return fmt.Errorf("%w: %s", ErrUnknownDataSource, ds)
		}
	}
	if c.LLM.Provider == "" {
		return ErrProviderRequired
	}
	if c.LLM.ReasoningModel == "" || c.LLM.FastModel == "" {
		return ErrModelRequired
	}
	return nil
}

// DataSourceEnabled reports whether the named data source is configured.
func (c *Config) DataSourceEnabled(name string) bool {
	return slices.Contains(c.DataSources, name)
}
