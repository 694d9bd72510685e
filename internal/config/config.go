// Package config loads the engine's YAML configuration. Values support
// ${ENV} expansion; defaults are applied after parsing so a minimal file
// with just API keys is enough to run locally.
package config

import (
	"fmt"
	"time"

	"github.com/loomlabs/loom/internal/published"
	"github.com/loomlabs/loom/internal/tools"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Storage       StorageConfig       `yaml:"storage"`
	Tools         ToolsConfig         `yaml:"tools"`
	Skills        SkillsConfig        `yaml:"skills"`
	MCPServers    []tools.MCPConfig   `yaml:"mcp_servers"`
	Presets       []published.Preset  `yaml:"presets"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP front.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig selects providers and the default model.
type LLMConfig struct {
	DefaultProvider string          `yaml:"default_provider"`
	DefaultModel    string          `yaml:"default_model"`
	MaxTokens       int             `yaml:"max_tokens"`
	SystemPrompt    string          `yaml:"system_prompt"`
	Anthropic       ProviderConfig  `yaml:"anthropic"`
	OpenAI          ProviderConfig  `yaml:"openai"`
	Gemini          ProviderConfig  `yaml:"gemini"`
	Bedrock         BedrockSettings `yaml:"bedrock"`
}

// ProviderConfig is shared API-key provider configuration.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BedrockSettings configures the AWS Bedrock provider.
type BedrockSettings struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Model           string `yaml:"model"`
}

// StorageConfig selects the session/trace/task backends.
type StorageConfig struct {
	// Driver is "memory", "postgres" or "sqlite".
	Driver string `yaml:"driver"`

	// PostgresDSN is required when driver is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SQLitePath is required when driver is sqlite.
	SQLitePath string `yaml:"sqlite_path"`
}

// ToolsConfig configures the builtin tool layer.
type ToolsConfig struct {
	WorkspaceRoot  string        `yaml:"workspace_root"`
	MaxConcurrent  int64         `yaml:"max_concurrent"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxReadBytes   int64         `yaml:"max_read_bytes"`
}

// SkillsConfig points at the skill library.
type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			MaxTokens:       8192,
		},
		Storage: StorageConfig{Driver: "memory"},
		Tools: ToolsConfig{
			WorkspaceRoot: "/tmp/loom-workspaces",
			MaxConcurrent: 16,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// applyDefaults fills unset fields from Default.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = def.LLM.DefaultProvider
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Tools.WorkspaceRoot == "" {
		c.Tools.WorkspaceRoot = def.Tools.WorkspaceRoot
	}
	if c.Tools.MaxConcurrent <= 0 {
		c.Tools.MaxConcurrent = def.Tools.MaxConcurrent
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = def.Observability.LogLevel
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = def.Observability.LogFormat
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage.postgres_dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	for i := range c.Presets {
		p := &c.Presets[i]
		if p.ID == "" {
			return fmt.Errorf("config: presets[%d] has no id", i)
		}
		switch p.APIResponseMode {
		case published.ModeStreaming, published.ModeSync, "":
		default:
			return fmt.Errorf("config: preset %s has unknown api_response_mode %q", p.ID, p.APIResponseMode)
		}
	}

	for i, srv := range c.MCPServers {
		if srv.Name == "" {
			return fmt.Errorf("config: mcp_servers[%d] has no name", i)
		}
		if srv.Command == "" && srv.URL == "" {
			return fmt.Errorf("config: mcp server %s needs a command or url", srv.Name)
		}
	}
	return nil
}
