package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	CRM       CRMConfig       `yaml:"crm"`
	Graph     GraphConfig     `yaml:"graph"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig holds agent behavior settings.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	SystemPrompt  string        `yaml:"system_prompt"`
	Batch         BatchConfig   `yaml:"batch"`
	ContextGuard  GuardConfig   `yaml:"context_guard"`
}

// BatchConfig controls concurrent batch operations (e.g. summarize many deals).
type BatchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	ItemTimeout time.Duration `yaml:"item_timeout"`
}

// GuardConfig controls the prompt token-budget guard.
type GuardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	MaxTokens int    `yaml:"max_tokens"`
	Encoding  string `yaml:"encoding"` // tiktoken encoding name, default "cl100k_base"
}

// LLMConfig holds chat-completions provider settings.
type LLMConfig struct {
	Provider       ProviderConfig       `yaml:"provider"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for the OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for the provider client.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// RetryConfig holds the fixed retry schedule for the transport layer.
// Attempts beyond the delay table reuse the last delay.
type RetryConfig struct {
	MaxAttempts int             `yaml:"max_attempts"`
	Delays      []time.Duration `yaml:"delays"`
}

// CircuitBreakerConfig holds circuit breaker settings for the provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StoreConfig holds the local CRM cache settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// CRMConfig holds Pipedrive sync settings.
type CRMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
}

// GraphConfig holds Microsoft Graph mailbox sync settings.
type GraphConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Mailbox      string `yaml:"mailbox"`
}

// GatewayConfig holds REST API server settings.
type GatewayConfig struct {
	Addr           string `yaml:"addr"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	Burst          int    `yaml:"burst"`
}

// SchedulerConfig holds background sync job settings.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CRMSchedule  string `yaml:"crm_schedule"`  // cron expression or duration string
	MailSchedule string `yaml:"mail_schedule"` // cron expression or duration string
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxIterations: 10,
			Timeout:       120 * time.Second,
			SystemPrompt: "You are dealdesk, a business dashboard assistant. " +
				"You answer questions about deals, contacts, and cashflow using the available tools. " +
				"Write operations require user confirmation before they are applied.",
			Batch: BatchConfig{
				Concurrency: 5,
				ItemTimeout: 60 * time.Second,
			},
			ContextGuard: GuardConfig{
				Enabled:   false,
				MaxTokens: 128000,
				Encoding:  "cl100k_base",
			},
		},
		LLM: LLMConfig{
			Provider: ProviderConfig{
				Name:    "openai",
				Model:   "gpt-4o-mini",
				BaseURL: "https://api.openai.com/v1",
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				Delays: []time.Duration{
					100 * time.Millisecond,
					500 * time.Millisecond,
					1000 * time.Millisecond,
				},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     false,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Store: StoreConfig{
			Path: "./data/dealdesk.db",
		},
		CRM: CRMConfig{
			BaseURL: "https://api.pipedrive.com/v1",
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com/v1.0",
		},
		Gateway: GatewayConfig{
			Addr:           "127.0.0.1:8321",
			RequestsPerMin: 100,
			Burst:          20,
		},
		Scheduler: SchedulerConfig{
			Enabled:      false,
			CRMSchedule:  "10m",
			MailSchedule: "15m",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads the config file at path, applies env overrides, and validates.
// A missing file is not an error; defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies DEALDESK_* environment variables over cfg.
// Secrets (API keys, tokens) are expected to arrive this way rather than
// being committed to config files.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEALDESK_LLM_BASE_URL"); v != "" {
		cfg.LLM.Provider.BaseURL = v
	}
	if v := os.Getenv("DEALDESK_LLM_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("DEALDESK_LLM_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("DEALDESK_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DEALDESK_CRM_API_TOKEN"); v != "" {
		cfg.CRM.APIToken = v
	}
	if v := os.Getenv("DEALDESK_GRAPH_CLIENT_SECRET"); v != "" {
		cfg.Graph.ClientSecret = v
	}
	if v := os.Getenv("DEALDESK_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("DEALDESK_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DEALDESK_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("DEALDESK_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
}

// Validate checks cross-field constraints and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.Batch.Concurrency <= 0 {
		cfg.Agent.Batch.Concurrency = 5
	}
	if cfg.LLM.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("llm.retry.max_attempts must be positive")
	}
	if len(cfg.LLM.Retry.Delays) == 0 {
		return fmt.Errorf("llm.retry.delays must not be empty")
	}
	for i, d := range cfg.LLM.Retry.Delays {
		if d < 0 {
			return fmt.Errorf("llm.retry.delays[%d] must not be negative", i)
		}
	}
	if cfg.LLM.Provider.BaseURL == "" {
		return fmt.Errorf("llm.provider.base_url is required")
	}
	if cfg.CRM.Enabled && cfg.CRM.APIToken == "" {
		return fmt.Errorf("crm.api_token is required when crm sync is enabled")
	}
	if cfg.Graph.Enabled {
		if cfg.Graph.TenantID == "" || cfg.Graph.ClientID == "" || cfg.Graph.ClientSecret == "" {
			return fmt.Errorf("graph sync requires tenant_id, client_id, and client_secret")
		}
	}
	if cfg.Gateway.RequestsPerMin <= 0 {
		cfg.Gateway.RequestsPerMin = 100
	}
	if cfg.Gateway.Burst <= 0 {
		cfg.Gateway.Burst = 20
	}
	return nil
}
