package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type SQLiteConfig struct {
	// Path is the data directory for the golden set database.
	// ":memory:" keeps everything in process (used by tests).
	Path string `toml:"path"`
}

type LoopConfig struct {
	MaxAttempts           int `toml:"max_attempts"`
	SafetyBudget          int `toml:"safety_budget"`
	InfraRetries          int `toml:"infra_retries"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// RequestTimeout is the wall-clock budget for one answer including all
// retry attempts.
func (l LoopConfig) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutSeconds) * time.Second
}

type CacheConfig struct {
	// Backend selects the entry store: "memory" or "redis".
	Backend    string  `toml:"backend"`
	Threshold  float64 `toml:"threshold"`
	TTLMinutes int     `toml:"ttl_minutes"`
}

// TTL of zero disables staleness eviction.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type CuratorConfig struct {
	// FlagOnly flags stale golden examples instead of evicting them.
	FlagOnly bool `toml:"flag_only"`
	// SeedPath points at a TOML file of shipped (question, query) pairs.
	SeedPath string `toml:"seed_path"`
}

type SchemaConfig struct {
	// SeedPath points at a TOML catalog definition carrying the annotations
	// introspection cannot discover (enums, notes, sensitive flags).
	SeedPath string `toml:"seed_path"`
}

type PromptsConfig struct {
	Generation string `toml:"generation"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	Redis    RedisConfig    `toml:"redis"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Schema   SchemaConfig   `toml:"schema"`
	Loop     LoopConfig     `toml:"loop"`
	Cache    CacheConfig    `toml:"cache"`
	Curator  CuratorConfig  `toml:"curator"`
	Prompts  PromptsConfig  `toml:"prompts"`
	Logging  LoggingConfig  `toml:"logging"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every knob at its default, for callers that
// run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Loop.MaxAttempts <= 0 {
		c.Loop.MaxAttempts = 3
	}
	if c.Loop.SafetyBudget <= 0 {
		c.Loop.SafetyBudget = 1
	}
	if c.Loop.InfraRetries <= 0 {
		c.Loop.InfraRetries = 2
	}
	if c.Loop.RequestTimeoutSeconds <= 0 {
		c.Loop.RequestTimeoutSeconds = 60
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Threshold <= 0 {
		c.Cache.Threshold = 0.92
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// ApplyEnvOverrides lets deployment environments override file values
// without editing the TOML.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		c.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}
