// Package config loads runtime configuration from defaults, an optional TOML
// file and EDUSWARM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EDUSWARM_MODEL_PROVIDER.
const EnvPrefix = "EDUSWARM"

// Config holds all application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Model        ModelConfig        `mapstructure:"model"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Research     ResearchConfig     `mapstructure:"research"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	// CatalogPath points at an agent catalog TOML file. Empty uses the
	// built-in catalog.
	CatalogPath string `mapstructure:"catalog_path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelConfig selects the language model provider.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	MaxRounds   int     `mapstructure:"max_rounds"`
}

// StorageConfig selects the thought graph store.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// MemoryConfig configures conversational memory. An empty RedisURL runs on
// the local store only.
type MemoryConfig struct {
	RedisURL     string `mapstructure:"redis_url"`
	HistoryLimit int    `mapstructure:"history_limit"`
	LocalCap     int    `mapstructure:"local_cap"`
}

// ResearchConfig configures the research provider. An empty APIKey disables
// the search and research tools.
type ResearchConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OrchestratorConfig tunes the orchestrator.
type OrchestratorConfig struct {
	MaxParallelProcesses int    `mapstructure:"max_parallel_processes"`
	DefaultAgent         string `mapstructure:"default_agent"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var defaults = map[string]any{
	"log.level":                           "info",
	"log.format":                          "json",
	"model.provider":                      ProviderOpenAI,
	"model.name":                          "",
	"model.api_key":                       "",
	"model.base_url":                      "",
	"model.temperature":                   0.7,
	"model.max_tokens":                    1000,
	"model.max_rounds":                    5,
	"storage.driver":                      DriverMemory,
	"storage.path":                        "./data/eduswarm.db",
	"memory.redis_url":                    "",
	"memory.history_limit":                10,
	"memory.local_cap":                    20,
	"research.api_key":                    "",
	"research.base_url":                   "https://api.perplexity.ai/",
	"research.model":                      "sonar",
	"orchestrator.max_parallel_processes": 3,
	"orchestrator.default_agent":          "main",
	"http.addr":                           ":8080",
	"catalog_path":                        "",
}

// Load reads configuration. path may be empty; a missing file at an explicit
// path is an error.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads configuration into v. Tests use it to inject values.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks enums and ranges.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be within [0, 2]")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model.max_tokens must be > 0")
	}
	if c.Model.MaxRounds <= 0 {
		return fmt.Errorf("model.max_rounds must be > 0")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path cannot be empty for sqlite")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Memory.HistoryLimit <= 0 {
		return fmt.Errorf("memory.history_limit must be > 0")
	}
	if c.Memory.LocalCap <= 0 {
		return fmt.Errorf("memory.local_cap must be > 0")
	}
	if c.Orchestrator.MaxParallelProcesses <= 0 {
		return fmt.Errorf("orchestrator.max_parallel_processes must be > 0")
	}
	if c.Orchestrator.DefaultAgent == "" {
		return fmt.Errorf("orchestrator.default_agent cannot be empty")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	return nil
}
