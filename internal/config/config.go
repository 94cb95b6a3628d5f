// Package config loads warden configuration from YAML with environment
// overrides for provider credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"warden/internal/autopilot"
	"warden/internal/review"
)

// Config holds all warden configuration.
type Config struct {
	// Core settings
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	ProjectID string `yaml:"project_id"`

	// Policy document and artifact layout
	PolicyPath  string `yaml:"policy_path"`
	ArtifactDir string `yaml:"artifact_dir"`

	// Trace archive (SQLite)
	Store StoreConfig `yaml:"store"`

	// LLM configuration for the review strategy
	LLM LLMConfig `yaml:"llm"`

	// Review engine settings, including the externalized prompts
	Review ReviewConfig `yaml:"review"`

	// Per-engine analysis settings
	Drift     DriftConfig      `yaml:"drift"`
	Futures   FuturesConfig    `yaml:"futures"`
	Federated FederatedConfig  `yaml:"federated"`
	Autopilot autopilot.Config `yaml:"autopilot"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-generation provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini, none
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ReviewConfig configures the review engine.
type ReviewConfig struct {
	// Strategy selects the verdict source: "ai" or "deterministic".
	Strategy      string         `yaml:"strategy"`
	MaxConcurrent int            `yaml:"max_concurrent"`
	Prompts       review.Prompts `yaml:"prompts"`
}

// StoreConfig configures the trace archive.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DriftConfig configures drift analysis.
type DriftConfig struct {
	WindowHours float64 `yaml:"window_hours"`
}

// FuturesConfig configures the futures forecast.
type FuturesConfig struct {
	WindowHours float64 `yaml:"window_hours"`
	Iterations  int     `yaml:"iterations"`
	Seed        int64   `yaml:"seed"`
}

// FederatedConfig configures federation analysis.
type FederatedConfig struct {
	ClusterThreshold float64 `yaml:"cluster_threshold"`
	OutlierThreshold float64 `yaml:"outlier_threshold"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "warden",
		Version:   "1.0.0",
		ProjectID: "default",

		PolicyPath:  "policy.json",
		ArtifactDir: "artifacts",

		Store: StoreConfig{
			DatabasePath: "data/warden.db",
		},

		LLM: LLMConfig{
			Provider: "none",
			Model:    "gpt-4o",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Review: ReviewConfig{
			Strategy:      "deterministic",
			MaxConcurrent: 4,
			Prompts:       review.DefaultPrompts(),
		},

		Drift: DriftConfig{
			WindowHours: 168,
		},

		Futures: FuturesConfig{
			WindowHours: 168,
			Iterations:  100,
			Seed:        42,
		},

		Federated: FederatedConfig{
			ClusterThreshold: 0.5,
			OutlierThreshold: 0.3,
		},

		Autopilot: autopilot.DefaultConfig(),

		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Provider API key from environment (check in priority order)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" || c.LLM.Provider == "none" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if db := os.Getenv("WARDEN_DB"); db != "" {
		c.Store.DatabasePath = db
	}
	if dir := os.Getenv("WARDEN_ARTIFACT_DIR"); dir != "" {
		c.ArtifactDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini", "none"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Review.Strategy == "ai" {
		if c.LLM.Provider == "none" {
			return fmt.Errorf("review strategy %q requires an LLM provider", c.Review.Strategy)
		}
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
		}
	} else if c.Review.Strategy != "deterministic" {
		return fmt.Errorf("invalid review strategy: %s (valid: ai, deterministic)", c.Review.Strategy)
	}

	return nil
}
