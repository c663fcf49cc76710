// Package config holds all plugineval configuration. The harness never reads
// ambient environment state itself; overrides from the environment are applied
// once, at the process entry point, via ApplyEnvOverrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all plugineval configuration.
type Config struct {
	// Eval suite settings
	Evals EvalsConfig `yaml:"evals"`

	// Semantic judge service
	Judge JudgeConfig `yaml:"judge"`

	// Review report generators
	Generators GeneratorsConfig `yaml:"generators"`

	// Run-history persistence
	Store StoreConfig `yaml:"store"`

	// Debug logging
	Logging LoggingConfig `yaml:"logging"`
}

// EvalsConfig configures case discovery and scheduling.
type EvalsConfig struct {
	Root               string `yaml:"root"`                 // case directory root
	MaxConcurrentCases int    `yaml:"max_concurrent_cases"` // bounded worker pool size
	JudgeSlots         int    `yaml:"judge_slots"`          // global concurrent judge-call budget
}

// JudgeConfig configures the semantic judge client.
type JudgeConfig struct {
	Provider         string `yaml:"provider"` // anthropic, gemini
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	TimeoutSec       int    `yaml:"timeout_sec"`        // per-attempt timeout
	MaxRetries       int    `yaml:"max_retries"`        // transient-failure retries
	BackoffInitialMS int    `yaml:"backoff_initial_ms"` // exponential backoff start
}

// Timeout returns the per-attempt judge timeout.
func (j JudgeConfig) Timeout() time.Duration {
	if j.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(j.TimeoutSec) * time.Second
}

// InitialBackoff returns the starting backoff interval.
func (j JudgeConfig) InitialBackoff() time.Duration {
	if j.BackoffInitialMS <= 0 {
		return time.Second
	}
	return time.Duration(j.BackoffInitialMS) * time.Millisecond
}

// GeneratorsConfig configures the two review generators.
type GeneratorsConfig struct {
	Security    GeneratorConfig `yaml:"security"`
	Performance GeneratorConfig `yaml:"performance"`
	TimeoutSec  int             `yaml:"timeout_sec"` // shared per-invocation timeout
}

// Timeout returns the per-invocation generator timeout.
func (g GeneratorsConfig) Timeout() time.Duration {
	if g.TimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(g.TimeoutSec) * time.Second
}

// GeneratorConfig configures one external review generator command.
// The command template receives the artifact path via the {artifact}
// placeholder and must write its report to stdout.
type GeneratorConfig struct {
	Command string `yaml:"command"`
}

// StoreConfig configures run-history persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Evals: EvalsConfig{
			Root:               "evals",
			MaxConcurrentCases: 4,
			JudgeSlots:         5,
		},
		Judge: JudgeConfig{
			Provider:         "anthropic",
			Model:            "claude-sonnet-4-5-20250929",
			BaseURL:          "https://api.anthropic.com/v1",
			TimeoutSec:       60,
			MaxRetries:       3,
			BackoffInitialMS: 1000,
		},
		Generators: GeneratorsConfig{
			TimeoutSec: 300,
		},
		Store: StoreConfig{
			DatabasePath: ".plugineval/history.db",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       ".plugineval/logs",
			Level:     "info",
		},
	}
}

// Load reads configuration from a YAML file, layered over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnvOverrides overlays environment-derived settings. Call this exactly
// once from the process entry point; core packages only ever see the struct.
// The lookup function is injected so tests do not touch the real environment.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("EVALS_ANTHROPIC_API_KEY"); ok && v != "" {
		c.Judge.APIKey = v
		if _, set := lookup("EVALS_JUDGE_PROVIDER"); !set {
			c.Judge.Provider = "anthropic"
		}
	}
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" && c.Judge.APIKey == "" {
		c.Judge.APIKey = v
		c.Judge.Provider = "gemini"
	}
	if v, ok := lookup("EVALS_JUDGE_PROVIDER"); ok && v != "" {
		c.Judge.Provider = v
	}
	if v, ok := lookup("EVALS_JUDGE_MODEL"); ok && v != "" {
		c.Judge.Model = v
	}
	if v, ok := lookup("EVALS_ROOT"); ok && v != "" {
		c.Evals.Root = v
	}
	if v, ok := lookup("EVALS_MAX_CONCURRENT_CASES"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Evals.MaxConcurrentCases = n
		}
	}
	if v, ok := lookup("EVALS_DEBUG"); ok {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Validate checks that the configuration is runnable.
func (c *Config) Validate() error {
	if c.Evals.Root == "" {
		return fmt.Errorf("config: evals.root is required")
	}
	if c.Evals.MaxConcurrentCases <= 0 {
		return fmt.Errorf("config: evals.max_concurrent_cases must be positive")
	}
	if c.Evals.JudgeSlots <= 0 {
		return fmt.Errorf("config: evals.judge_slots must be positive")
	}
	switch c.Judge.Provider {
	case "anthropic", "gemini":
	default:
		return fmt.Errorf("config: unknown judge provider %q", c.Judge.Provider)
	}
	return nil
}
