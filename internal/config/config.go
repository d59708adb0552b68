// Package config layers a YAML file with environment-variable overrides,
// grounded on the teacher's internal/config package's layering idiom
// (defaults -> file -> env), reproduced here at a much smaller surface
// since MECH's configuration footprint is a handful of scalars rather than
// the teacher's full multi-channel deployment config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the core's tunable identity, provider credentials, and
// model-class tables.
type Config struct {
	AIName    string `yaml:"ai_name"`
	YourName  string `yaml:"your_name"`
	ProcessID string `yaml:"process_id"`

	Providers ProvidersConfig `yaml:"providers"`

	MetaFrequency   int `yaml:"meta_frequency"`
	ThoughtDelay    int `yaml:"thought_delay"`
	MaxToolCalls    int `yaml:"max_tool_calls"`
	ToolConcurrency int `yaml:"tool_concurrency"`

	ModelClasses map[string][]ModelConfig `yaml:"model_classes"`

	MemoryRoot string `yaml:"memory_root"`
}

// ModelConfig is one entry in a model-class list.
type ModelConfig struct {
	ID                string `yaml:"id"`
	RateLimitFallback string `yaml:"rate_limit_fallback,omitempty"`
}

// ProvidersConfig holds per-provider API keys and model lists. An empty
// APIKey disables the provider rather than aborting startup, per spec §6.
type ProvidersConfig struct {
	OpenAI     ProviderKeyConfig `yaml:"openai"`
	Anthropic  ProviderKeyConfig `yaml:"anthropic"`
	Google     ProviderKeyConfig `yaml:"google"`
	Brave      ProviderKeyConfig `yaml:"brave"`
	OpenRouter ProviderKeyConfig `yaml:"openrouter"`
}

// ProviderKeyConfig is a provider's API key plus its model allowlist.
type ProviderKeyConfig struct {
	APIKey string   `yaml:"api_key"`
	Models []string `yaml:"models"`
}

// Default returns the baseline configuration before any file or
// environment overrides are applied.
func Default() Config {
	return Config{
		AIName:          "MECH",
		YourName:        "User",
		MetaFrequency:   5,
		ThoughtDelay:    0,
		MaxToolCalls:    8,
		ToolConcurrency: 8,
		MemoryRoot:      "/magi_output/memory",
		ModelClasses: map[string][]ModelConfig{
			"standard": {
				{ID: "gpt-4o"},
				{ID: "claude-sonnet-4-5"},
			},
			"monologue": {
				{ID: "gpt-4o-mini"},
				{ID: "claude-sonnet-4-5"},
			},
			"metacognition": {
				{ID: "gpt-4o-mini"},
			},
		},
	}
}

// Load builds a Config by starting from Default, merging path (if
// non-empty and present) as a YAML overlay, then applying environment
// variable overrides. A missing path is not an error — it means "defaults
// plus environment only".
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// no config file; defaults + env only
		case err != nil:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AI_NAME"); v != "" {
		cfg.AIName = v
	}
	if v := os.Getenv("YOUR_NAME"); v != "" {
		cfg.YourName = v
	}
	if v := os.Getenv("PROCESS_ID"); v != "" {
		cfg.ProcessID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Providers.Brave.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouter.APIKey = v
	}
}
