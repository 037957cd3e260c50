// Package config defines the fixed configuration schema and loads it from
// viper. Packages take these structs rather than reading viper themselves,
// so override behavior is total and visible at compile time: scalar and map
// values merge through viper's precedence chain, list values replace
// wholesale.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/mfalkner/arbiter/internal/tools"
)

// ToolDef is the configurable shape of one tool binding.
type ToolDef struct {
	Command   string   `mapstructure:"command"`
	Args      []string `mapstructure:"args"`
	ModelFlag string   `mapstructure:"model_flag"`
	Models    []string `mapstructure:"models"`
}

// SynthesisConfig selects the single tool used for narrative synthesis.
// Tool "api" routes through the Anthropic API client instead of a CLI tool.
type SynthesisConfig struct {
	Tool  string `mapstructure:"tool"`
	Model string `mapstructure:"model"`
}

// ConsensusConfig controls multi-agent consensus.
type ConsensusConfig struct {
	Agents       []string        `mapstructure:"agents"`
	MinAgreement int             `mapstructure:"min_agreement"`
	Synthesis    SynthesisConfig `mapstructure:"synthesis"`
}

// RoutingConfig maps failure kinds to consultation strategy. AutoTrigger
// decides whether multi-agent consensus runs instead of the single-tool
// fallback chain; Fallbacks gives the ordered (primary, fallback) pair for
// the single-tool path.
type RoutingConfig struct {
	AutoTrigger map[string]bool     `mapstructure:"auto_trigger"`
	Fallbacks   map[string][]string `mapstructure:"fallbacks"`
}

// CacheConfig controls the on-disk consultation cache.
type CacheConfig struct {
	Dir         string `mapstructure:"dir"`
	Enabled     bool   `mapstructure:"enabled"`
	AutoCleanup bool   `mapstructure:"auto_cleanup"`
	TTLHours    int    `mapstructure:"ttl_hours"`
}

// TTL returns the consultation cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Config is the full effective configuration.
type Config struct {
	EnabledTools   []string
	ToolDefs       map[string]ToolDef
	TimeoutSeconds int

	Consensus ConsensusConfig
	Routing   RoutingConfig
	Cache     CacheConfig

	HistoryDBPath string
}

// Timeout returns the per-invocation timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Registry builds a tools.Registry from the configured tool definitions.
func (c *Config) Registry() *tools.Registry {
	defs := make([]tools.Tool, 0, len(c.ToolDefs))
	for name, d := range c.ToolDefs {
		defs = append(defs, tools.Tool{
			Name:      name,
			Command:   d.Command,
			Args:      d.Args,
			ModelFlag: d.ModelFlag,
			Models:    d.Models,
		})
	}
	return tools.NewRegistry(defs, c.EnabledTools)
}

// SetDefaults registers every configuration default with viper. Called once
// from command initialization before the config file is read.
func SetDefaults() {
	viper.SetDefault("tools.enabled", []string{"claude", "codex", "gemini"})
	viper.SetDefault("tools.timeout_seconds", 120)

	viper.SetDefault("tools.definitions.claude.command", "claude")
	viper.SetDefault("tools.definitions.claude.args", []string{"-p", "--output-format", "json"})
	viper.SetDefault("tools.definitions.claude.model_flag", "--model")
	viper.SetDefault("tools.definitions.codex.command", "codex")
	viper.SetDefault("tools.definitions.codex.args", []string{"exec"})
	viper.SetDefault("tools.definitions.codex.model_flag", "--model")
	viper.SetDefault("tools.definitions.gemini.command", "gemini")
	viper.SetDefault("tools.definitions.gemini.args", []string{"-p"})
	viper.SetDefault("tools.definitions.gemini.model_flag", "-m")

	viper.SetDefault("consensus.agents", []string{"claude", "codex", "gemini"})
	viper.SetDefault("consensus.min_agreement", 2)
	viper.SetDefault("consensus.synthesis.tool", "claude")
	viper.SetDefault("consensus.synthesis.model", "")

	viper.SetDefault("routing.auto_trigger", map[string]bool{
		"spec_review":  true,
		"diff_review":  true,
		"test_failure": false,
	})
	viper.SetDefault("routing.fallbacks", map[string][]string{
		"spec_review":  {"claude", "codex"},
		"diff_review":  {"codex", "claude"},
		"test_failure": {"claude", "gemini"},
	})

	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.auto_cleanup", true)
	viper.SetDefault("cache.ttl_hours", 24)

	viper.SetDefault("history.db_path", "")
}

// Load materializes the effective configuration from viper.
func Load() (*Config, error) {
	cfg := &Config{
		EnabledTools:   viper.GetStringSlice("tools.enabled"),
		TimeoutSeconds: viper.GetInt("tools.timeout_seconds"),
		HistoryDBPath:  viper.GetString("history.db_path"),
	}

	if err := viper.UnmarshalKey("tools.definitions", &cfg.ToolDefs); err != nil {
		return nil, err
	}
	if err := viper.UnmarshalKey("consensus", &cfg.Consensus); err != nil {
		return nil, err
	}
	if err := viper.UnmarshalKey("routing", &cfg.Routing); err != nil {
		return nil, err
	}
	if err := viper.UnmarshalKey("cache", &cfg.Cache); err != nil {
		return nil, err
	}
	return cfg, nil
}
