// Package config loads settings from defaults, YAML files, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/autocoder/internal/engine"
	"github.com/ChamsBouzaiene/autocoder/internal/providers"
)

const (
	envPrefix       = "AUTOCODER"
	projectFileName = ".autocoder.yaml"
)

// Config holds every setting of one autocoder invocation.
type Config struct {
	Provider      string `mapstructure:"provider" yaml:"provider"`
	Model         string `mapstructure:"model" yaml:"model,omitempty"`
	FallbackModel string `mapstructure:"fallback_model" yaml:"fallback_model,omitempty"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url,omitempty"`

	MaxIterations        int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxConsecutiveErrors int     `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	ParallelBatchSize    int     `mapstructure:"parallel_batch_size" yaml:"parallel_batch_size"`
	PlanThreshold        int     `mapstructure:"plan_threshold" yaml:"plan_threshold"`
	MaxOutputTokens      int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	SoftToolCallCap      int     `mapstructure:"soft_tool_call_cap" yaml:"soft_tool_call_cap"`
	Temperature          float32 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	StepMode             bool    `mapstructure:"step_mode" yaml:"step_mode"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	DataDir   string `mapstructure:"data_dir" yaml:"data_dir"`
}

var defaults = map[string]any{
	"provider":               "openai",
	"max_iterations":         engine.DefaultMaxIterations,
	"max_consecutive_errors": engine.DefaultMaxConsecutiveErrors,
	"parallel_batch_size":    engine.DefaultParallelBatchSize,
	"plan_threshold":         engine.DefaultPlanThreshold,
	"max_output_tokens":      engine.DefaultMaxOutputTokens,
	"soft_tool_call_cap":     engine.DefaultSoftToolCallCap,
	"step_mode":              false,
	"log_level":              "info",
	"log_format":             "console",
	"data_dir":               ".autocoder",
}

// Defaults returns the built-in settings with no file or environment applied.
func Defaults() *Config {
	return &Config{
		Provider:             defaults["provider"].(string),
		MaxIterations:        engine.DefaultMaxIterations,
		MaxConsecutiveErrors: engine.DefaultMaxConsecutiveErrors,
		ParallelBatchSize:    engine.DefaultParallelBatchSize,
		PlanThreshold:        engine.DefaultPlanThreshold,
		MaxOutputTokens:      engine.DefaultMaxOutputTokens,
		SoftToolCallCap:      engine.DefaultSoftToolCallCap,
		LogLevel:             defaults["log_level"].(string),
		LogFormat:            defaults["log_format"].(string),
		DataDir:              defaults["data_dir"].(string),
	}
}

// Load resolves the configuration for the repository at projectDir with the
// precedence env > project file > global file > defaults. A .env file in
// projectDir is loaded into the environment first without overriding
// variables that are already set.
func Load(projectDir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(projectDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range []string{"model", "fallback_model", "api_key", "base_url", "temperature"} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", k, err)
		}
	}

	if path := GlobalPath(); fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}
	if path := ProjectPath(projectDir); fileExists(path) {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(projectDir, cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.MaxConsecutiveErrors <= 0 {
		errs = append(errs, fmt.Errorf("max_consecutive_errors must be positive, got %d", c.MaxConsecutiveErrors))
	}
	if c.ParallelBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("parallel_batch_size must be positive, got %d", c.ParallelBatchSize))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// LoopConfig maps the settings onto the engine's loop configuration.
func (c *Config) LoopConfig(model string) engine.LoopConfig {
	return engine.LoopConfig{
		Model:                model,
		MaxOutputTokens:      c.MaxOutputTokens,
		Temperature:          c.Temperature,
		Mode:                 engine.ChatModeAgent,
		MaxIterations:        c.MaxIterations,
		MaxConsecutiveErrors: c.MaxConsecutiveErrors,
		ParallelBatchSize:    c.ParallelBatchSize,
		PlanThreshold:        engine.Threshold(c.PlanThreshold),
		SoftToolCallCap:      c.SoftToolCallCap,
	}
}

// ProviderConfig selects the model endpoint.
func (c *Config) ProviderConfig() providers.Config {
	return providers.Config{
		Provider:      c.Provider,
		Model:         c.Model,
		FallbackModel: c.FallbackModel,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
	}
}

// PlansDBPath is the sqlite file holding the plan registry.
func (c *Config) PlansDBPath() string { return filepath.Join(c.DataDir, "plans.db") }

// SessionsDir holds persisted run transcripts.
func (c *Config) SessionsDir() string { return filepath.Join(c.DataDir, "sessions") }

// GlobalPath returns $XDG_CONFIG_HOME/autocoder/config.yaml, defaulting to
// ~/.config.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "autocoder", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "autocoder", "config.yaml")
}

// ProjectPath returns the repository-local config file.
func ProjectPath(projectDir string) string {
	return filepath.Join(projectDir, projectFileName)
}

// WriteGlobal stores cfg in the global config file. The file may hold an
// API key, so it is readable by the owner only.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return enc.Close()
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = "********"
	}
	return &out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
