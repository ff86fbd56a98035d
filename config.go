package vistag

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/llm"
)

// Config holds all configuration for a Tagger.
type Config struct {
	// Instances are interchangeable inference service endpoints. Requests
	// are spread over them according to Balance.
	Instances []llm.Config `json:"instances" yaml:"instances"`
	Balance   string       `json:"balance" yaml:"balance"` // round_robin (default) or random

	// Inference parameters shared by every branch call.
	StructuredOutput bool          `json:"structured_output" yaml:"structured_output"` // send a json_schema response_format
	Temperature      float64       `json:"temperature" yaml:"temperature"`
	TopP             float64       `json:"top_p" yaml:"top_p"`
	MaxTokens        int           `json:"max_tokens" yaml:"max_tokens"`
	CallTimeout      time.Duration `json:"call_timeout" yaml:"call_timeout"` // per branch call; expiry fails the branch

	// Pricing per 1000 tokens. Branches keyed by name (subject, portrait,
	// clothing, pet, food, scenery, scene) override Default.
	Pricing PricingConfig `json:"pricing" yaml:"pricing"`

	// Workers bounds concurrent images in ProcessBatch.
	Workers int `json:"workers" yaml:"workers"`

	// MaxImageBytes caps local image files. Zero disables the check.
	MaxImageBytes int64 `json:"max_image_bytes" yaml:"max_image_bytes"`

	// AuditDBPath enables the SQLite audit trail when set. "~" expands to
	// the user's home directory.
	AuditDBPath string `json:"audit_db_path" yaml:"audit_db_path"`
	AuditQueue  int    `json:"audit_queue" yaml:"audit_queue"`

	LogLevel string `json:"log_level" yaml:"log_level"` // debug, info, warn, error
}

// PricingConfig holds the default and per-branch price pairs.
type PricingConfig struct {
	Default  branch.Price            `json:"default" yaml:"default"`
	Branches map[string]branch.Price `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// priceFor resolves the price of one branch.
func (p PricingConfig) priceFor(id branch.ID) branch.Price {
	if bp, ok := p.Branches[id.String()]; ok {
		return bp
	}
	return p.Default
}

// DefaultConfig returns a Config for a single local vLLM instance.
func DefaultConfig() Config {
	s := branch.DefaultSettings()
	return Config{
		Instances: []llm.Config{{
			Provider:   "vllm",
			Model:      "Qwen2.5-VL-7B-Instruct",
			BaseURL:    "http://localhost:8000",
			MaxRetries: 2,
		}},
		Balance:          llm.BalanceRoundRobin,
		StructuredOutput: s.StructuredOutput,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		MaxTokens:        s.MaxTokens,
		CallTimeout:      s.Timeout,
		Pricing:          PricingConfig{Default: branch.DefaultPrice},
		Workers:          4,
		MaxImageBytes:    20 << 20,
		AuditQueue:       256,
		LogLevel:         "info",
	}
}

// LoadConfig reads a YAML (or JSON) file over DefaultConfig and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(needInstances bool) error {
	if needInstances && len(c.Instances) == 0 {
		return fmt.Errorf("%w: at least one inference instance is required", ErrInvalidConfig)
	}
	for i, inst := range c.Instances {
		if inst.Provider == "" {
			return fmt.Errorf("%w: instance %d has no provider", ErrInvalidConfig, i)
		}
	}
	switch c.Balance {
	case "", llm.BalanceRoundRobin, llm.BalanceRandom:
	default:
		return fmt.Errorf("%w: unknown balance strategy %q", ErrInvalidConfig, c.Balance)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v out of range [0,2]", ErrInvalidConfig, c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p %v out of range [0,1]", ErrInvalidConfig, c.TopP)
	}
	if c.MaxTokens < 0 || c.Workers < 0 || c.MaxImageBytes < 0 || c.CallTimeout < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	}
	if err := checkPrice("default", c.Pricing.Default); err != nil {
		return err
	}
	for name, p := range c.Pricing.Branches {
		if _, ok := branch.ParseID(name); !ok {
			return fmt.Errorf("%w: pricing for unknown branch %q", ErrInvalidConfig, name)
		}
		if err := checkPrice(name, p); err != nil {
			return err
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

func checkPrice(name string, p branch.Price) error {
	if p.Input < 0 || p.Output < 0 {
		return fmt.Errorf("%w: negative price for %s", ErrInvalidConfig, name)
	}
	return nil
}

// settings leaves Model empty so each pooled instance uses its own.
func (c *Config) settings() branch.Settings {
	return branch.Settings{
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		MaxTokens:        c.MaxTokens,
		Timeout:          c.CallTimeout,
		StructuredOutput: c.StructuredOutput,
	}
}

// modelLabel names the configured models for the audit trail.
func (c *Config) modelLabel() string {
	var names []string
	for _, inst := range c.Instances {
		if inst.Model != "" && !slices.Contains(names, inst.Model) {
			names = append(names, inst.Model)
		}
	}
	return strings.Join(names, ",")
}

// AuditPath returns AuditDBPath with a leading "~" expanded.
func (c *Config) AuditPath() string {
	p := c.AuditDBPath
	rest, ok := strings.CutPrefix(p, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
