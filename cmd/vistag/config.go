package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/vistag"
	"github.com/brunobiangulo/vistag/llm"
)

// loadConfig reads the config file, if any, then applies environment
// overrides and validates.
func loadConfig(path string) (vistag.Config, error) {
	c := vistag.DefaultConfig()
	if path != "" {
		var err error
		c, err = vistag.LoadConfig(path)
		if err != nil {
			return c, err
		}
	}
	if err := applyEnv(&c, os.Getenv); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// applyEnv overrides config from VISTAG_* variables. VISTAG_BASE_URLS
// replaces the instance list with one instance per comma-separated URL,
// sharing the provider, model and key of the first configured instance.
func applyEnv(c *vistag.Config, getenv func(string) string) error {
	base := llm.Config{}
	if len(c.Instances) > 0 {
		base = c.Instances[0]
	}
	if v := getenv("VISTAG_PROVIDER"); v != "" {
		base.Provider = v
	}
	if v := getenv("VISTAG_MODEL"); v != "" {
		base.Model = v
	}
	if v := getenv("VISTAG_API_KEY"); v != "" {
		base.APIKey = v
	}
	// Fallback: well-known provider key variables.
	if base.APIKey == "" {
		switch base.Provider {
		case "dashscope":
			base.APIKey = getenv("DASHSCOPE_API_KEY")
		case "openai":
			base.APIKey = getenv("OPENAI_API_KEY")
		case "openrouter":
			base.APIKey = getenv("OPENROUTER_API_KEY")
		case "gemini", "genai":
			base.APIKey = getenv("GEMINI_API_KEY")
		}
	}

	if v := getenv("VISTAG_BASE_URLS"); v != "" {
		var insts []llm.Config
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				inst := base
				inst.BaseURL = u
				insts = append(insts, inst)
			}
		}
		c.Instances = insts
	} else if len(c.Instances) > 0 {
		c.Instances[0] = base
	}

	if v := getenv("VISTAG_BALANCE"); v != "" {
		c.Balance = v
	}
	if v := getenv("VISTAG_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: VISTAG_WORKERS: %v", vistag.ErrInvalidConfig, err)
		}
		c.Workers = n
	}
	if v := getenv("VISTAG_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: VISTAG_CALL_TIMEOUT: %v", vistag.ErrInvalidConfig, err)
		}
		c.CallTimeout = d
	}
	if v := getenv("VISTAG_AUDIT_DB"); v != "" {
		c.AuditDBPath = v
	}
	if v := getenv("VISTAG_STRUCTURED_OUTPUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: VISTAG_STRUCTURED_OUTPUT: %v", vistag.ErrInvalidConfig, err)
		}
		c.StructuredOutput = b
	}
	if v := getenv("VISTAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}
