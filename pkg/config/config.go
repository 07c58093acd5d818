package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for a generation run.
type Config struct {
	Provider string `yaml:"provider"` // "openai" or "gemini"
	Model    string `yaml:"model"`

	OutputDir string `yaml:"output_dir"`

	MaxRevisions      int     `yaml:"max_revisions"`
	CoverageTarget    float64 `yaml:"coverage_target"`
	MaxCoverageRounds int     `yaml:"max_coverage_rounds"`

	// Per-agent model overrides, keyed by agent name.
	AgentModels map[string]string `yaml:"agent_models"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Provider:          "openai",
		Model:             "gpt-4o-mini",
		OutputDir:         "./generated_tb",
		MaxRevisions:      3,
		CoverageTarget:    95.0,
		MaxCoverageRounds: 10,
	}
}

// LoadConfig reads a YAML config file, applying defaults for unset fields
// and environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = getEnv("VERIGEN_PROVIDER", c.Provider)
	c.Model = getEnv("VERIGEN_MODEL", c.Model)
	c.OutputDir = getEnv("VERIGEN_OUTPUT_DIR", c.OutputDir)
	if v := os.Getenv("VERIGEN_MAX_REVISIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRevisions = n
		}
	}
	if v := os.Getenv("VERIGEN_COVERAGE_TARGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CoverageTarget = f
		}
	}
}

// ModelFor returns the model for a named agent, falling back to the default.
func (c *Config) ModelFor(agentName string) string {
	if m, ok := c.AgentModels[agentName]; ok && m != "" {
		return m
	}
	return c.Model
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
