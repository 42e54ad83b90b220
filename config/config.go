// Package config loads the scheduler configuration from YAML or JSON, with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/sectioner/core/metrics"
	"github.com/kilianp07/sectioner/infra/advisor"
)

type Config struct {
	Input    InputConfig    `json:"input"`
	Output   OutputConfig   `json:"output"`
	Solver   SolverConfig   `json:"solver"`
	Pipeline PipelineConfig `json:"pipeline"`
	Courses  CoursesConfig  `json:"courses"`
	Advisor  AdvisorConfig  `json:"advisor"`
	Metrics  metrics.Config `json:"metrics"`
}

// InputConfig locates the registrar's CSV tables.
type InputConfig struct {
	Dir string `json:"dir"`
}

// OutputConfig locates the generated schedule files.
type OutputConfig struct {
	Dir string `json:"dir"`
}

// AdvisorConfig selects the external review service. When disabled the
// rule-based fallback runs alone.
type AdvisorConfig struct {
	Enabled        bool   `json:"enabled"`
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ClientConfig converts to the advisor client settings.
func (c AdvisorConfig) ClientConfig() advisor.Config {
	return advisor.Config{URL: c.URL, TimeoutSeconds: c.TimeoutSeconds}
}

// CoursesConfig carries optional per-course period restrictions.
type CoursesConfig struct {
	// Restrictions maps a course ID to the only periods it may be taught in.
	Restrictions map[string][]string `json:"restrictions"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Solver.SetDefaults()
	cfg.Pipeline.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Input.Dir == "" {
		return fmt.Errorf("input.dir is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Advisor.Enabled && c.Advisor.URL == "" {
		return fmt.Errorf("advisor.url is required when the advisor is enabled")
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}
