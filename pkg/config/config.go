// Package config holds the recognised conversion settings and loads them
// from TOML files, overlaying only the keys a file defines onto the defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/goliatone/go-protoconv/pkg/extract"
	"github.com/goliatone/go-protoconv/pkg/match"
	"github.com/goliatone/go-protoconv/pkg/render"
)

// Config is the full set of conversion settings.
type Config struct {
	SchemaWeight          float64
	CoverageWeight        float64
	CompletenessWeight    float64
	MatchThreshold        float64
	MissingVariablePolicy extract.Policy
	MissingDefault        string
	SpecialPrefix         string
	MaxRenderDepth        int
}

// Default returns equal weights, a 0.5 threshold, the warn policy with an
// empty default, the "__" special prefix and a render depth of 64.
func Default() Config {
	m := match.DefaultConfig()
	return Config{
		SchemaWeight:          m.SchemaWeight,
		CoverageWeight:        m.CoverageWeight,
		CompletenessWeight:    m.CompletenessWeight,
		MatchThreshold:        m.Threshold,
		MissingVariablePolicy: extract.PolicyWarn,
		MissingDefault:        "",
		SpecialPrefix:         "__",
		MaxRenderDepth:        render.DefaultMaxDepth,
	}
}

// Match returns the matcher settings.
func (c Config) Match() match.Config {
	return match.Config{
		SchemaWeight:       c.SchemaWeight,
		CoverageWeight:     c.CoverageWeight,
		CompletenessWeight: c.CompletenessWeight,
		Threshold:          c.MatchThreshold,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if err := c.Match().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := extract.ParsePolicy(string(c.MissingVariablePolicy)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(c.SpecialPrefix) == "" {
		return fmt.Errorf("config: special prefix is required")
	}
	if c.MaxRenderDepth <= 0 {
		return fmt.Errorf("config: max render depth must be positive, got %d", c.MaxRenderDepth)
	}
	return nil
}

// config.toml key mapping.
type fileConfig struct {
	SchemaWeight          float64 `toml:"schema_weight"`
	CoverageWeight        float64 `toml:"coverage_weight"`
	CompletenessWeight    float64 `toml:"completeness_weight"`
	MatchThreshold        float64 `toml:"match_threshold"`
	MissingVariablePolicy string  `toml:"missing_variable_policy"`
	MissingDefault        string  `toml:"missing_default"`
	SpecialPrefix         string  `toml:"special_prefix"`
	MaxRenderDepth        int     `toml:"max_render_depth"`
}

// LoadFile reads a TOML file and overlays it on Default.
func LoadFile(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load protoconv config: %w", err)
	}
	return apply(meta, raw)
}

// Parse decodes TOML text and overlays it on Default.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load protoconv config: %w", err)
	}
	return apply(meta, raw)
}

func apply(meta toml.MetaData, raw fileConfig) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("load protoconv config: unknown keys %s", strings.Join(keys, ", "))
	}

	cfg := Default()
	if meta.IsDefined("schema_weight") {
		cfg.SchemaWeight = raw.SchemaWeight
	}
	if meta.IsDefined("coverage_weight") {
		cfg.CoverageWeight = raw.CoverageWeight
	}
	if meta.IsDefined("completeness_weight") {
		cfg.CompletenessWeight = raw.CompletenessWeight
	}
	if meta.IsDefined("match_threshold") {
		cfg.MatchThreshold = raw.MatchThreshold
	}
	if meta.IsDefined("missing_variable_policy") {
		policy, err := extract.ParsePolicy(raw.MissingVariablePolicy)
		if err != nil {
			return Config{}, fmt.Errorf("load protoconv config: %w", err)
		}
		cfg.MissingVariablePolicy = policy
	}
	if meta.IsDefined("missing_default") {
		cfg.MissingDefault = raw.MissingDefault
	}
	if meta.IsDefined("special_prefix") {
		cfg.SpecialPrefix = strings.TrimSpace(raw.SpecialPrefix)
	}
	if meta.IsDefined("max_render_depth") {
		cfg.MaxRenderDepth = raw.MaxRenderDepth
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load protoconv config: %w", err)
	}
	return cfg, nil
}
