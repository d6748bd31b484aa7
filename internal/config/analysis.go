package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// AnalysisConfig defines one analysis pass: the bucketing scheme, the
// conditioning options, and the series pairs to correlate. Loaded from a
// YAML file with environment variable expansion.
type AnalysisConfig struct {
	WindowWidth  time.Duration `yaml:"-"` // parsed from window_width, e.g. "1h"
	MaxLag       int           `yaml:"max_lag"`
	MinSamples   int           `yaml:"min_samples"`
	Transform    string        `yaml:"transform"`    // none | boxcox
	Differencing int           `yaml:"differencing"` // 0 = none, 1 = first, >1 = seasonal period
	RangeStart   time.Time     `yaml:"range_start"`
	RangeEnd     time.Time     `yaml:"range_end"`

	// Keyword matching for post records.
	Keywords []string `yaml:"keywords"`
	Hashtags []string `yaml:"hashtags"`

	// Load zone name -> zone ID reference table.
	LoadZones map[string]string `yaml:"load_zones"`

	// Coordinate reference system per dataset, e.g. {"taxi": "EPSG:4326"}.
	SourceCRS map[string]string `yaml:"source_crs"`

	// Aggregation policy per dataset; defaults to count for posts/taxi and
	// mean for load.
	Policies map[string]string `yaml:"policies"`

	// Bucket keying per dataset: "zone" or "category". Defaults to zone for
	// taxi and load, category for posts.
	Keyings map[string]string `yaml:"keyings"`

	// Series pairs to correlate.
	Pairs []SeriesPair `yaml:"pairs"`
}

// SeriesPair names two bucket series to correlate. A positive best lag
// means B lags A.
type SeriesPair struct {
	DatasetA string `yaml:"dataset_a"`
	KeyA     string `yaml:"key_a"`
	DatasetB string `yaml:"dataset_b"`
	KeyB     string `yaml:"key_b"`
}

// UnmarshalYAML decodes the config, parsing window_width from a duration
// string ("1h", "30m"); the yaml package has no native duration support.
func (c *AnalysisConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias AnalysisConfig
	aux := struct {
		WindowWidth string `yaml:"window_width"`
		alias       `yaml:",inline"`
	}{}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*c = AnalysisConfig(aux.alias)
	if aux.WindowWidth != "" {
		d, err := time.ParseDuration(aux.WindowWidth)
		if err != nil {
			return fmt.Errorf("window_width: %w", err)
		}
		c.WindowWidth = d
	}
	return nil
}

// Validate enforces the caller contract: violations here are fatal and
// reported immediately, unlike per-row data noise.
func (c *AnalysisConfig) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.WindowWidth, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.MaxLag, validation.Min(0)),
		validation.Field(&c.MinSamples, validation.Min(2)),
		validation.Field(&c.Transform, validation.In("", "none", "boxcox")),
		validation.Field(&c.Differencing, validation.Min(0)),
		validation.Field(&c.RangeStart, validation.Required),
		validation.Field(&c.RangeEnd, validation.Required),
		validation.Field(&c.Pairs, validation.Required),
	)
	if err != nil {
		return err
	}
	if !c.RangeStart.Before(c.RangeEnd) {
		return fmt.Errorf("range_start %s must precede range_end %s", c.RangeStart, c.RangeEnd)
	}
	for i, p := range c.Pairs {
		if err := validation.ValidateStruct(&p,
			validation.Field(&p.DatasetA, validation.Required),
			validation.Field(&p.KeyA, validation.Required),
			validation.Field(&p.DatasetB, validation.Required),
			validation.Field(&p.KeyB, validation.Required),
		); err != nil {
			return fmt.Errorf("pair %d: %w", i, err)
		}
	}
	return nil
}

// LoadAnalysis loads and validates an analysis definition from a YAML file,
// expanding ${VAR} environment references first.
func LoadAnalysis(path string) (*AnalysisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis config %s: %w", path, err)
	}

	var cfg AnalysisConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse analysis config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analysis config validation failed: %w", err)
	}
	return &cfg, nil
}
