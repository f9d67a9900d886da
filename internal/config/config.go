package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/me/framesched/pkg/model"
	"gopkg.in/yaml.v3"
)

// Merge policies for the clustering merge pass.
const (
	MergeInterval = "interval" // per-axis interval test, edges inclusive
	MergeStrict   = "strict"   // positive-area intersection only
	MergeNone     = "none"     // every raw box is its own working box
)

// Size metrics used to pick a tier.
const (
	MetricDim  = "dim"  // max(width, height)
	MetricArea = "area" // width * height
)

// Classification modes.
const (
	ModeTiered    = "tiered"    // size tiers, one batch per tier per frame
	ModeSingleton = "singleton" // one batch per working box, priority from depth
)

// Tier is one size class of the box clusterer.
type Tier struct {
	Name     string `yaml:"name" json:"name"`
	MaxSize  int    `yaml:"max_size" json:"max_size"` // inclusive bound on the selected metric
	Width    int    `yaml:"width" json:"width"`       // output width
	Height   int    `yaml:"height" json:"height"`     // output height
	Priority int    `yaml:"priority" json:"priority"`
}

// ClusterConfig holds box clusterer settings.
type ClusterConfig struct {
	Merge             string  `yaml:"merge" json:"merge"`
	DropNested        bool    `yaml:"drop_nested" json:"drop_nested"`
	OutlierSigma      float64 `yaml:"outlier_sigma" json:"outlier_sigma"` // 0 disables the filter
	Metric            string  `yaml:"metric" json:"metric"`
	Mode              string  `yaml:"mode" json:"mode"`
	Tiers             []Tier  `yaml:"tiers" json:"tiers"`
	OversizedPriority int     `yaml:"oversized_priority" json:"oversized_priority"`
}

// CostConfig holds the execution cost model constants.
type CostConfig struct {
	PerPixel     float64 `yaml:"per_pixel" json:"per_pixel"`
	PerExtraTask float64 `yaml:"per_extra_task" json:"per_extra_task"`
	Expr         string  `yaml:"expr" json:"expr,omitempty"` // optional JavaScript override
}

// SimConfig holds configuration for one simulation run.
type SimConfig struct {
	FramePeriod int                 `yaml:"frame_period" json:"frame_period"`
	NumFrames   int                 `yaml:"num_frames" json:"num_frames"` // 0 = all available
	MaxSimTime  int                 `yaml:"max_sim_time" json:"max_sim_time"` // 0 = run until drained
	Frame       model.FrameSize     `yaml:"frame" json:"frame"`
	Deadlines   model.DeadlineTable `yaml:"deadlines" json:"deadlines"`
	Cost        CostConfig          `yaml:"cost" json:"cost"`
	Cluster     ClusterConfig       `yaml:"cluster" json:"cluster"`
}

// DefaultTiers returns the small/medium/large tiers used by default.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "small", MaxSize: 50, Width: 50, Height: 50, Priority: 4},
		{Name: "medium", MaxSize: 150, Width: 150, Height: 150, Priority: 3},
		{Name: "large", MaxSize: 300, Width: 300, Height: 450, Priority: 2},
	}
}

// DefaultClusterConfig returns sensible defaults.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Merge:             MergeInterval,
		Metric:            MetricDim,
		Mode:              ModeTiered,
		Tiers:             DefaultTiers(),
		OversizedPriority: 1,
	}
}

// DefaultSimConfig returns the reference dataset defaults: 1920x1280 frames
// arriving every 100 ticks.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		FramePeriod: 100,
		Frame:       model.FrameSize{Width: 1920, Height: 1280},
		Deadlines:   model.DefaultDeadlineTable(),
		Cost: CostConfig{
			PerPixel:     5e-5,
			PerExtraTask: 2,
		},
		Cluster: DefaultClusterConfig(),
	}
}

// Load reads a YAML file on top of DefaultSimConfig and validates the result.
func Load(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration. Errors are *model.ConfigError.
func (c *SimConfig) Validate() error {
	if c.FramePeriod <= 0 {
		return &model.ConfigError{Field: "frame_period", Message: fmt.Sprintf("must be > 0, got %d", c.FramePeriod)}
	}
	if c.NumFrames < 0 {
		return &model.ConfigError{Field: "num_frames", Message: fmt.Sprintf("must be >= 0, got %d", c.NumFrames)}
	}
	if c.MaxSimTime < 0 {
		return &model.ConfigError{Field: "max_sim_time", Message: fmt.Sprintf("must be >= 0, got %d", c.MaxSimTime)}
	}
	if c.Frame.Width <= 0 || c.Frame.Height <= 0 {
		return &model.ConfigError{Field: "frame", Message: fmt.Sprintf("size must be positive, got %dx%d", c.Frame.Width, c.Frame.Height)}
	}
	if len(c.Deadlines.Deadlines) == 0 {
		return &model.ConfigError{Field: "deadlines.deadlines", Message: "at least one bucket is required"}
	}
	if c.Deadlines.Bucket <= 0 {
		return &model.ConfigError{Field: "deadlines.bucket", Message: "must be > 0"}
	}
	if c.Cost.PerPixel < 0 || c.Cost.PerExtraTask < 0 {
		return &model.ConfigError{Field: "cost", Message: "constants must be >= 0"}
	}
	return c.Cluster.Validate()
}

// Validate checks clusterer settings.
func (c *ClusterConfig) Validate() error {
	if !slices.Contains([]string{MergeInterval, MergeStrict, MergeNone}, c.Merge) {
		return &model.ConfigError{Field: "cluster.merge", Message: fmt.Sprintf("unknown policy %q", c.Merge)}
	}
	if !slices.Contains([]string{MetricDim, MetricArea}, c.Metric) {
		return &model.ConfigError{Field: "cluster.metric", Message: fmt.Sprintf("unknown metric %q", c.Metric)}
	}
	if !slices.Contains([]string{ModeTiered, ModeSingleton}, c.Mode) {
		return &model.ConfigError{Field: "cluster.mode", Message: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	if c.OutlierSigma < 0 {
		return &model.ConfigError{Field: "cluster.outlier_sigma", Message: "must be >= 0"}
	}
	prev := -1
	for i, t := range c.Tiers {
		field := fmt.Sprintf("cluster.tiers[%d]", i)
		if t.Width <= 0 || t.Height <= 0 {
			return &model.ConfigError{Field: field, Message: "output size must be positive"}
		}
		if t.MaxSize <= prev {
			return &model.ConfigError{Field: field, Message: "max_size must increase across tiers"}
		}
		prev = t.MaxSize
	}
	return nil
}

// ToMap returns the configuration as a generic map, the form runs persist it in.
func (c SimConfig) ToMap() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// FromMap decodes a map produced by ToMap on top of DefaultSimConfig. Keys
// missing from m keep their defaults.
func FromMap(m map[string]any) (SimConfig, error) {
	cfg := DefaultSimConfig()
	if len(m) == 0 {
		return cfg, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return cfg, fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ServerConfig holds configuration for the results API server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite database path (default ~/.framesched/runs.db, ":memory:" for testing)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ResolveDBPath returns path, or ~/.framesched/runs.db when path is empty.
// The parent directory is created as needed.
func ResolveDBPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".framesched")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "runs.db"), nil
}
