package config

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// EnvPrefix prefixes every environment override, e.g. MC_EPISODES
const EnvPrefix = "MC"

// Config describes one navigation scenario and its learning parameters
type Config struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`

	Episodes         int     `json:"episodes" mapstructure:"episodes"`
	StepCost         float64 `json:"step_cost" mapstructure:"step_cost"`
	MaxSteps         int     `json:"max_steps" mapstructure:"max_steps"`
	DiscountFactor   float64 `json:"discount_factor" mapstructure:"discount_factor"`
	StrictFirstVisit bool    `json:"strict_first_visit,omitempty" mapstructure:"strict_first_visit"`

	StepSize      float64 `json:"step_size" mapstructure:"step_size"`
	GridExtent    float64 `json:"grid_extent" mapstructure:"grid_extent"`
	GoalThreshold float64 `json:"goal_threshold" mapstructure:"goal_threshold"`
	Clearance     float64 `json:"clearance" mapstructure:"clearance"`

	Start     world.Position   `json:"start" mapstructure:"start"`
	Goal      world.Position   `json:"goal" mapstructure:"goal"`
	Obstacles []world.Position `json:"obstacles,omitempty" mapstructure:"obstacles"`

	// Seed fixes the random source; 0 seeds from the clock
	Seed      int64  `json:"seed,omitempty" mapstructure:"seed"`
	TablePath string `json:"table_path,omitempty" mapstructure:"table_path"`
}

// Default returns the classic 15x15 scenario with no obstacles
func Default() *Config {
	return &Config{
		Name:           "classic",
		Description:    "Corner to corner on an open 15x15 grid",
		Episodes:       trainer.DefaultEpisodes,
		StepCost:       episode.DefaultStepCost,
		MaxSteps:       episode.DefaultMaxSteps,
		DiscountFactor: trainer.DefaultDiscountFactor,
		StepSize:       world.DefaultStepSize,
		GridExtent:     world.DefaultExtent,
		GoalThreshold:  episode.DefaultGoalThreshold,
		Clearance:      world.DefaultClearance,
		Start:          world.Position{X: 7, Z: -7},
		Goal:           world.Position{X: -7, Z: 7},
		TablePath:      store.DefaultPath,
	}
}

// Validate checks every parameter
func (c *Config) Validate() error {
	if c.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive, got %d", c.Episodes)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.DiscountFactor < 0 || c.DiscountFactor > 1 {
		return fmt.Errorf("discount_factor must be within [0, 1], got %v", c.DiscountFactor)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %v", c.StepSize)
	}
	if c.GridExtent <= 0 {
		return fmt.Errorf("grid_extent must be positive, got %v", c.GridExtent)
	}
	if c.GoalThreshold < 0 {
		return fmt.Errorf("goal_threshold cannot be negative, got %v", c.GoalThreshold)
	}
	if c.Clearance < 0 {
		return fmt.Errorf("clearance cannot be negative, got %v", c.Clearance)
	}
	if !c.inBounds(c.Start) {
		return fmt.Errorf("start %s is outside the grid", c.Start)
	}
	if !c.inBounds(c.Goal) {
		return fmt.Errorf("goal %s is outside the grid", c.Goal)
	}
	return nil
}

func (c *Config) inBounds(p world.Position) bool {
	return p.X >= -c.GridExtent && p.X <= c.GridExtent && p.Z >= -c.GridExtent && p.Z <= c.GridExtent
}

// WorldOptions returns the grid geometry
func (c *Config) WorldOptions() world.Options {
	return world.Options{
		Extent:    c.GridExtent,
		StepSize:  c.StepSize,
		Clearance: c.Clearance,
	}
}

// NewWorld builds the grid described by the config
func (c *Config) NewWorld() (*world.GridWorld, error) {
	return world.New(c.WorldOptions(), c.Obstacles)
}

// TrainerConfig returns the trainer parameters
func (c *Config) TrainerConfig() trainer.Config {
	return trainer.Config{
		Episode: episode.Config{
			Start:         c.Start,
			Goal:          c.Goal,
			StepCost:      c.StepCost,
			MaxSteps:      c.MaxSteps,
			GoalThreshold: c.GoalThreshold,
		},
		Episodes:         c.Episodes,
		DiscountFactor:   c.DiscountFactor,
		StrictFirstVisit: c.StrictFirstVisit,
	}
}

// NewRand returns a random source seeded from Seed, or the clock when unset
func (c *Config) NewRand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	out.Obstacles = append([]world.Position(nil), c.Obstacles...)
	return &out
}

// Load reads a config file (JSON or YAML, by extension) over the defaults and
// applies MC_* environment overrides. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	return load(path, Default(), true)
}

// LoadFile reads a scenario file over defaults, without environment
// overrides. defaults is not modified.
func LoadFile(path string, defaults *Config) (*Config, error) {
	return load(path, defaults, false)
}

func load(path string, defaults *Config, env bool) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaults)

	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := defaults.Clone()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides are picked up
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("name", d.Name)
	v.SetDefault("description", d.Description)
	v.SetDefault("episodes", d.Episodes)
	v.SetDefault("step_cost", d.StepCost)
	v.SetDefault("max_steps", d.MaxSteps)
	v.SetDefault("discount_factor", d.DiscountFactor)
	v.SetDefault("strict_first_visit", d.StrictFirstVisit)
	v.SetDefault("step_size", d.StepSize)
	v.SetDefault("grid_extent", d.GridExtent)
	v.SetDefault("goal_threshold", d.GoalThreshold)
	v.SetDefault("clearance", d.Clearance)
	v.SetDefault("start.x", d.Start.X)
	v.SetDefault("start.z", d.Start.Z)
	v.SetDefault("goal.x", d.Goal.X)
	v.SetDefault("goal.z", d.Goal.Z)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("table_path", d.TablePath)
}
