// Package planner runs the two-phase allocation and planning pipeline:
// coarse multi-objective task allocation, then fine policy synthesis for
// every assignment and a regeneration policy per agent.
package planner

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/fentz26/rackplan/internal/scheduler"
	"github.com/fentz26/rackplan/internal/warehouse"
	"gopkg.in/yaml.v3"
)

// AgentConfig configures one robot. A nil Start uses the default
// alternating bottom/top row start cell.
type AgentConfig struct {
	Start *warehouse.Point `yaml:"start,omitempty"`
	Queue warehouse.Point  `yaml:"queue"`
}

// TaskSpec is a replenishment task: a rack index and a feed index.
type TaskSpec struct {
	Rack int `yaml:"rack"`
	Feed int `yaml:"feed"`
}

// LedgerConfig selects the run ledger. A non-empty DSN selects
// PostgreSQL; otherwise the SQLite file at Path is used.
type LedgerConfig struct {
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn,omitempty"`
}

// Config holds planner configuration.
type Config struct {
	// Width and Height are the fine grid size.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// GridSquare folds this many fine cells into one coarse cell per axis.
	GridSquare int `yaml:"grid_square"`
	// Seed drives task generation and policy sampling.
	Seed int64 `yaml:"seed"`
	// FeedPoints lists the feed cells.
	FeedPoints []warehouse.Point `yaml:"feed_points"`
	// Racks lists explicit rack cells; empty generates the default layout.
	Racks []warehouse.Point `yaml:"racks,omitempty"`
	// Fleet configures each agent.
	Fleet []AgentConfig `yaml:"fleet"`
	// TaskCount is the number of tasks drawn when TaskList is empty.
	TaskCount int `yaml:"tasks"`
	// TaskList lists explicit tasks.
	TaskList []TaskSpec `yaml:"task_list,omitempty"`
	// CostTarget is the per-agent expected cost ceiling. Costs are
	// accumulated rewards, so it is negative and met from above.
	CostTarget float64 `yaml:"cost_target"`
	// ProbTarget is the per-task success probability floor.
	ProbTarget float64 `yaml:"prob_target"`
	// AllocEpsilon and SynthEpsilon are the convergence thresholds of
	// the two phases.
	AllocEpsilon float64 `yaml:"alloc_epsilon"`
	SynthEpsilon float64 `yaml:"synth_epsilon"`
	// Tuning is passed to the multi-objective oracle.
	Tuning []float64 `yaml:"tuning"`
	// Reward is the per-step reward of both grid models.
	Reward float64 `yaml:"reward"`
	// OutputDir receives the schedule files.
	OutputDir string `yaml:"output_dir"`
	// Pool sizes the worker pools.
	Pool *scheduler.Config `yaml:"pool"`
	// Ledger selects the run ledger.
	Ledger LedgerConfig `yaml:"ledger"`
}

// DefaultConfig returns the stock 12x12 warehouse with four agents and
// nine tasks.
func DefaultConfig() *Config {
	return &Config{
		Width:      12,
		Height:     12,
		GridSquare: 1,
		Seed:       1234,
		FeedPoints: []warehouse.Point{{X: 0, Y: 5}},
		Fleet: []AgentConfig{
			{Queue: warehouse.Point{X: 11, Y: 11}},
			{Queue: warehouse.Point{X: 0, Y: 11}},
			{Queue: warehouse.Point{X: 3, Y: 11}},
			{Queue: warehouse.Point{X: 9, Y: 0}},
		},
		TaskCount:    9,
		CostTarget:   -250,
		ProbTarget:   0.99,
		AllocEpsilon: 1e-4,
		SynthEpsilon: 1e-5,
		Tuning:       []float64{10, 0.1},
		Reward:       -1,
		OutputDir:    "schedulers",
		Pool:         scheduler.DefaultConfig(),
		Ledger:       LedgerConfig{Path: "rackplan.db"},
	}
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a YAML file, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch {
	case c.Width < 1 || c.Height < 1:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrConfig, c.Width, c.Height)
	case c.GridSquare < 1:
		return fmt.Errorf("%w: grid_square must be at least 1", ErrConfig)
	case len(c.FeedPoints) == 0:
		return fmt.Errorf("%w: at least one feed point is required", ErrConfig)
	case len(c.Fleet) == 0:
		return fmt.Errorf("%w: fleet must have at least one agent", ErrConfig)
	case len(c.TaskList) == 0 && c.TaskCount < 1:
		return fmt.Errorf("%w: tasks must be at least 1", ErrConfig)
	case c.Reward >= 0:
		return fmt.Errorf("%w: reward must be negative, got %v", ErrConfig, c.Reward)
	case c.CostTarget > 0:
		return fmt.Errorf("%w: cost_target must not be positive, got %v", ErrConfig, c.CostTarget)
	case c.ProbTarget < 0 || c.ProbTarget > 1:
		return fmt.Errorf("%w: prob_target must be within [0, 1], got %v", ErrConfig, c.ProbTarget)
	case c.AllocEpsilon <= 0 || c.SynthEpsilon <= 0:
		return fmt.Errorf("%w: epsilons must be positive", ErrConfig)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir is required", ErrConfig)
	}
	for i, p := range c.FeedPoints {
		if !p.InBounds(c.Width, c.Height) {
			return fmt.Errorf("%w: feed point %d %s outside the grid", ErrConfig, i, p)
		}
	}
	for i, a := range c.Fleet {
		if !a.Queue.InBounds(c.Width, c.Height) {
			return fmt.Errorf("%w: agent %d queue point %s outside the grid", ErrConfig, i, a.Queue)
		}
		if a.Start != nil && !a.Start.InBounds(c.Width, c.Height) {
			return fmt.Errorf("%w: agent %d start %s outside the grid", ErrConfig, i, *a.Start)
		}
	}
	for i, t := range c.TaskList {
		if t.Feed < 0 || t.Feed >= len(c.FeedPoints) {
			return fmt.Errorf("%w: task %d feed %d out of range", ErrConfig, i, t.Feed)
		}
		if t.Rack < 0 {
			return fmt.Errorf("%w: task %d rack %d out of range", ErrConfig, i, t.Rack)
		}
	}
	return nil
}

// NumAgents returns the fleet size.
func (c *Config) NumAgents() int { return len(c.Fleet) }

// BuildLayout constructs and validates the warehouse layout.
func (c *Config) BuildLayout() (*warehouse.Layout, error) {
	l := warehouse.NewLayout(c.Width, c.Height, c.FeedPoints)
	var racks []warehouse.Point
	if len(c.Racks) > 0 {
		racks = c.Racks
	}
	if err := l.SetRacks(racks); err != nil {
		return nil, err
	}
	l.SetCorridors(nil)
	l.SetRotationMapping()
	queues := make([]warehouse.Point, len(c.Fleet))
	for i, a := range c.Fleet {
		queues[i] = a.Queue
	}
	l.SetQueuePoints(queues)
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// StartPositions returns each agent's start cell. Unset starts alternate
// between the bottom and top rows from x = 2.
func (c *Config) StartPositions() []warehouse.Point {
	var defaults []warehouse.Point
	for x := 2; x < c.Width && len(defaults) < len(c.Fleet); x++ {
		defaults = append(defaults, warehouse.Point{X: x, Y: 0}, warehouse.Point{X: x, Y: c.Height - 1})
	}
	starts := make([]warehouse.Point, len(c.Fleet))
	for i, a := range c.Fleet {
		switch {
		case a.Start != nil:
			starts[i] = *a.Start
		case i < len(defaults):
			starts[i] = defaults[i]
		default:
			starts[i] = warehouse.Point{X: i % c.Width, Y: 0}
		}
	}
	return starts
}

// GenerateTasks returns TaskList, or draws TaskCount distinct racks and
// uniform feed options from rng.
func (c *Config) GenerateTasks(rng *rand.Rand, numRacks int) ([]TaskSpec, error) {
	if len(c.TaskList) > 0 {
		for i, t := range c.TaskList {
			if t.Rack >= numRacks {
				return nil, fmt.Errorf("%w: task %d rack %d of %d", ErrConfig, i, t.Rack, numRacks)
			}
		}
		return append([]TaskSpec(nil), c.TaskList...), nil
	}
	if c.TaskCount > numRacks {
		return nil, fmt.Errorf("%w: %d tasks need distinct racks but only %d exist", ErrConfig, c.TaskCount, numRacks)
	}
	feeds := make([]int, c.TaskCount)
	for i := range feeds {
		feeds[i] = rng.Intn(len(c.FeedPoints))
	}
	racks := rng.Perm(numRacks)[:c.TaskCount]
	tasks := make([]TaskSpec, c.TaskCount)
	for i := range tasks {
		tasks[i] = TaskSpec{Rack: racks[i], Feed: feeds[i]}
	}
	return tasks, nil
}
