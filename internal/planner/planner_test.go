package planner

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/product"
	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/scheduler"
	"github.com/fentz26/rackplan/internal/solver"
	"github.com/fentz26/rackplan/internal/store"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// smallConfig is a 5x4 warehouse with one pair of rack columns at x = 2
// and 3, a feed at (0,1) and two agents.
func smallConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 5, 4
	cfg.FeedPoints = []warehouse.Point{{X: 0, Y: 1}}
	cfg.Fleet = []AgentConfig{
		{Queue: warehouse.Point{X: 4, Y: 3}},
		{Queue: warehouse.Point{X: 0, Y: 3}},
	}
	cfg.TaskList = []TaskSpec{{Rack: 0, Feed: 0}, {Rack: 3, Feed: 0}}
	cfg.OutputDir = filepath.Join(t.TempDir(), "schedulers")
	return cfg
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rackplan.yaml")
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.TaskCount = 3
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Seed != 42 || loaded.TaskCount != 3 {
		t.Errorf("Round trip lost values: seed %d, tasks %d", loaded.Seed, loaded.TaskCount)
	}
	if len(loaded.Fleet) != 4 || loaded.Fleet[3].Queue != (warehouse.Point{X: 9, Y: 0}) {
		t.Errorf("Unexpected fleet %+v", loaded.Fleet)
	}
	if loaded.Pool.GetWorkloadLimit("load") != 10 {
		t.Errorf("Expected load ceiling 10, got %d", loaded.Pool.GetWorkloadLimit("load"))
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Width != 12 || cfg.TaskCount != 9 {
		t.Errorf("Expected defaults, got %dx%d with %d tasks", cfg.Width, cfg.Height, cfg.TaskCount)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"zero grid square", func(c *Config) { c.GridSquare = 0 }},
		{"no feeds", func(c *Config) { c.FeedPoints = nil }},
		{"no fleet", func(c *Config) { c.Fleet = nil }},
		{"no tasks", func(c *Config) { c.TaskCount = 0 }},
		{"prob above one", func(c *Config) { c.ProbTarget = 1.5 }},
		{"zero reward", func(c *Config) { c.Reward = 0 }},
		{"positive reward", func(c *Config) { c.Reward = 1 }},
		{"positive cost target", func(c *Config) { c.CostTarget = 5 }},
		{"zero epsilon", func(c *Config) { c.SynthEpsilon = 0 }},
		{"no output dir", func(c *Config) { c.OutputDir = "" }},
		{"feed outside", func(c *Config) { c.FeedPoints = []warehouse.Point{{X: 12, Y: 0}} }},
		{"queue outside", func(c *Config) { c.Fleet[0].Queue = warehouse.Point{X: -1, Y: 0} }},
		{"task feed", func(c *Config) { c.TaskList = []TaskSpec{{Rack: 0, Feed: 3}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestStartPositions(t *testing.T) {
	cfg := DefaultConfig()
	want := []warehouse.Point{{X: 2, Y: 0}, {X: 2, Y: 11}, {X: 3, Y: 0}, {X: 3, Y: 11}}
	got := cfg.StartPositions()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Agent %d: expected start %s, got %s", i, want[i], got[i])
		}
	}

	start := warehouse.Point{X: 5, Y: 5}
	cfg.Fleet[1].Start = &start
	if got := cfg.StartPositions()[1]; got != start {
		t.Errorf("Expected explicit start %s, got %s", start, got)
	}
}

func TestGenerateTasks(t *testing.T) {
	cfg := DefaultConfig()
	tasks, err := cfg.GenerateTasks(rand.New(rand.NewSource(cfg.Seed)), 60)
	if err != nil {
		t.Fatalf("GenerateTasks failed: %v", err)
	}
	if len(tasks) != 9 {
		t.Fatalf("Expected 9 tasks, got %d", len(tasks))
	}
	seen := make(map[int]bool)
	for _, task := range tasks {
		if seen[task.Rack] {
			t.Errorf("Rack %d drawn twice", task.Rack)
		}
		seen[task.Rack] = true
		if task.Rack < 0 || task.Rack >= 60 || task.Feed != 0 {
			t.Errorf("Task out of range: %+v", task)
		}
	}

	again, _ := cfg.GenerateTasks(rand.New(rand.NewSource(cfg.Seed)), 60)
	for i := range tasks {
		if tasks[i] != again[i] {
			t.Errorf("Same seed drew different task %d: %+v vs %+v", i, tasks[i], again[i])
		}
	}

	if _, err := cfg.GenerateTasks(rand.New(rand.NewSource(1)), 5); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for too few racks, got %v", err)
	}
}

func TestSampleWeighted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		k, err := sampleWeighted(rng, []float64{0, 1, 0})
		if err != nil {
			t.Fatalf("sampleWeighted failed: %v", err)
		}
		if k != 1 {
			t.Fatalf("Expected the only weighted index 1, got %d", k)
		}
	}
	if _, err := sampleWeighted(rng, []float64{0, 0}); !errors.Is(err, ErrNoWeight) {
		t.Errorf("Expected ErrNoWeight, got %v", err)
	}
}

type countingReporter struct {
	stages []string
	done   bool
	err    error
}

func (r *countingReporter) Stage(name string, total int) { r.stages = append(r.stages, name) }
func (r *countingReporter) Step(string)                  {}
func (r *countingReporter) Done(err error)               { r.done, r.err = true, err }

func TestRunEndToEnd(t *testing.T) {
	cfg := smallConfig(t)
	ledger, err := store.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer ledger.Close()

	rep := &countingReporter{}
	p, err := New(cfg, WithLedger(ledger), WithReporter(rep))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(res.Allocation.Assignments); got != 2 {
		t.Fatalf("Expected 2 assignments, got %d", got)
	}
	owners := 0
	for _, tasks := range res.PerAgent {
		owners += len(tasks)
	}
	if owners != 2 {
		t.Errorf("Expected each task owned exactly once, got %v", res.PerAgent)
	}
	for _, a := range res.Allocation.Assignments {
		if a.Probability != 1 {
			t.Errorf("Task %d: expected probability 1, got %v", a.Task, a.Probability)
		}
		if a.Agent < 0 || a.Agent >= 2 {
			t.Errorf("Task %d: agent %d out of range", a.Task, a.Agent)
		}
	}
	if len(res.Tasks) != 2 || len(res.Regen) != 2 {
		t.Fatalf("Expected 2 task plans and 2 regeneration plans, got %d and %d", len(res.Tasks), len(res.Regen))
	}
	for _, plan := range res.Tasks {
		if plan.Objective >= 0 {
			t.Errorf("Task %d: expected a negative objective, got %v", plan.Task, plan.Objective)
		}
	}

	for _, f := range res.Files {
		if _, err := os.Stat(f.Path); err != nil {
			t.Errorf("Schedule file %s missing: %v", f.Path, err)
		}
	}
	regen := filepath.Join(cfg.OutputDir, res.RunID, schedule.RegenFileName(1))
	sched, err := schedule.ReadFile(regen)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	start := warehouse.FineState{Dir: warehouse.Down, Pos: p.Starts()[1], PackPos: warehouse.NoPack}
	if _, ok := sched.Lookup(start, 0); !ok {
		t.Errorf("Regeneration schedule has no record for the start state")
	}

	run, err := ledger.GetRun(res.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != models.RunStatusCompleted {
		t.Errorf("Expected completed run, got %s", run.Status)
	}
	allocs, err := ledger.ListAllocations(res.RunID)
	if err != nil {
		t.Fatalf("ListAllocations failed: %v", err)
	}
	if len(allocs) != 2 {
		t.Errorf("Expected 2 recorded allocations, got %d", len(allocs))
	}
	files, err := ledger.ListSchedules(res.RunID)
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if len(files) != 4 {
		t.Errorf("Expected 4 recorded schedules, got %d", len(files))
	}
	pdrs, err := ledger.ListPDRs(res.RunID)
	if err != nil {
		t.Fatalf("ListPDRs failed: %v", err)
	}
	if len(pdrs) != 2 {
		t.Errorf("Expected 2 decision records, got %d", len(pdrs))
	}

	if got := res.Pools.Completed[scheduler.WorkloadLoad]; got != 4 {
		t.Errorf("Expected 4 matrix exports, got %d", got)
	}
	if got := res.Pools.Completed[scheduler.WorkloadSave]; got != 4 {
		t.Errorf("Expected 4 schedule writes, got %d", got)
	}
	if res.Pools.Active != 0 {
		t.Errorf("Expected idle pools after Run, got %d active", res.Pools.Active)
	}

	if !rep.done || rep.err != nil {
		t.Errorf("Expected a clean Done, got done=%v err=%v", rep.done, rep.err)
	}
	want := []string{"products", "load", "synthesis", "tasks", "regeneration", "save"}
	if len(rep.stages) != len(want) {
		t.Fatalf("Expected stages %v, got %v", want, rep.stages)
	}
	for i := range want {
		if rep.stages[i] != want[i] {
			t.Errorf("Stage %d: expected %s, got %s", i, want[i], rep.stages[i])
		}
	}
}

func TestRunsKeepSeparateOutputs(t *testing.T) {
	ledger, err := store.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer ledger.Close()

	first := smallConfig(t)
	first.TaskList = []TaskSpec{{Rack: 0, Feed: 0}}
	second := *first
	second.TaskList = []TaskSpec{{Rack: 3, Feed: 0}}

	var runs []*Result
	for _, cfg := range []*Config{first, &second} {
		p, err := New(cfg, WithLedger(ledger))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		res, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		runs = append(runs, res)
	}

	var paths []string
	for _, res := range runs {
		a := res.Allocation.Assignments[0]
		f, err := ledger.FindSchedule(res.RunID, models.ScheduleKindTask, a.Agent, 0)
		if err != nil {
			t.Fatalf("FindSchedule failed: %v", err)
		}
		if filepath.Dir(f.Path) != filepath.Join(first.OutputDir, res.RunID) {
			t.Errorf("Expected schedule under the run directory, got %s", f.Path)
		}
		sched, err := schedule.ReadFile(f.Path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if sched.Len() != f.Records {
			t.Errorf("Run %s: ledger has %d records, file has %d", res.RunID, f.Records, sched.Len())
		}
		paths = append(paths, f.Path)
	}
	if paths[0] == paths[1] {
		t.Errorf("Runs share schedule file %s", paths[0])
	}
}

// emptyMO returns policies that omit every pair.
type emptyMO struct{}

func (emptyMO) Solve(ctx context.Context, req solver.MORequest) (*solver.MOResult, error) {
	return &solver.MOResult{Policies: []solver.Policy{{}}, Achieved: make([]float64, req.Chain.Agents()+req.Chain.Tasks())}, nil
}

func TestAllocateMissingPolicyEntry(t *testing.T) {
	p, err := New(smallConfig(t), WithSolvers(emptyMO{}, nil, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = p.Allocate(context.Background())
	var missing *MissingEntryError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingEntryError, got %v", err)
	}
	if missing.Table != "policy" || missing.Task != 0 || missing.Agent != 0 {
		t.Errorf("Unexpected entry %+v", missing)
	}
	if !errors.Is(err, ErrMissingEntry) {
		t.Errorf("Expected ErrMissingEntry in chain")
	}
}

// everyoneMO returns one policy in which every agent has mass at the
// initial state of every task.
type everyoneMO struct{}

func (everyoneMO) Solve(ctx context.Context, req solver.MORequest) (*solver.MOResult, error) {
	pol := make(solver.Policy)
	for _, pair := range req.Chain.Pairs() {
		m, err := req.Chain.Model(pair.Agent, pair.Task)
		if err != nil {
			return nil, err
		}
		pol[pair] = solver.Deterministic(make([]int, m.NumStates()), m.Actions)
	}
	achieved := make([]float64, req.Chain.Agents()+req.Chain.Tasks())
	for t := 0; t < req.Chain.Tasks(); t++ {
		achieved[req.Chain.Agents()+t] = 1
	}
	return &solver.MOResult{Policies: []solver.Policy{pol}, Achieved: achieved}, nil
}

// countingEval records every evaluated pair.
type countingEval struct {
	calls []product.Pair
}

func (e *countingEval) Evaluate(_ context.Context, req solver.EvalRequest) (float64, float64, error) {
	e.calls = append(e.calls, product.Pair{Agent: req.Agent, Task: req.Task})
	return -1, 1, nil
}

func TestAllocateScansInIndexOrder(t *testing.T) {
	eval := &countingEval{}
	p, err := New(smallConfig(t), WithSolvers(everyoneMO{}, eval, nil, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	alloc, err := p.Allocate(context.Background())
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	// policy 0 goes to agent 0 for each task and is evaluated once
	want := []product.Pair{{Agent: 0, Task: 0}, {Agent: 0, Task: 1}}
	if !slices.Equal(eval.calls, want) {
		t.Errorf("Evaluated %v, want %v", eval.calls, want)
	}
	if len(alloc.Assignments) != 2 {
		t.Fatalf("Expected 2 assignments, got %d", len(alloc.Assignments))
	}
	for _, as := range alloc.Assignments {
		if as.Agent != 0 || as.Policy != 0 {
			t.Errorf("Task %d: agent %d policy %d, want agent 0 policy 0", as.Task, as.Agent, as.Policy)
		}
	}
}

func TestRunInfeasibleCostCeiling(t *testing.T) {
	cfg := smallConfig(t)
	cfg.CostTarget = -1
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, solver.ErrInfeasible) {
		t.Errorf("Expected ErrInfeasible, got %v", err)
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("No schedules should be written for infeasible targets")
	}
}

type infeasibleWitness struct{}

func (infeasibleWitness) Allocate(context.Context, solver.WitnessRequest) (map[int][]float64, error) {
	return nil, solver.ErrInfeasible
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := smallConfig(t)
	ledger, err := store.New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer ledger.Close()

	rep := &countingReporter{}
	p, err := New(cfg, WithLedger(ledger), WithReporter(rep), WithSolvers(nil, nil, infeasibleWitness{}, nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, solver.ErrInfeasible) {
		t.Fatalf("Expected ErrInfeasible, got %v", err)
	}
	if !errors.Is(rep.err, solver.ErrInfeasible) {
		t.Errorf("Reporter should see the failure, got %v", rep.err)
	}

	runs, err := ledger.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusFailed {
		t.Errorf("Expected one failed run, got %+v", runs)
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("No schedules should be written on failure")
	}
}

func TestRunCancelled(t *testing.T) {
	p, err := New(smallConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
