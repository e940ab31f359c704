package planner

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"

	"github.com/fentz26/rackplan/internal/audit"
	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/scheduler"
	"github.com/fentz26/rackplan/internal/solver"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// Ledger records runs, allocations, schedule files and decision records.
// store.Store and pgstore.Store satisfy it.
type Ledger interface {
	CreateRun(seed int64, agents, tasks int, configHash string) (*models.Run, error)
	FinishRun(id string, runErr error) error
	RecordAllocation(a *models.Allocation) error
	RecordSchedule(f *models.ScheduleFile) error
	WritePDR(action, inputsHash, outcome, runID, details string) (*models.PDREntry, error)
}

// Assignment is the resolved owner of one task.
type Assignment struct {
	Task        int             `json:"task"`
	Agent       int             `json:"agent"`
	Policy      int             `json:"policy"`
	Rack        warehouse.Point `json:"rack"`
	Feed        int             `json:"feed"`
	Cost        float64         `json:"cost"`
	Probability float64         `json:"probability"`
}

// Allocation is the outcome of phase one.
type Allocation struct {
	Assignments []Assignment
	Weights     map[int][]float64
	Achieved    []float64
	Policies    int
}

// Plan is one decoded schedule.
type Plan struct {
	Agent     int
	Task      int
	Kind      models.ScheduleKind
	Schedule  schedule.Schedule
	Objective float64
}

// Result is everything a run produced.
type Result struct {
	RunID      string
	Allocation *Allocation
	Tasks      []Plan
	Regen      []Plan
	AgentCosts []float64
	PerAgent   [][]int
	Files      []models.ScheduleFile
	Pools      scheduler.Stats
}

// Planner owns the layout and all mutable run state. It is driven by a
// single goroutine; only sparse export and file writes fan out to pools.
type Planner struct {
	cfg    *Config
	layout *warehouse.Layout
	rng    *rand.Rand
	sched  *scheduler.Scheduler

	starts []warehouse.Point
	tasks  []TaskSpec

	mo      solver.MultiObjective
	eval    solver.Evaluator
	witness solver.WitnessAllocator
	vi      solver.ValueIterator

	ledger   Ledger
	pdr      *audit.PDRWriter
	reporter Reporter
}

// Option configures a Planner.
type Option func(*Planner)

// WithSolvers replaces the baseline oracles. Nil arguments keep the
// baseline.
func WithSolvers(mo solver.MultiObjective, eval solver.Evaluator, witness solver.WitnessAllocator, vi solver.ValueIterator) Option {
	return func(p *Planner) {
		if mo != nil {
			p.mo = mo
		}
		if eval != nil {
			p.eval = eval
		}
		if witness != nil {
			p.witness = witness
		}
		if vi != nil {
			p.vi = vi
		}
	}
}

// WithLedger records the run in l.
func WithLedger(l Ledger) Option {
	return func(p *Planner) {
		p.ledger = l
		if l != nil {
			p.pdr = audit.NewPDRWriter(l)
		}
	}
}

// WithReporter sends progress events to r.
func WithReporter(r Reporter) Option {
	return func(p *Planner) {
		if r != nil {
			p.reporter = r
		}
	}
}

// New validates cfg, builds the layout and draws the tasks.
func New(cfg *Config, opts ...Option) (*Planner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := cfg.BuildLayout()
	if err != nil {
		return nil, fmt.Errorf("build layout: %w", err)
	}
	p := &Planner{
		cfg:      cfg,
		layout:   layout,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		sched:    scheduler.New(cfg.Pool),
		starts:   cfg.StartPositions(),
		eval:     solver.ChainEvaluator{},
		witness:  solver.GreedyWitness{},
		vi:       solver.SparseVI{},
		reporter: nopReporter{},
	}
	p.mo = solver.ScalarizedMO{VI: p.vi, Eval: p.eval}
	for _, opt := range opts {
		opt(p)
	}
	if p.tasks, err = cfg.GenerateTasks(p.rng, len(layout.Racks)); err != nil {
		return nil, err
	}
	return p, nil
}

// Layout returns the planner's layout. Callers must not mutate it while
// a run is in progress.
func (p *Planner) Layout() *warehouse.Layout { return p.layout }

// Tasks returns the tasks being planned.
func (p *Planner) Tasks() []TaskSpec { return p.tasks }

// Starts returns each agent's start cell.
func (p *Planner) Starts() []warehouse.Point { return p.starts }

// Run allocates, synthesizes, regenerates and persists. Any stage error
// aborts the run.
func (p *Planner) Run(ctx context.Context) (res *Result, err error) {
	res = &Result{}
	if p.ledger != nil {
		run, cerr := p.ledger.CreateRun(p.cfg.Seed, p.cfg.NumAgents(), len(p.tasks), audit.HashInputs(p.cfg))
		if cerr != nil {
			return nil, fmt.Errorf("create run: %w", cerr)
		}
		res.RunID = run.ID
		defer func() {
			if ferr := p.ledger.FinishRun(run.ID, err); ferr != nil {
				log.Printf("Error finishing run %s: %v", run.ID, ferr)
			}
		}()
	}
	defer func() { p.reporter.Done(err) }()

	log.Printf("Agent start positions: %v", p.starts)
	log.Printf("Tasks: %v", p.tasks)

	if res.Allocation, err = p.Allocate(ctx); err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}
	if res.Tasks, res.AgentCosts, err = p.Synthesize(ctx, res.Allocation); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if res.Regen, err = p.Regenerate(ctx); err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}
	res.PerAgent = make([][]int, p.cfg.NumAgents())
	for _, a := range res.Allocation.Assignments {
		res.PerAgent[a.Agent] = append(res.PerAgent[a.Agent], a.Task)
	}
	if res.Files, err = p.persist(ctx, res.RunID, append(append([]Plan(nil), res.Tasks...), res.Regen...)); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	if err = p.record(res); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	res.Pools = p.sched.Stats()
	log.Printf("Worker pools: completed %v, global max %d", res.Pools.Completed, res.Pools.GlobalMax)
	return res, nil
}

// OutputDir returns the directory a run writes its schedules to. Ledger
// runs get their own subdirectory so later runs never overwrite files an
// earlier run recorded.
func (p *Planner) OutputDir(runID string) string {
	if runID == "" {
		return p.cfg.OutputDir
	}
	return filepath.Join(p.cfg.OutputDir, runID)
}

// persist writes every plan under the run's output directory on the save
// pool.
func (p *Planner) persist(ctx context.Context, runID string, plans []Plan) ([]models.ScheduleFile, error) {
	p.reporter.Stage("save", len(plans))
	files := make([]models.ScheduleFile, len(plans))
	pool := p.sched.Pool(ctx, scheduler.WorkloadSave)
	dir := p.OutputDir(runID)
	for i, plan := range plans {
		name := schedule.TaskFileName(plan.Agent, plan.Task)
		if plan.Kind == models.ScheduleKindRegen {
			name = schedule.RegenFileName(plan.Agent)
		}
		path := filepath.Join(dir, name)
		files[i] = models.ScheduleFile{
			RunID:     runID,
			Kind:      plan.Kind,
			Agent:     plan.Agent,
			Task:      plan.Task,
			Path:      path,
			Records:   plan.Schedule.Len(),
			Objective: plan.Objective,
		}
		sched := plan.Schedule
		pool.Go(func(ctx context.Context) error {
			if err := schedule.WriteFile(path, sched); err != nil {
				return err
			}
			p.reporter.Step(path)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// record writes allocations, schedule files and decision records to the
// ledger once every pool has been joined.
func (p *Planner) record(res *Result) error {
	if p.ledger == nil {
		return nil
	}
	for _, a := range res.Allocation.Assignments {
		if err := p.ledger.RecordAllocation(&models.Allocation{
			RunID:       res.RunID,
			Task:        a.Task,
			Agent:       a.Agent,
			Policy:      a.Policy,
			RackX:       a.Rack.X,
			RackY:       a.Rack.Y,
			Feed:        a.Feed,
			Cost:        a.Cost,
			Probability: a.Probability,
		}); err != nil {
			return err
		}
		inputs := map[string]any{
			"task":    a.Task,
			"weights": res.Allocation.Weights[a.Task],
			"policy":  a.Policy,
		}
		details := fmt.Sprintf("task %d -> agent %d via policy %d", a.Task, a.Agent, a.Policy)
		if _, err := p.pdr.Record("task.allocate", inputs, "success", res.RunID, details); err != nil {
			return err
		}
	}
	for i := range res.Files {
		if err := p.ledger.RecordSchedule(&res.Files[i]); err != nil {
			return err
		}
	}
	return nil
}
