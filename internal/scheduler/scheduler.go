package scheduler

import (
	"context"
	"log"
	"maps"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scheduler hands out worker pools sized by workload and tracks how many
// workers are active.
type Scheduler struct {
	config *Config
	cpus   int

	// Worker pool state
	mu             sync.Mutex
	activeWorkers  int
	workloadCounts map[string]int
	completed      map[string]int
}

// New creates a new scheduler.
func New(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Scheduler{
		config:         cfg,
		cpus:           runtime.NumCPU(),
		workloadCounts: make(map[string]int),
		completed:      make(map[string]int),
	}
}

// Size returns the worker count of a workload's pool: the number of CPUs
// capped by the workload ceiling and the global maximum.
func (sch *Scheduler) Size(workload string) int {
	n := min(sch.cpus, sch.config.GetWorkloadLimit(workload))
	if sch.config.GlobalMax > 0 {
		n = min(n, sch.config.GlobalMax)
	}
	return max(n, 1)
}

// Pool is a bounded set of workers for one workload. Go blocks while the
// pool is full; Wait joins every submitted unit and returns the first
// error.
type Pool struct {
	sch      *Scheduler
	workload string
	group    *errgroup.Group
	ctx      context.Context
}

// Pool starts a pool for workload. The pool's context is cancelled once a
// unit fails.
func (sch *Scheduler) Pool(ctx context.Context, workload string) *Pool {
	g, gctx := errgroup.WithContext(ctx)
	size := sch.Size(workload)
	g.SetLimit(size)
	log.Printf("Pool %s started with %d workers", workload, size)
	return &Pool{sch: sch, workload: workload, group: g, ctx: gctx}
}

// Go submits one unit of work. Units receive the pool context and must
// only touch values they own.
func (p *Pool) Go(fn func(ctx context.Context) error) {
	p.group.Go(func() error {
		p.sch.enter(p.workload)
		defer p.sch.leave(p.workload)
		if err := p.ctx.Err(); err != nil {
			return err
		}
		return fn(p.ctx)
	})
}

// Wait blocks until every submitted unit finished.
func (p *Pool) Wait() error {
	err := p.group.Wait()
	if err != nil {
		log.Printf("Pool %s stopped: %v", p.workload, err)
		return err
	}
	log.Printf("Pool %s drained, %d units completed so far", p.workload, p.sch.Stats().Completed[p.workload])
	return nil
}

func (sch *Scheduler) enter(workload string) {
	sch.mu.Lock()
	sch.activeWorkers++
	sch.workloadCounts[workload]++
	sch.mu.Unlock()
}

func (sch *Scheduler) leave(workload string) {
	sch.mu.Lock()
	sch.activeWorkers--
	sch.workloadCounts[workload]--
	sch.completed[workload]++
	sch.mu.Unlock()
}

// Stats is a snapshot of the scheduler's worker accounting.
type Stats struct {
	Active    int            `json:"active_workers"`
	GlobalMax int            `json:"global_max"`
	Running   map[string]int `json:"workload_counts"`
	Completed map[string]int `json:"completed"`
}

// Stats returns current scheduler statistics.
func (sch *Scheduler) Stats() Stats {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return Stats{
		Active:    sch.activeWorkers,
		GlobalMax: sch.config.GlobalMax,
		Running:   maps.Clone(sch.workloadCounts),
		Completed: maps.Clone(sch.completed),
	}
}
