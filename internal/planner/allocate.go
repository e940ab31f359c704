package planner

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/fentz26/rackplan/internal/automaton"
	"github.com/fentz26/rackplan/internal/product"
	"github.com/fentz26/rackplan/internal/scheduler"
	"github.com/fentz26/rackplan/internal/solver"
	"github.com/fentz26/rackplan/internal/warehouse"
)

func (p *Planner) coarsePoint(pt warehouse.Point) warehouse.Point {
	g := p.cfg.GridSquare
	return warehouse.Point{X: pt.X / g, Y: pt.Y / g}
}

// coarseContext is the current task context in coarse coordinates.
func (p *Planner) coarseContext(agent int) warehouse.TaskContext {
	tc := p.layout.TaskContext(agent)
	tc.Rack = p.coarsePoint(tc.Rack)
	tc.Feed = p.coarsePoint(tc.Feed)
	return tc
}

// Allocate runs phase one: it chains the coarse products of every
// (agent, task) pair, asks the multi-objective oracle for policies,
// evaluates them and resolves one agent per task.
func (p *Planner) Allocate(ctx context.Context) (*Allocation, error) {
	na, nt := p.cfg.NumAgents(), len(p.tasks)

	env := warehouse.NewCoarseModel(p.cfg.Reward)
	w, h := env.BuildStateSpace(p.layout.Width, p.layout.Height, p.cfg.GridSquare)
	if err := env.BuildTransitions(p.layout); err != nil {
		return nil, fmt.Errorf("coarse transitions: %w", err)
	}
	log.Printf("Coarse warehouse %dx%d: %d states", w, h, env.NumStates())

	// Initial states of every agent are fixed before any product is built.
	views := make([]*warehouse.CoarseModel, na)
	for a, s := range p.starts {
		v, err := env.WithInitial(p.coarsePoint(s))
		if err != nil {
			return nil, fmt.Errorf("agent %d start %s: %w", a, s, err)
		}
		views[a] = v
	}

	chain := product.NewChain(na, nt)
	p.reporter.Stage("products", na*nt)
	for t, task := range p.tasks {
		if err := p.layout.Select(task.Rack, task.Feed); err != nil {
			return nil, fmt.Errorf("task %d: %w", t, err)
		}
		for a := 0; a < na; a++ {
			aut, err := automaton.New(automaton.CoarseReplenishment(), p.coarseContext(a))
			if err != nil {
				return nil, err
			}
			m, err := product.Build[warehouse.CoarseWord](views[a], aut, a, t)
			if err != nil {
				return nil, err
			}
			if err := chain.Add(m); err != nil {
				return nil, err
			}
			p.reporter.Step(fmt.Sprintf("product %d x %d: %d states", a, t, m.NumStates()))
		}
	}
	if err := chain.Link(); err != nil {
		return nil, fmt.Errorf("link chain: %w", err)
	}

	p.reporter.Stage("load", na*nt)
	pool := p.sched.Pool(ctx, scheduler.WorkloadLoad)
	for _, pair := range chain.Pairs() {
		m, err := chain.Model(pair.Agent, pair.Task)
		if err != nil {
			return nil, err
		}
		pool.Go(func(ctx context.Context) error {
			mats, err := product.BuildMatrices(m)
			if err != nil {
				return fmt.Errorf("export %s: %w", pair, err)
			}
			chain.SetMatrices(pair.Agent, pair.Task, mats)
			p.reporter.Step("matrices " + pair.String())
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	inc, err := chain.Export()
	if err != nil {
		return nil, fmt.Errorf("export chain: %w", err)
	}
	log.Printf("Chained product |S|: %d, |A|: %d", inc.States, inc.Actions)

	costTargets := make([]float64, na)
	for a := range costTargets {
		costTargets[a] = p.cfg.CostTarget
	}
	probTargets := make([]float64, nt)
	for t := range probTargets {
		probTargets[t] = p.cfg.ProbTarget
	}

	p.reporter.Stage("synthesis", 1)
	mo, err := p.mo.Solve(ctx, solver.MORequest{
		Chain:       chain,
		Model:       inc,
		CostTargets: costTargets,
		ProbTargets: probTargets,
		Epsilon:     p.cfg.AllocEpsilon,
		Tuning:      p.cfg.Tuning,
	})
	if err != nil {
		return nil, fmt.Errorf("multi-objective synthesis: %w", err)
	}
	p.reporter.Step(fmt.Sprintf("%d policies, achieved %v", len(mo.Policies), mo.Achieved))

	owner, costs, probs, err := p.scan(ctx, chain, mo.Policies)
	if err != nil {
		return nil, err
	}

	weights, err := p.witness.Allocate(ctx, solver.WitnessRequest{
		Costs:       costs,
		Probs:       probs,
		Achieved:    mo.Achieved,
		ProbTargets: probTargets,
		CostTargets: costTargets,
		Policies:    len(mo.Policies),
		Tasks:       nt,
		Agents:      na,
	})
	if err != nil {
		return nil, fmt.Errorf("witness allocation: %w", err)
	}

	out := &Allocation{Weights: weights, Achieved: mo.Achieved, Policies: len(mo.Policies)}
	for t, task := range p.tasks {
		wt, ok := weights[t]
		if !ok {
			return nil, &MissingEntryError{Table: "witness weights", Agent: -1, Task: t, Policy: -1}
		}
		k, err := sampleWeighted(p.rng, wt)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", t, err)
		}
		agent, ok := owner[solver.ProbKey{Task: t, Policy: k}]
		if !ok {
			return nil, &MissingEntryError{Table: "allocation", Agent: -1, Task: t, Policy: k}
		}
		log.Printf("task: %d => %v, k = %d, agent allocated => %d", t, wt, k, agent)
		out.Assignments = append(out.Assignments, Assignment{
			Task:        t,
			Agent:       agent,
			Policy:      k,
			Rack:        p.layout.Racks[task.Rack],
			Feed:        task.Feed,
			Cost:        costs[solver.CostKey{Agent: agent, Task: t, Policy: k}],
			Probability: probs[solver.ProbKey{Task: t, Policy: k}],
		})
	}
	return out, nil
}

// scan walks tasks, then agents, then policies in index order and gives
// each policy to the first agent whose scheduler has mass at its initial
// state. Each allocation is evaluated once.
func (p *Planner) scan(ctx context.Context, chain *product.Chain, policies []solver.Policy) (
	map[solver.ProbKey]int, map[solver.CostKey]float64, map[solver.ProbKey]float64, error,
) {
	owner := make(map[solver.ProbKey]int)
	costs := make(map[solver.CostKey]float64)
	probs := make(map[solver.ProbKey]float64)
	for t := 0; t < chain.Tasks(); t++ {
		used := make([]bool, len(policies))
		for a := 0; a < chain.Agents(); a++ {
			m, err := chain.Model(a, t)
			if err != nil {
				return nil, nil, nil, err
			}
			for k, pol := range policies {
				sched, ok := pol[product.Pair{Agent: a, Task: t}]
				if !ok {
					return nil, nil, nil, &MissingEntryError{Table: "policy", Agent: a, Task: t, Policy: k}
				}
				if used[k] || sched.Mass(m.Initial) == 0 {
					continue
				}
				c, pr, err := p.eval.Evaluate(ctx, solver.EvalRequest{
					Chain:     chain,
					Epsilon:   p.cfg.AllocEpsilon,
					Actions:   m.Actions,
					Scheduler: sched,
					Agent:     a,
					Task:      t,
				})
				if err != nil {
					return nil, nil, nil, fmt.Errorf("evaluate %d x %d policy %d: %w", a, t, k, err)
				}
				probs[solver.ProbKey{Task: t, Policy: k}] = pr
				costs[solver.CostKey{Agent: a, Task: t, Policy: k}] = c
				owner[solver.ProbKey{Task: t, Policy: k}] = a
				used[k] = true
			}
		}
	}
	return owner, costs, probs, nil
}

// sampleWeighted draws an index with probability proportional to its
// weight.
func sampleWeighted(rng *rand.Rand, weights []float64) (int, error) {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0, ErrNoWeight
	}
	r := rng.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if r < w {
			return i, nil
		}
		r -= w
	}
	return last, nil
}
