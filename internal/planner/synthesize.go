package planner

import (
	"context"
	"fmt"
	"log"

	"github.com/fentz26/rackplan/internal/automaton"
	"github.com/fentz26/rackplan/internal/models"
	"github.com/fentz26/rackplan/internal/product"
	"github.com/fentz26/rackplan/internal/schedule"
	"github.com/fentz26/rackplan/internal/solver"
	"github.com/fentz26/rackplan/internal/warehouse"
)

// buildFine returns the fine model over the layout corridors. Its
// transitions depend only on the static layout, so one model serves
// every task.
func (p *Planner) buildFine() (*warehouse.FineModel, error) {
	env := warehouse.NewFineModel(p.cfg.Reward)
	env.BuildStateSpace(p.layout.Corridors)
	if err := env.BuildTransitions(p.layout); err != nil {
		return nil, fmt.Errorf("fine transitions: %w", err)
	}
	log.Printf("Fine warehouse: %d states", env.NumStates())
	return env, nil
}

func (p *Planner) startState(agent int) warehouse.FineState {
	return warehouse.FineState{Dir: warehouse.Down, Pos: p.starts[agent], PackPos: warehouse.NoPack}
}

// solveFine builds the product of env and def for one agent, solves it
// and decodes the optimal policy.
func (p *Planner) solveFine(ctx context.Context, env *warehouse.FineModel, def automaton.Definition[warehouse.FineWord], agent, task int) (schedule.Schedule, float64, error) {
	view, err := env.WithInitial(p.startState(agent))
	if err != nil {
		return nil, 0, fmt.Errorf("agent %d start: %w", agent, err)
	}
	aut, err := automaton.New(def, p.layout.TaskContext(agent))
	if err != nil {
		return nil, 0, err
	}
	m, err := product.Build[warehouse.FineWord](view, aut, agent, task)
	if err != nil {
		return nil, 0, err
	}
	proper := product.ProperActions(m)
	mats, err := product.BuildMatrices(m)
	if err != nil {
		return nil, 0, err
	}
	res, err := p.vi.Solve(ctx, solver.VIRequest{
		Epsilon:     p.cfg.SynthEpsilon,
		Actions:     m.Actions,
		States:      m.NumStates(),
		Initial:     m.Initial,
		Proper:      proper,
		Available:   product.AvailableActions(m, proper),
		Transitions: mats.Transitions,
		Rewards:     mats.Rewards,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s value iteration: %w", aut.Name(), err)
	}
	sched, err := schedule.Decode(res.Policy, m.Keys, env.States())
	if err != nil {
		return nil, 0, err
	}
	var objective float64
	if len(res.Objective) > 0 {
		objective = res.Objective[0]
	}
	log.Printf("%s agent %d task %d: %d product states, objective %.4f", aut.Name(), agent, task, m.NumStates(), objective)
	return sched, objective, nil
}

// Synthesize runs phase two: a fine policy for every assignment, in
// task order. It returns the plans and the accumulated objective per
// agent.
func (p *Planner) Synthesize(ctx context.Context, alloc *Allocation) ([]Plan, []float64, error) {
	env, err := p.buildFine()
	if err != nil {
		return nil, nil, err
	}
	costs := make([]float64, p.cfg.NumAgents())
	plans := make([]Plan, 0, len(alloc.Assignments))
	p.reporter.Stage("tasks", len(alloc.Assignments))
	for _, a := range alloc.Assignments {
		task := p.tasks[a.Task]
		if err := p.layout.Select(task.Rack, task.Feed); err != nil {
			return nil, nil, fmt.Errorf("task %d: %w", a.Task, err)
		}
		sched, obj, err := p.solveFine(ctx, env, automaton.FineReplenishment(), a.Agent, a.Task)
		if err != nil {
			return nil, nil, fmt.Errorf("task %d agent %d: %w", a.Task, a.Agent, err)
		}
		costs[a.Agent] += obj
		plans = append(plans, Plan{
			Agent:     a.Agent,
			Task:      a.Task,
			Kind:      models.ScheduleKindTask,
			Schedule:  sched,
			Objective: obj,
		})
		p.reporter.Step(fmt.Sprintf("task %d agent %d: %.2f", a.Task, a.Agent, obj))
	}
	log.Printf("Agent costs: %v", costs)
	return plans, costs, nil
}

// Regenerate synthesizes one return-to-queue policy per agent.
func (p *Planner) Regenerate(ctx context.Context) ([]Plan, error) {
	env, err := p.buildFine()
	if err != nil {
		return nil, err
	}
	na := p.cfg.NumAgents()
	plans := make([]Plan, 0, na)
	p.reporter.Stage("regeneration", na)
	for agent := 0; agent < na; agent++ {
		sched, obj, err := p.solveFine(ctx, env, automaton.Regeneration(), agent, 0)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", agent, err)
		}
		plans = append(plans, Plan{
			Agent:     agent,
			Kind:      models.ScheduleKindRegen,
			Schedule:  sched,
			Objective: obj,
		})
		p.reporter.Step(fmt.Sprintf("agent %d: %.2f", agent, obj))
	}
	return plans, nil
}
