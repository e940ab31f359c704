package solver

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/fentz26/rackplan/internal/product"
)

// Default tuning of ScalarizedMO.
const (
	DefaultMaxPolicies = 10
	DefaultBias        = 0.1
)

// ScalarizedMO is a baseline multi-objective oracle over the incremental
// model. Every weight vector scales each agent's costs and adds a success
// bonus per task; value iteration on the scalarized model then decides
// through the switch actions which agent takes which task. The first
// vector weighs agents equally, the next favour each agent in turn by
// the bias and then by its complement.
//
// The (task, agent) choices found across all vectors are combined into
// one allocation balancing agent load under the cost ceilings. That
// allocation is the first policy and its value the achieved point; the
// distinct vertex allocations follow it. Solve fails with ErrInfeasible
// when the combined allocation misses a ceiling or a floor.
//
// Tuning[0] caps the number of policies, Tuning[1] is the bias.
type ScalarizedMO struct {
	VI   ValueIterator
	Eval Evaluator
}

// option is the local scheduler of one (agent, task) pair taken from a
// vertex allocation, with its realized value.
type option struct {
	sched Scheduler
	cost  float64
	prob  float64
}

// Solve implements MultiObjective.
func (o ScalarizedMO) Solve(ctx context.Context, req MORequest) (*MOResult, error) {
	c, g := req.Chain, req.Model
	if c == nil || g == nil {
		return nil, fmt.Errorf("%w: no chain or incremental model", ErrShapeMismatch)
	}
	if g.States != c.NumStates() {
		return nil, fmt.Errorf("%w: incremental model has %d states, chain %d", ErrShapeMismatch, g.States, c.NumStates())
	}
	if len(req.CostTargets) != c.Agents() || len(req.ProbTargets) != c.Tasks() {
		return nil, fmt.Errorf("%w: %d cost targets for %d agents, %d probability targets for %d tasks",
			ErrShapeMismatch, len(req.CostTargets), c.Agents(), len(req.ProbTargets), c.Tasks())
	}
	maxPolicies, bias := DefaultMaxPolicies, DefaultBias
	if len(req.Tuning) > 0 && req.Tuning[0] >= 1 {
		maxPolicies = int(req.Tuning[0])
	}
	if len(req.Tuning) > 1 {
		bias = req.Tuning[1]
	}
	vi, eval := o.VI, o.Eval
	if vi == nil {
		vi = SparseVI{}
	}
	if eval == nil {
		eval = ChainEvaluator{}
	}

	bonus := successBonus(g)
	options := make(map[product.Pair]option)
	var vertices [][]int
	for _, w := range weightVectors(c.Agents(), bias) {
		res, err := vi.Solve(ctx, VIRequest{
			Epsilon:     req.Epsilon,
			Actions:     g.Actions,
			States:      g.States,
			Initial:     g.Initial,
			Proper:      g.Proper,
			Available:   g.Available,
			Transitions: g.Transitions,
			Rewards:     scalarize(g, w, bonus),
		})
		if err != nil {
			return nil, fmt.Errorf("scalarized solve %v: %w", w, err)
		}
		asg, ok := allocation(c, g, res.Policy)
		if !ok || slices.ContainsFunc(vertices, func(x []int) bool { return slices.Equal(x, asg) }) {
			continue
		}
		vertices = append(vertices, asg)
		for t, a := range asg {
			p := product.Pair{Agent: a, Task: t}
			if _, seen := options[p]; seen {
				continue
			}
			sched, err := localScheduler(c, g, res.Policy, p)
			if err != nil {
				return nil, err
			}
			cost, prob, err := eval.Evaluate(ctx, EvalRequest{
				Chain: c, Epsilon: req.Epsilon, Actions: g.Local,
				Scheduler: sched, Agent: a, Task: t,
			})
			if err != nil {
				return nil, fmt.Errorf("evaluate %s: %w", p, err)
			}
			options[p] = option{sched: sched, cost: cost, prob: prob}
		}
	}
	if len(vertices) == 0 {
		return nil, fmt.Errorf("%w: no weight vector allocates every task", ErrInfeasible)
	}

	combined := assign(c, options, req.CostTargets, req.ProbTargets)
	point := achieved(c, options, combined)
	if err := meets(point, req); err != nil {
		return nil, err
	}

	out := &MOResult{Achieved: point}
	for _, asg := range append([][]int{combined}, vertices...) {
		if len(out.Policies) >= maxPolicies {
			break
		}
		if len(out.Policies) > 0 && slices.Equal(asg, combined) {
			continue
		}
		out.Policies = append(out.Policies, policyOf(c, options, asg))
	}
	return out, nil
}

// weightVectors lists the unbiased vector, then one per agent favoured
// by 1-bias, then one per agent favoured by bias.
func weightVectors(agents int, bias float64) [][]float64 {
	vec := func(pref int, w float64) []float64 {
		v := make([]float64, agents)
		for a := range v {
			v[a] = 1
		}
		if pref >= 0 {
			v[pref] = w
		}
		return v
	}
	out := [][]float64{vec(-1, 1)}
	for _, w := range []float64{1 - bias, bias} {
		if w <= 0 || w == 1 {
			continue
		}
		for a := 0; a < agents; a++ {
			out = append(out, vec(a, w))
		}
	}
	return out
}

// successBonus exceeds the cost of any simple path through g, so every
// scalarized optimum completes every task it can.
func successBonus(g *product.Incremental) float64 {
	var total float64
	for s := 0; s < g.States; s++ {
		var worst float64
		for a := 0; a < g.Local; a++ {
			worst = math.Max(worst, math.Abs(g.Rewards[a][s]))
		}
		total += worst
	}
	return total + 1
}

func scalarize(g *product.Incremental, w []float64, bonus float64) [][]float64 {
	out := make([][]float64, g.Actions)
	for a := range out {
		r := make([]float64, g.States)
		for s := range r {
			r[s] = w[g.Owner[s].Agent] * g.Rewards[a][s]
			if a < g.Local && g.Accepting[s] {
				r[s] += bonus
			}
		}
		out[a] = r
	}
	return out
}

// allocation follows pi from the global initial state and records, per
// task, the agent that acts on it. ok is false when the walk cycles or a
// task is never taken.
func allocation(c *product.Chain, g *product.Incremental, pi []int) ([]int, bool) {
	asg := make([]int, c.Tasks())
	for t := range asg {
		asg[t] = -1
	}
	seen := make([]bool, g.States)
	for s := g.Initial; !g.Goal[s]; {
		if seen[s] {
			return nil, false
		}
		seen[s] = true
		a := pi[s]
		if p := g.Owner[s]; a < g.Local && asg[p.Task] < 0 {
			asg[p.Task] = p.Agent
		}
		s = g.Next[s][a]
	}
	if slices.Contains(asg, -1) {
		return nil, false
	}
	return asg, true
}

// localScheduler restricts a global policy to the local states of p.
// Switch choices, which only occur where every local action self-loops,
// become action 0.
func localScheduler(c *product.Chain, g *product.Incremental, pi []int, p product.Pair) (Scheduler, error) {
	m, err := c.Model(p.Agent, p.Task)
	if err != nil {
		return nil, err
	}
	off := c.Offset(p.Agent, p.Task)
	local := make([]int, m.NumStates())
	for ls := range local {
		if a := pi[off+ls]; a < g.Local {
			local[ls] = a
		}
	}
	return Deterministic(local, m.Actions), nil
}

// assign gives each task, in order, to the option with the lowest
// resulting agent load, preferring options that meet the task's floor
// and keep the agent within its ceiling.
func assign(c *product.Chain, options map[product.Pair]option, ceilings, floors []float64) []int {
	load := make([]float64, c.Agents())
	asg := make([]int, c.Tasks())
	for t := 0; t < c.Tasks(); t++ {
		best, bestScore, bestRank := -1, math.Inf(1), 3
		for a := 0; a < c.Agents(); a++ {
			o, ok := options[product.Pair{Agent: a, Task: t}]
			if !ok {
				continue
			}
			rank := 0
			if o.prob+targetTolerance < floors[t] {
				rank += 2
			}
			if load[a]+o.cost+targetTolerance < ceilings[a] {
				rank++
			}
			score := math.Abs(load[a] + o.cost)
			if rank < bestRank || (rank == bestRank && score < bestScore) {
				best, bestScore, bestRank = a, score, rank
			}
		}
		asg[t] = best
		if best >= 0 {
			load[best] += options[product.Pair{Agent: best, Task: t}].cost
		}
	}
	return asg
}

// achieved is the value of an allocation: one cost per agent, then one
// probability per task.
func achieved(c *product.Chain, options map[product.Pair]option, asg []int) []float64 {
	point := make([]float64, c.Agents()+c.Tasks())
	for t, a := range asg {
		if a < 0 {
			continue
		}
		o := options[product.Pair{Agent: a, Task: t}]
		point[a] += o.cost
		point[c.Agents()+t] = o.prob
	}
	return point
}

func meets(point []float64, req MORequest) error {
	agents := len(req.CostTargets)
	for a, ceiling := range req.CostTargets {
		if point[a]+targetTolerance < ceiling {
			return fmt.Errorf("%w: agent %d expected cost %.4f is below the ceiling %.4f", ErrInfeasible, a, point[a], ceiling)
		}
	}
	for t, floor := range req.ProbTargets {
		if p := point[agents+t]; p+targetTolerance < floor {
			return fmt.Errorf("%w: task %d success probability %.4f is below the floor %.4f", ErrInfeasible, t, p, floor)
		}
	}
	return nil
}

// policyOf gives every owned pair its option scheduler and every other
// pair a scheduler with no mass.
func policyOf(c *product.Chain, options map[product.Pair]option, asg []int) Policy {
	pol := make(Policy, c.Agents()*c.Tasks())
	for _, p := range c.Pairs() {
		if asg[p.Task] == p.Agent {
			pol[p] = options[p].sched
			continue
		}
		m, _ := c.Model(p.Agent, p.Task)
		pol[p] = Zero(m.NumStates(), m.Actions)
	}
	return pol
}
