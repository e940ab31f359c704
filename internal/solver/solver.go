// Package solver defines the contracts of the numerical oracles the
// planner consumes, and ships a baseline implementation of each.
package solver

import (
	"context"

	"github.com/fentz26/rackplan/internal/product"
	"github.com/james-bowman/sparse"
)

// Scheduler is a randomized policy over the local states of one product:
// row s is the action distribution at state s.
type Scheduler [][]float64

// Mass returns the total probability the scheduler puts on state s.
func (s Scheduler) Mass(state int) float64 {
	if state < 0 || state >= len(s) {
		return 0
	}
	var sum float64
	for _, p := range s[state] {
		sum += p
	}
	return sum
}

// Action returns the most likely action at state s, lowest index first
// on ties.
func (s Scheduler) Action(state int) int {
	best, bestP := 0, -1.0
	for a, p := range s[state] {
		if p > bestP {
			best, bestP = a, p
		}
	}
	return best
}

// Deterministic builds a scheduler putting all mass on pi[s].
func Deterministic(pi []int, actions int) Scheduler {
	s := make(Scheduler, len(pi))
	for i, a := range pi {
		row := make([]float64, actions)
		row[a] = 1
		s[i] = row
	}
	return s
}

// Zero builds a scheduler with no mass anywhere.
func Zero(states, actions int) Scheduler {
	s := make(Scheduler, states)
	for i := range s {
		s[i] = make([]float64, actions)
	}
	return s
}

// Policy assigns a scheduler to every (agent, task) pair.
type Policy map[product.Pair]Scheduler

// MORequest is the input of a multi-objective synthesis. Costs are
// rewards, so a cost ceiling is met when an agent's expected cost is at
// or above its target.
type MORequest struct {
	Chain       *product.Chain
	Model       *product.Incremental
	CostTargets []float64
	ProbTargets []float64
	Epsilon     float64
	Tuning      []float64
}

// MOResult holds the synthesized policies and the achieved point: one
// cost per agent followed by one probability per task.
type MOResult struct {
	Policies []Policy
	Achieved []float64
}

// MultiObjective synthesizes policies meeting per-agent cost ceilings
// and per-task probability floors over a chained product.
type MultiObjective interface {
	Solve(ctx context.Context, req MORequest) (*MOResult, error)
}

// EvalRequest asks for the value of one scheduler on one pair.
type EvalRequest struct {
	Chain     *product.Chain
	Epsilon   float64
	Actions   int
	Scheduler Scheduler
	Agent     int
	Task      int
}

// Evaluator reports the expected cost and success probability a
// scheduler realizes from the pair's initial state.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (cost, prob float64, err error)
}

// CostKey indexes a realized cost.
type CostKey struct {
	Agent  int
	Task   int
	Policy int
}

// ProbKey indexes a realized success probability.
type ProbKey struct {
	Task   int
	Policy int
}

// WitnessRequest is the input of witness allocation. ProbTargets and
// CostTargets are the floors and ceilings the weights must respect; a
// nil ProbTargets falls back to the achieved point.
type WitnessRequest struct {
	Costs       map[CostKey]float64
	Probs       map[ProbKey]float64
	Achieved    []float64
	ProbTargets []float64
	CostTargets []float64
	Policies    int
	Tasks       int
	Agents      int
}

// WitnessAllocator returns, per task, a weight distribution over policy
// indices. It fails with ErrInfeasible when no distribution exists.
type WitnessAllocator interface {
	Allocate(ctx context.Context, req WitnessRequest) (map[int][]float64, error)
}

// VIRequest is the input of sparse value iteration on one product.
type VIRequest struct {
	Epsilon     float64
	Actions     int
	States      int
	Initial     int
	Proper      [][]int
	Available   [][]int
	Transitions []*sparse.CSR
	Rewards     [][]float64
}

// VIResult is one optimal action per state plus the objective values.
type VIResult struct {
	Policy    []int
	Objective []float64
}

// ValueIterator solves a single-objective product.
type ValueIterator interface {
	Solve(ctx context.Context, req VIRequest) (*VIResult, error)
}
