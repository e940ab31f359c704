package solver

import (
	"context"
	"fmt"
	"math"
)

// targetTolerance absorbs floating point noise in cost ceilings and
// probability floors.
const targetTolerance = 1e-9

// GreedyWitness puts all weight of each task on its cheapest policy whose
// success probability meets the task's floor. The floors are the
// requested probability targets, or the achieved probabilities when no
// targets are given. When the per task picks push an agent past its cost
// ceiling, every task falls back to the cheapest single policy meeting
// all floors and ceilings.
type GreedyWitness struct{}

// realized is the cheapest cost of one (task, policy) and the agent that
// ran it.
type realized struct {
	agent int
	cost  float64
}

// Allocate implements WitnessAllocator.
func (GreedyWitness) Allocate(ctx context.Context, req WitnessRequest) (map[int][]float64, error) {
	if len(req.Achieved) != req.Agents+req.Tasks {
		return nil, fmt.Errorf("%w: achieved point has %d entries, want %d",
			ErrShapeMismatch, len(req.Achieved), req.Agents+req.Tasks)
	}
	if req.ProbTargets != nil && len(req.ProbTargets) != req.Tasks {
		return nil, fmt.Errorf("%w: %d probability targets for %d tasks", ErrShapeMismatch, len(req.ProbTargets), req.Tasks)
	}
	if req.CostTargets != nil && len(req.CostTargets) != req.Agents {
		return nil, fmt.Errorf("%w: %d cost targets for %d agents", ErrShapeMismatch, len(req.CostTargets), req.Agents)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	costs := make(map[ProbKey]realized)
	for k, c := range req.Costs {
		pk := ProbKey{Task: k.Task, Policy: k.Policy}
		if old, ok := costs[pk]; !ok || math.Abs(c) < math.Abs(old.cost) {
			costs[pk] = realized{agent: k.Agent, cost: c}
		}
	}
	floor := func(t int) float64 {
		if req.ProbTargets != nil {
			return req.ProbTargets[t]
		}
		return req.Achieved[req.Agents+t]
	}
	usable := func(t, k int) (realized, bool) {
		pk := ProbKey{Task: t, Policy: k}
		p, ok := req.Probs[pk]
		if !ok || p+targetTolerance < floor(t) {
			return realized{}, false
		}
		r, ok := costs[pk]
		return r, ok
	}

	picks := make([]int, req.Tasks)
	load := make([]float64, req.Agents)
	for t := 0; t < req.Tasks; t++ {
		best, bestCost := -1, math.Inf(1)
		for k := 0; k < req.Policies; k++ {
			if r, ok := usable(t, k); ok && math.Abs(r.cost) < bestCost {
				best, bestCost = k, math.Abs(r.cost)
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("%w: task %d has no policy reaching probability %.4f", ErrInfeasible, t, floor(t))
		}
		picks[t] = best
		load[costs[ProbKey{Task: t, Policy: best}].agent] += -bestCost
	}

	if !withinCeilings(load, req.CostTargets) {
		k, err := commonPolicy(req, usable)
		if err != nil {
			return nil, err
		}
		for t := range picks {
			picks[t] = k
		}
	}

	weights := make(map[int][]float64, req.Tasks)
	for t, k := range picks {
		w := make([]float64, req.Policies)
		w[k] = 1
		weights[t] = w
	}
	return weights, nil
}

// commonPolicy returns the cheapest policy that meets every floor and
// keeps every agent within its ceiling on its own.
func commonPolicy(req WitnessRequest, usable func(t, k int) (realized, bool)) (int, error) {
	best, bestCost := -1, math.Inf(1)
	for k := 0; k < req.Policies; k++ {
		load := make([]float64, req.Agents)
		total, ok := 0.0, true
		for t := 0; t < req.Tasks && ok; t++ {
			var r realized
			if r, ok = usable(t, k); ok {
				load[r.agent] += r.cost
				total += math.Abs(r.cost)
			}
		}
		if ok && withinCeilings(load, req.CostTargets) && total < bestCost {
			best, bestCost = k, total
		}
	}
	if best < 0 {
		return -1, fmt.Errorf("%w: no policy keeps every agent within its cost ceiling", ErrInfeasible)
	}
	return best, nil
}

func withinCeilings(load, ceilings []float64) bool {
	for a, c := range ceilings {
		if load[a]+targetTolerance < c {
			return false
		}
	}
	return true
}
