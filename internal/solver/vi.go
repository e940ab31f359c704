package solver

import (
	"context"
	"fmt"
	"math"
)

// DefaultMaxIterations bounds SparseVI when MaxIterations is unset.
const DefaultMaxIterations = 1_000_000

// SparseVI is a Bellman value iteration over per action CSR matrices.
// Only states with proper actions are updated, and only over their
// available actions.
type SparseVI struct {
	MaxIterations int
}

// Solve runs value iteration until the sup-norm change drops below the
// request epsilon.
func (v SparseVI) Solve(ctx context.Context, req VIRequest) (*VIResult, error) {
	if err := checkVI(req); err != nil {
		return nil, err
	}
	limit := v.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	n := req.States
	values := make([]float64, n)
	next := make([]float64, n)
	pi := make([]int, n)
	for s := 0; s < n; s++ {
		pi[s] = req.Available[s][0]
	}
	// expected successor value per action
	succ := make([][]float64, req.Actions)
	for a := range succ {
		succ[a] = make([]float64, n)
	}

	for iter := 0; ; iter++ {
		if iter >= limit {
			return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, limit)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for a, m := range req.Transitions {
			clear(succ[a])
			m.MulVecTo(succ[a], false, values)
		}
		var delta float64
		for s := 0; s < n; s++ {
			if len(req.Proper[s]) == 0 {
				next[s] = values[s]
				continue
			}
			best, bestA := math.Inf(-1), req.Available[s][0]
			for _, a := range req.Available[s] {
				q := req.Rewards[a][s] + succ[a][s]
				if q > best {
					best, bestA = q, a
				}
			}
			next[s] = best
			pi[s] = bestA
			delta = math.Max(delta, math.Abs(best-values[s]))
		}
		values, next = next, values
		if delta < req.Epsilon {
			break
		}
	}
	return &VIResult{Policy: pi, Objective: []float64{values[req.Initial]}}, nil
}

func checkVI(req VIRequest) error {
	switch {
	case req.States <= 0:
		return fmt.Errorf("%w: no states", ErrShapeMismatch)
	case req.Initial < 0 || req.Initial >= req.States:
		return fmt.Errorf("%w: initial state %d of %d", ErrShapeMismatch, req.Initial, req.States)
	case len(req.Transitions) != req.Actions || len(req.Rewards) != req.Actions:
		return fmt.Errorf("%w: %d matrices, %d reward vectors for %d actions",
			ErrShapeMismatch, len(req.Transitions), len(req.Rewards), req.Actions)
	case len(req.Proper) != req.States || len(req.Available) != req.States:
		return fmt.Errorf("%w: action sets for %d states", ErrShapeMismatch, req.States)
	}
	for a := 0; a < req.Actions; a++ {
		if req.Transitions[a] == nil {
			return fmt.Errorf("%w: action %d has no matrix", ErrShapeMismatch, a)
		}
		r, c := req.Transitions[a].Dims()
		if r != req.States || c != req.States || len(req.Rewards[a]) != req.States {
			return fmt.Errorf("%w: action %d", ErrShapeMismatch, a)
		}
	}
	for s, avail := range req.Available {
		if len(avail) == 0 {
			return fmt.Errorf("%w: state %d has no available actions", ErrShapeMismatch, s)
		}
	}
	return nil
}
