package solver

import (
	"context"
	"fmt"
)

// ChainEvaluator follows the most likely action of a scheduler from the
// pair's initial state until a terminal state or a revisit. The product
// is deterministic, so the success probability is 0 or 1.
type ChainEvaluator struct{}

// Evaluate returns the accumulated reward and whether an accepting state
// was visited.
func (ChainEvaluator) Evaluate(ctx context.Context, req EvalRequest) (float64, float64, error) {
	if req.Chain == nil {
		return 0, 0, fmt.Errorf("%w: no chain", ErrShapeMismatch)
	}
	m, err := req.Chain.Model(req.Agent, req.Task)
	if err != nil {
		return 0, 0, err
	}
	if len(req.Scheduler) != m.NumStates() {
		return 0, 0, fmt.Errorf("%w: scheduler covers %d of %d states",
			ErrShapeMismatch, len(req.Scheduler), m.NumStates())
	}
	if req.Actions != 0 && req.Actions != m.Actions {
		return 0, 0, fmt.Errorf("%w: %d actions, model has %d", ErrShapeMismatch, req.Actions, m.Actions)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	var cost, prob float64
	seen := make(map[int]bool)
	for s := m.Initial; !seen[s]; {
		seen[s] = true
		if m.Accepting[s] {
			prob = 1
		}
		if m.Terminal[s] {
			break
		}
		a := req.Scheduler.Action(s)
		cost += m.Reward[s][a]
		s = m.Next[s][a]
	}
	return cost, prob, nil
}
