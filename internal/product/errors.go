package product

import (
	"errors"
	"fmt"
)

// ErrUnknownPair is returned when a chain has no model for a pair.
var ErrUnknownPair = errors.New("no product model for agent/task pair")

// BuildError reports an automaton failure while expanding a product state.
type BuildError struct {
	Agent int
	Task  int
	State Key
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("product %d x %d: state (%d, %d): %v", e.Agent, e.Task, e.State.S, e.State.Q, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
