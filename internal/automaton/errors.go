package automaton

import (
	"errors"
	"fmt"
)

// Invalid is returned by transition functions for an unknown state.
const Invalid = -1

// Sentinel errors.
var (
	ErrInvalidState = errors.New("invalid automaton state")
	ErrDefinition   = errors.New("invalid automaton definition")
)

// InvalidStateError reports a transition out of, or into, a state the
// automaton does not define.
type InvalidStateError struct {
	Automaton string
	State     int
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("automaton %s: state %d is not defined", e.Automaton, e.State)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
