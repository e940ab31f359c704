package planner

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrConfig       = errors.New("invalid planner config")
	ErrMissingEntry = errors.New("missing allocation entry")
	ErrNoWeight     = errors.New("task has no positive policy weight")
)

// MissingEntryError reports a lookup that found nothing in an allocation
// table or oracle output.
type MissingEntryError struct {
	Table  string
	Agent  int
	Task   int
	Policy int
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("%s has no entry for agent %d, task %d, policy %d", e.Table, e.Agent, e.Task, e.Policy)
}

func (e *MissingEntryError) Unwrap() error {
	return ErrMissingEntry
}
