package warehouse

import (
	"errors"
	"fmt"
)

// Sentinel errors for layout and model construction.
var (
	ErrLayoutTooNarrow = errors.New("warehouse is not wide enough to fit any racks")
	ErrMissingRotation = errors.New("direction has no rotation mapping")
	ErrUnknownAction   = errors.New("action not found")
	ErrUnknownState    = errors.New("state not in state space")
	ErrSelector        = errors.New("task selector out of range")
)

// MissingStateError reports a successor that is absent from the
// enumerated state space.
type MissingStateError struct {
	From   string
	Action int
	State  string
}

func (e *MissingStateError) Error() string {
	return fmt.Sprintf("successor %s of %s under action %d is not in the state space", e.State, e.From, e.Action)
}

func (e *MissingStateError) Unwrap() error {
	return ErrUnknownState
}
