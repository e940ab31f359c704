package solver

import "errors"

// Sentinel errors.
var (
	ErrInfeasible    = errors.New("witness allocation is infeasible")
	ErrNotConverged  = errors.New("value iteration did not converge")
	ErrShapeMismatch = errors.New("solver input dimensions do not match")
)
