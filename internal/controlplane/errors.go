package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrNoRecord   = errors.New("schedule has no record for state")
)
