package variant

import "errors"

var (
	// ErrModuleNotFound indicates no candidate file exists for a request.
	ErrModuleNotFound = errors.New("module not found")

	// ErrExcludedSubtree indicates a request resolves into a subtree that is
	// excluded for the current target.
	ErrExcludedSubtree = errors.New("module is in an excluded subtree")
)
