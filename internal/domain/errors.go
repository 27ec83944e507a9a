package domain

import "errors"

// Sentinel errors forming the engine's error taxonomy. Callers match with
// errors.Is; messages carry the violated invariant.
var (
	// ErrValidation marks bad configuration or content, raised before or at
	// lock time. Never auto-retried.
	ErrValidation = errors.New("validation error")

	// ErrState marks an illegal lifecycle transition. Never auto-retried.
	ErrState = errors.New("state error")

	// ErrNotFound marks a missing batch, item, or unit.
	ErrNotFound = errors.New("not found")

	// ErrGeneration marks a collaborator call failure inside one item's
	// pipeline. Isolated at the scheduler boundary, recorded on the item.
	ErrGeneration = errors.New("generation failure")

	// ErrTimeout marks a unit execution that exceeded its budget.
	ErrTimeout = errors.New("timeout")

	// ErrPersistence marks an unreachable store. Fatal to the enclosing
	// operation, never swallowed.
	ErrPersistence = errors.New("persistence error")
)
