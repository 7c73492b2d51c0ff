package workflow

import "context"

// Transition records a single fired trigger
type Transition struct {
	From    State
	To      State
	Trigger Trigger
}

// StateMachine tracks the current state of one match and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	// and at least one of its guards passes
	CanFire(ctx context.Context, trigger Trigger) bool

	// Fire executes the trigger, moving to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) (Transition, error)

	// PermittedTriggers returns the triggers configured for the current state
	PermittedTriggers() []Trigger
}
