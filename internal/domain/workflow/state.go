package workflow

// State is a position in the invoice match lifecycle
type State string

const (
	StatePending  State = "pending"
	StateMatched  State = "matched"
	StateMismatch State = "mismatch"
	StateFlagged  State = "flagged"
	StateApproved State = "approved"
	StatePaid     State = "paid"
)

var validStates = map[State]bool{
	StatePending:  true,
	StateMatched:  true,
	StateMismatch: true,
	StateFlagged:  true,
	StateApproved: true,
	StatePaid:     true,
}

var terminalStates = map[State]bool{
	StatePaid: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
