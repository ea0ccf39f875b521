package workflow

// State is a lifecycle state tracked by a state machine
type State string

// Process lifecycle states
const (
	StatePending          State = "PENDING"
	StateInProgress       State = "IN_PROGRESS"
	StateCompleted        State = "COMPLETED"
	StateRejected         State = "REJECTED"
	StateChangesRequested State = "CHANGES_REQUESTED"
)

// Template lifecycle states
const (
	StateDraft    State = "DRAFT"
	StateActive   State = "ACTIVE"
	StateArchived State = "ARCHIVED"
)

var validStates = map[State]bool{
	StatePending:          true,
	StateInProgress:       true,
	StateCompleted:        true,
	StateRejected:         true,
	StateChangesRequested: true,
	StateDraft:            true,
	StateActive:           true,
	StateArchived:         true,
}

var terminalStates = map[State]bool{
	StateRejected:  true,
	StateCompleted: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
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
