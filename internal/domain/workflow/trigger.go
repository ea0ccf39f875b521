package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// Process lifecycle triggers
const (
	TriggerSubmit         Trigger = "SUBMIT"
	TriggerAdvance        Trigger = "ADVANCE"
	TriggerComplete       Trigger = "COMPLETE"
	TriggerReject         Trigger = "REJECT"
	TriggerRequestChanges Trigger = "REQUEST_CHANGES"
)

// Template lifecycle triggers
const (
	TriggerActivate Trigger = "ACTIVATE"
	TriggerArchive  Trigger = "ARCHIVE"
	TriggerRevise   Trigger = "REVISE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
