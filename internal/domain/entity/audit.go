package entity

import "time"

// AuditLogEntry is an immutable, append-only record of a significant transition
type AuditLogEntry struct {
	ID            int64       `json:"id"`
	Action        string      `json:"action"`
	ActorID       int64       `json:"actor_id"`
	ProcessID     *int64      `json:"process_id,omitempty"`
	PreviousValue interface{} `json:"previous_value,omitempty"`
	NewValue      interface{} `json:"new_value,omitempty"`
	Note          string      `json:"note,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
