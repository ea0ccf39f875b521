package entity

import "time"

// Notification is a per-recipient message, optionally tied to a process.
// Only the Read flag changes after creation.
type Notification struct {
	ID          int64            `json:"id"`
	RecipientID int64            `json:"recipient_id"`
	ProcessID   *int64           `json:"process_id,omitempty"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}
