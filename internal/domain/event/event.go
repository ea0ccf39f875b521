// Package event describes the side effects a committed state change asks for.
//
// Effects are produced by the engine as plain values and executed after the
// owning transaction commits. Effects from one operation share a
// correlation id so their outcomes can be traced together in logs.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys
const (
	KeyAction           = "action"
	KeyActorID          = "actor_id"
	KeyPreviousValue    = "previous_value"
	KeyNewValue         = "new_value"
	KeyNote             = "note"
	KeyRecipientID      = "recipient_id"
	KeyMessage          = "message"
	KeyNotificationType = "notification_type"
)

// Event is one effect to attempt after commit
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ProcessID     int64                  `json:"process_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewCorrelationID returns a fresh id for grouping the effects of one operation
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, processID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ProcessID:     processID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// NewAuditRecord asks for an audit log entry. processID may be zero for
// actions that do not concern a process.
func NewAuditRecord(correlationID string, processID int64, action string, actorID int64, previous, next interface{}, note string) *Event {
	payload := map[string]interface{}{
		KeyAction:  action,
		KeyActorID: actorID,
	}
	if previous != nil {
		payload[KeyPreviousValue] = previous
	}
	if next != nil {
		payload[KeyNewValue] = next
	}
	if note != "" {
		payload[KeyNote] = note
	}
	return NewEventWithCorrelation(TypeAuditRecord, processID, payload, correlationID)
}

// NewUserNotification asks for a message to a single user
func NewUserNotification(correlationID string, processID, recipientID int64, message, notificationType string) *Event {
	return NewEventWithCorrelation(TypeNotifyUser, processID, map[string]interface{}{
		KeyRecipientID:      recipientID,
		KeyMessage:          message,
		KeyNotificationType: notificationType,
	}, correlationID)
}

// NewApproverPoolNotification asks for a message to every approver
func NewApproverPoolNotification(correlationID string, processID int64, message string) *Event {
	return NewEventWithCorrelation(TypeNotifyApproverPool, processID, map[string]interface{}{
		KeyMessage: message,
	}, correlationID)
}

// GetPayload retrieves a raw value from the payload
func (e *Event) GetPayload(key string) interface{} {
	return e.Payload[key]
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}
