package event

// Type identifies the kind of post-commit effect
type Type string

const (
	TypeAuditRecord        Type = "audit.record"
	TypeNotifyUser         Type = "notify.user"
	TypeNotifyApproverPool Type = "notify.approver_pool"
)

// Types lists every effect type the engine emits
func Types() []Type {
	return []Type{TypeAuditRecord, TypeNotifyUser, TypeNotifyApproverPool}
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeAuditRecord,
		TypeNotifyUser,
		TypeNotifyApproverPool:
		return true
	default:
		return false
	}
}
