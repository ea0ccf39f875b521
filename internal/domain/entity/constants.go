package entity

// TemplateStatus is the lifecycle status of a WorkflowTemplate
type TemplateStatus string

const (
	TemplateStatusDraft    TemplateStatus = "DRAFT"
	TemplateStatusActive   TemplateStatus = "ACTIVE"
	TemplateStatusArchived TemplateStatus = "ARCHIVED"
)

// IsValid returns true if the status is a known template status
func (s TemplateStatus) IsValid() bool {
	switch s {
	case TemplateStatusDraft, TemplateStatusActive, TemplateStatusArchived:
		return true
	default:
		return false
	}
}

// StepType is the kind of a WorkflowStep
type StepType string

const (
	StepTypeForm         StepType = "FORM"
	StepTypeApproval     StepType = "APPROVAL"
	StepTypeNotification StepType = "NOTIFICATION"
)

// IsValid returns true if the type is a known step type
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeForm, StepTypeApproval, StepTypeNotification:
		return true
	default:
		return false
	}
}

// ProcessStatus is the aggregate status of a ProcessInstance
type ProcessStatus string

const (
	ProcessStatusPending          ProcessStatus = "PENDING"
	ProcessStatusInProgress       ProcessStatus = "IN_PROGRESS"
	ProcessStatusCompleted        ProcessStatus = "COMPLETED"
	ProcessStatusRejected         ProcessStatus = "REJECTED"
	ProcessStatusChangesRequested ProcessStatus = "CHANGES_REQUESTED"
)

// StepStatus is the status of a ProcessStepInstance
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusRejected  StepStatus = "REJECTED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// NotificationType classifies a Notification
type NotificationType string

const (
	NotificationTypeInfo           NotificationType = "INFO"
	NotificationTypeActionRequired NotificationType = "ACTION_REQUIRED"
	NotificationTypeUpdate         NotificationType = "UPDATE"
)

// Audit action tags
const (
	AuditActionProcessCreated   = "PROCESS_CREATED"
	AuditActionStepCompleted    = "STEP_COMPLETED"
	AuditActionStepRejected     = "STEP_REJECTED"
	AuditActionChangesRequested = "CHANGES_REQUESTED"
	AuditActionTemplateCreated  = "TEMPLATE_CREATED"
	AuditActionTemplateUpdated  = "TEMPLATE_UPDATED"
	AuditActionTemplateStatus   = "TEMPLATE_STATUS_CHANGED"
	AuditActionTemplateDeleted  = "TEMPLATE_DELETED"
)
