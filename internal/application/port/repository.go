package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// ErrStepNotPending is returned by ProcessRepository.UpdateStep when the step
// was decided by someone else since it was read.
var ErrStepNotPending = errors.New("step is no longer pending")

// TemplateRepository defines persistence operations for WorkflowTemplate.
// Getters return nil, nil when the template does not exist.
type TemplateRepository interface {
	// Create inserts a template together with the steps and form schema of its version
	Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error

	// GetByID retrieves a template with the steps and schema of its current version
	GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)

	// List retrieves templates with their current steps; an empty status lists all
	List(ctx context.Context, status entity.TemplateStatus) ([]*entity.WorkflowTemplate, error)

	// SaveVersion stores tmpl.Steps and tmpl.FormSchema as version tmpl.Version
	// and makes it the current version. Earlier versions are kept.
	SaveVersion(ctx context.Context, tmpl *entity.WorkflowTemplate) error

	// UpdateStatus changes the lifecycle status of a template
	UpdateStatus(ctx context.Context, id int64, status entity.TemplateStatus, updatedAt time.Time) error

	// Delete removes a template and all of its versions
	Delete(ctx context.Context, id int64) error
}

// ProcessFilter narrows a process listing; zero values do not filter
type ProcessFilter struct {
	CreatorID  int64
	TemplateID int64
	Status     entity.ProcessStatus
	Limit      int
	Offset     int
}

// ProcessRepository defines persistence operations for ProcessInstance and
// its step instances. Getters return nil, nil when the record does not exist.
type ProcessRepository interface {
	// CreateWithSteps inserts a process and all of its step instances, assigning ids
	CreateWithSteps(ctx context.Context, proc *entity.ProcessInstance) error

	// GetByID retrieves a process with its step instances ordered by step order
	GetByID(ctx context.Context, id int64) (*entity.ProcessInstance, error)

	// GetStepWithContext retrieves a step instance with its process and template
	GetStepWithContext(ctx context.Context, stepID int64) (*entity.StepContext, error)

	// UpdateStep records the decision on a step that is still PENDING in storage.
	// Returns ErrStepNotPending when it no longer is.
	UpdateStep(ctx context.Context, step *entity.ProcessStepInstance) error

	// UpdateStatus changes the aggregate status of a process
	UpdateStatus(ctx context.Context, id int64, status entity.ProcessStatus, updatedAt time.Time) error

	// List retrieves processes without their step instances, newest first
	List(ctx context.Context, filter ProcessFilter) ([]*entity.ProcessInstance, error)

	// CountByTemplate returns how many processes reference a template
	CountByTemplate(ctx context.Context, templateID int64) (int, error)
}

// AuditRepository defines persistence operations for AuditLogEntry (append-only)
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditLogEntry) error
	ListByProcess(ctx context.Context, processID int64) ([]*entity.AuditLogEntry, error)
	List(ctx context.Context, limit, offset int) ([]*entity.AuditLogEntry, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// UserRepository defines lookup operations for the user directory
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListByRoles(ctx context.Context, roles ...entity.Role) ([]*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
