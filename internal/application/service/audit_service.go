package service

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// AuditService writes and reads the audit log
type AuditService interface {
	// Record is the effect handler for audit record events
	Record(ctx context.Context, evt *event.Event) error
	ListByProcess(ctx context.Context, actor entity.Actor, processID int64) ([]*entity.AuditLogEntry, error)
	List(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.AuditLogEntry, error)
}

type auditServiceImpl struct {
	auditRepo   port.AuditRepository
	processRepo port.ProcessRepository
	logger      Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(
	auditRepo port.AuditRepository,
	processRepo port.ProcessRepository,
	logger Logger,
) AuditService {
	return &auditServiceImpl{
		auditRepo:   auditRepo,
		processRepo: processRepo,
		logger:      logger,
	}
}

// Record appends an audit entry built from an audit record effect
func (s *auditServiceImpl) Record(ctx context.Context, evt *event.Event) error {
	if evt.Type != event.TypeAuditRecord {
		return fmt.Errorf("unexpected event type %s", evt.Type)
	}

	entry := &entity.AuditLogEntry{
		Action:        evt.GetPayloadString(event.KeyAction),
		ActorID:       evt.GetPayloadInt(event.KeyActorID),
		ProcessID:     processIDPtr(evt.ProcessID),
		PreviousValue: evt.GetPayload(event.KeyPreviousValue),
		NewValue:      evt.GetPayload(event.KeyNewValue),
		Note:          evt.GetPayloadString(event.KeyNote),
		CreatedAt:     evt.Timestamp,
	}
	if entry.Action == "" {
		return fmt.Errorf("audit event %s has no action", evt.ID)
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}

	s.logger.Info("Audit entry recorded",
		"audit_id", entry.ID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"process_id", evt.ProcessID,
		"correlation_id", evt.CorrelationID,
	)
	return nil
}

// ListByProcess returns the audit trail of a process, oldest first.
// Visible to the process creator and the approver pool.
func (s *auditServiceImpl) ListByProcess(ctx context.Context, actor entity.Actor, processID int64) ([]*entity.AuditLogEntry, error) {
	proc, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return nil, fmt.Errorf("get process: %w", err)
	}
	if proc == nil {
		return nil, apperror.NotFound("process %d not found", processID)
	}
	if proc.CreatorID != actor.ID && !actor.Role.IsElevated() {
		return nil, apperror.Forbidden("user %d may not view the audit trail of process %d", actor.ID, processID)
	}

	entries, err := s.auditRepo.ListByProcess(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to list audit entries", "error", err, "process_id", processID)
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// List returns the whole audit log, newest first. Administrators only.
func (s *auditServiceImpl) List(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.AuditLogEntry, error) {
	if actor.Role != entity.RoleAdmin {
		return nil, apperror.Forbidden("user %d may not view the audit log", actor.ID)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.auditRepo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list audit log", "error", err)
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}
