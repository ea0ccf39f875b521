package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/form"
	"github.com/garyjia/approval-engine/pkg/utils"
)

// TemplateService manages workflow templates and their lifecycle
type TemplateService interface {
	CreateTemplate(ctx context.Context, actor entity.Actor, def entity.TemplateDefinition) (*entity.WorkflowTemplate, error)
	ReplaceTemplateDefinition(ctx context.Context, actor entity.Actor, id int64, def entity.TemplateDefinition) (*entity.WorkflowTemplate, error)
	SetTemplateStatus(ctx context.Context, actor entity.Actor, id int64, status entity.TemplateStatus) (*entity.WorkflowTemplate, error)
	DeleteTemplate(ctx context.Context, actor entity.Actor, id int64) error
	GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error)
	ListTemplates(ctx context.Context, status entity.TemplateStatus) ([]*entity.WorkflowTemplate, error)
}

type templateServiceImpl struct {
	templateRepo port.TemplateRepository
	processRepo  port.ProcessRepository
	txManager    port.TransactionManager
	engine       workflow.WorkflowEngine
	effects      EffectExecutor
	logger       Logger
	now          func() time.Time
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(
	templateRepo port.TemplateRepository,
	processRepo port.ProcessRepository,
	txManager port.TransactionManager,
	engine workflow.WorkflowEngine,
	effects EffectExecutor,
	logger Logger,
) TemplateService {
	return &templateServiceImpl{
		templateRepo: templateRepo,
		processRepo:  processRepo,
		txManager:    txManager,
		engine:       engine,
		effects:      effects,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateTemplate creates a DRAFT template at version 1. Only administrators author templates.
func (s *templateServiceImpl) CreateTemplate(ctx context.Context, actor entity.Actor, def entity.TemplateDefinition) (*entity.WorkflowTemplate, error) {
	if actor.Role != entity.RoleAdmin {
		return nil, apperror.Forbidden("user %d may not create templates", actor.ID)
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	now := s.now()
	tmpl := &entity.WorkflowTemplate{
		Name:        def.Name,
		Description: def.Description,
		Status:      entity.TemplateStatusDraft,
		OwnerID:     actor.ID,
		Version:     1,
		Steps:       buildSteps(def.Steps, 1),
		FormSchema:  def.FormSchema,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.templateRepo.Create(txCtx, tmpl)
	})
	if err != nil {
		s.logger.Error("Failed to create template", "error", err, "name", def.Name)
		return nil, fmt.Errorf("create template: %w", err)
	}

	s.effects.Execute(ctx, []*event.Event{
		event.NewAuditRecord(event.NewCorrelationID(), 0, entity.AuditActionTemplateCreated, actor.ID, nil, templateSnapshot(tmpl), ""),
	})

	s.logger.Info("Template created", "template_id", tmpl.ID, "owner_id", actor.ID, "steps", len(tmpl.Steps))
	return tmpl, nil
}

// ReplaceTemplateDefinition replaces the steps, schema and descriptive fields of
// a DRAFT or ARCHIVED template by storing them as a new version.
func (s *templateServiceImpl) ReplaceTemplateDefinition(ctx context.Context, actor entity.Actor, id int64, def entity.TemplateDefinition) (*entity.WorkflowTemplate, error) {
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	var (
		tmpl     *entity.WorkflowTemplate
		previous map[string]interface{}
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		tmpl, err = s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tmpl == nil {
			return apperror.NotFound("template %d not found", id)
		}
		if !workflow.CanManageTemplate(actor, tmpl) {
			return apperror.Forbidden("user %d may not edit template %d", actor.ID, id)
		}
		if tmpl.Status == entity.TemplateStatusActive {
			return apperror.Validation("template %d is ACTIVE; move it to DRAFT or ARCHIVED before editing", id)
		}

		previous = templateSnapshot(tmpl)

		tmpl.Name = def.Name
		tmpl.Description = def.Description
		tmpl.Version++
		tmpl.Steps = buildSteps(def.Steps, tmpl.Version)
		tmpl.FormSchema = def.FormSchema
		tmpl.UpdatedAt = s.now()

		if err := s.templateRepo.SaveVersion(txCtx, tmpl); err != nil {
			return fmt.Errorf("save template version: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Failed to replace template definition", err, "template_id", id, "actor_id", actor.ID)
		return nil, err
	}

	s.effects.Execute(ctx, []*event.Event{
		event.NewAuditRecord(event.NewCorrelationID(), 0, entity.AuditActionTemplateUpdated, actor.ID, previous, templateSnapshot(tmpl), ""),
	})

	s.logger.Info("Template definition replaced", "template_id", id, "version", tmpl.Version)
	return tmpl, nil
}

// SetTemplateStatus moves a template through its lifecycle
func (s *templateServiceImpl) SetTemplateStatus(ctx context.Context, actor entity.Actor, id int64, status entity.TemplateStatus) (*entity.WorkflowTemplate, error) {
	var change *workflow.TemplateStatusChange

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tmpl, err := s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tmpl == nil {
			return apperror.NotFound("template %d not found", id)
		}

		change, err = s.engine.PlanTemplateStatus(txCtx, workflow.TemplateStatusInput{
			Template: tmpl,
			Status:   status,
			Actor:    actor,
		})
		if err != nil {
			return err
		}
		if !change.Changed {
			return nil
		}

		if err := s.templateRepo.UpdateStatus(txCtx, id, change.NewStatus, tmpl.UpdatedAt); err != nil {
			return fmt.Errorf("update template status: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Failed to set template status", err, "template_id", id, "status", status, "actor_id", actor.ID)
		return nil, err
	}

	s.effects.Execute(ctx, change.Effects)

	if change.Changed {
		s.logger.Info("Template status changed",
			"template_id", id,
			"previous_status", change.PreviousStatus,
			"new_status", change.NewStatus,
		)
	}
	return change.Template, nil
}

// DeleteTemplate removes a template that no process references
func (s *templateServiceImpl) DeleteTemplate(ctx context.Context, actor entity.Actor, id int64) error {
	var tmpl *entity.WorkflowTemplate

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		tmpl, err = s.templateRepo.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tmpl == nil {
			return apperror.NotFound("template %d not found", id)
		}
		if !workflow.CanManageTemplate(actor, tmpl) {
			return apperror.Forbidden("user %d may not delete template %d", actor.ID, id)
		}

		count, err := s.processRepo.CountByTemplate(txCtx, id)
		if err != nil {
			return fmt.Errorf("count processes: %w", err)
		}
		if count > 0 {
			return apperror.Validation("template %d has %d process(es) and cannot be deleted", id, count)
		}

		if err := s.templateRepo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Failed to delete template", err, "template_id", id, "actor_id", actor.ID)
		return err
	}

	s.effects.Execute(ctx, []*event.Event{
		event.NewAuditRecord(event.NewCorrelationID(), 0, entity.AuditActionTemplateDeleted, actor.ID, templateSnapshot(tmpl), nil, ""),
	})

	s.logger.Info("Template deleted", "template_id", id, "actor_id", actor.ID)
	return nil
}

// GetTemplate retrieves a template with its current steps and schema
func (s *templateServiceImpl) GetTemplate(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tmpl, err := s.templateRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get template", "error", err, "template_id", id)
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return nil, apperror.NotFound("template %d not found", id)
	}
	return tmpl, nil
}

// ListTemplates lists templates, optionally filtered by status
func (s *templateServiceImpl) ListTemplates(ctx context.Context, status entity.TemplateStatus) ([]*entity.WorkflowTemplate, error) {
	if status != "" && !status.IsValid() {
		return nil, apperror.Validation("unknown template status %q", status)
	}

	templates, err := s.templateRepo.List(ctx, status)
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err, "status", status)
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// validateDefinition checks the structure of a definition. Activation rules
// are not checked here: a DRAFT may be incomplete.
func validateDefinition(def entity.TemplateDefinition) error {
	if fields := utils.ValidateStruct(def); len(fields) > 0 {
		return apperror.ValidationFields("template definition is invalid", fields)
	}
	if def.FormSchema != nil {
		if err := form.ValidateDefinition(def.FormSchema.Fields); err != nil {
			return apperror.Validation("form schema is invalid: %v", err).Wrap(err)
		}
	}
	return nil
}

func buildSteps(defs []entity.StepDefinition, version int) []*entity.WorkflowStep {
	steps := make([]*entity.WorkflowStep, 0, len(defs))
	for i, d := range defs {
		steps = append(steps, &entity.WorkflowStep{
			TemplateVersion: version,
			StepOrder:       i + 1,
			Type:            d.Type,
			Name:            d.Name,
			Config:          d.Config,
		})
	}
	return steps
}

func templateSnapshot(tmpl *entity.WorkflowTemplate) map[string]interface{} {
	return map[string]interface{}{
		"template_id": tmpl.ID,
		"name":        tmpl.Name,
		"status":      string(tmpl.Status),
		"version":     tmpl.Version,
		"steps":       len(tmpl.Steps),
	}
}
