package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/pkg/utils"
)

// ProcessService creates processes and applies step actions
type ProcessService interface {
	CreateProcess(ctx context.Context, actor entity.Actor, templateID int64, formData map[string]interface{}) (*entity.ProcessInstance, error)
	ActStep(ctx context.Context, actor entity.Actor, processID, stepID int64, action workflow.Action, comments *string) (*entity.ProcessInstance, error)
	GetProcess(ctx context.Context, actor entity.Actor, id int64) (*entity.ProcessInstance, error)
	ListProcesses(ctx context.Context, actor entity.Actor, filter port.ProcessFilter) ([]*entity.ProcessInstance, error)
}

type processServiceImpl struct {
	templateRepo port.TemplateRepository
	processRepo  port.ProcessRepository
	txManager    port.TransactionManager
	engine       workflow.WorkflowEngine
	effects      EffectExecutor
	metrics      Metrics
	logger       Logger
}

// NewProcessService creates a new ProcessService. metrics may be nil.
func NewProcessService(
	templateRepo port.TemplateRepository,
	processRepo port.ProcessRepository,
	txManager port.TransactionManager,
	engine workflow.WorkflowEngine,
	effects EffectExecutor,
	metrics Metrics,
	logger Logger,
) ProcessService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &processServiceImpl{
		templateRepo: templateRepo,
		processRepo:  processRepo,
		txManager:    txManager,
		engine:       engine,
		effects:      effects,
		metrics:      metrics,
		logger:       logger,
	}
}

// CreateProcess starts a process from an ACTIVE template
func (s *processServiceImpl) CreateProcess(ctx context.Context, actor entity.Actor, templateID int64, formData map[string]interface{}) (*entity.ProcessInstance, error) {
	var plan *workflow.CreationPlan

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tmpl, err := s.templateRepo.GetByID(txCtx, templateID)
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		if tmpl == nil {
			return apperror.NotFound("template %d not found", templateID)
		}

		plan, err = s.engine.PlanCreation(txCtx, workflow.CreationInput{
			Template: tmpl,
			FormData: formData,
			Actor:    actor,
		})
		if err != nil {
			return err
		}

		if err := s.processRepo.CreateWithSteps(txCtx, plan.Process); err != nil {
			return fmt.Errorf("create process: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Failed to create process", err, "template_id", templateID, "actor_id", actor.ID)
		return nil, err
	}

	s.metrics.ProcessCreated()
	s.effects.Execute(ctx, plan.Effects())

	s.logger.Info("Process created",
		"process_id", plan.Process.ID,
		"template_id", templateID,
		"template_version", plan.Process.TemplateVersion,
		"creator_id", actor.ID,
	)
	return plan.Process, nil
}

// ActStep applies approve, reject or request_changes to a pending approval step
func (s *processServiceImpl) ActStep(ctx context.Context, actor entity.Actor, processID, stepID int64, action workflow.Action, comments *string) (*entity.ProcessInstance, error) {
	if comments != nil {
		cleaned := utils.SanitizeString(*comments)
		comments = &cleaned
		if cleaned == "" {
			comments = nil
		}
	}

	var transition *workflow.Transition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		sc, err := s.processRepo.GetStepWithContext(txCtx, stepID)
		if err != nil {
			return fmt.Errorf("get step: %w", err)
		}
		if sc == nil {
			return apperror.NotFound("step %d not found", stepID)
		}

		transition, err = s.engine.PlanStepAction(txCtx, workflow.StepActionInput{
			ProcessID: processID,
			StepID:    stepID,
			Process:   sc.Process,
			Template:  sc.Template,
			Action:    action,
			Actor:     actor,
			Comments:  comments,
		})
		if err != nil {
			return err
		}

		if err := s.processRepo.UpdateStep(txCtx, transition.Step); err != nil {
			if errors.Is(err, port.ErrStepNotPending) {
				return apperror.Validation("step %d is not pending", stepID).Wrap(err)
			}
			return fmt.Errorf("update step: %w", err)
		}

		if transition.AutoCompleted != nil {
			if err := s.processRepo.UpdateStep(txCtx, transition.AutoCompleted); err != nil {
				return fmt.Errorf("complete notification step %d: %w", transition.AutoCompleted.ID, err)
			}
		}

		if err := s.processRepo.UpdateStatus(txCtx, processID, transition.NewStatus, transition.Process.UpdatedAt); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.StepActed(action.String(), outcomeOf("", err))
		logFailure(s.logger, "Failed to act on step", err,
			"process_id", processID,
			"step_id", stepID,
			"action", action,
			"actor_id", actor.ID,
		)
		return nil, err
	}

	s.metrics.StepActed(action.String(), outcomeOf(string(transition.NewStatus), nil))
	s.effects.Execute(ctx, transition.Effects)

	s.logger.Info("Step action applied",
		"process_id", processID,
		"step_id", stepID,
		"action", action,
		"actor_id", actor.ID,
		"previous_status", transition.PreviousStatus,
		"new_status", transition.NewStatus,
	)
	return transition.Process, nil
}

// GetProcess retrieves a process with its steps. Only the creator and the
// approver pool may see it.
func (s *processServiceImpl) GetProcess(ctx context.Context, actor entity.Actor, id int64) (*entity.ProcessInstance, error) {
	proc, err := s.processRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", id)
		return nil, fmt.Errorf("get process: %w", err)
	}
	if proc == nil {
		return nil, apperror.NotFound("process %d not found", id)
	}
	if proc.CreatorID != actor.ID && !actor.Role.IsElevated() {
		return nil, apperror.Forbidden("user %d may not view process %d", actor.ID, id)
	}
	return proc, nil
}

// ListProcesses lists processes. Users outside the approver pool only see their own.
func (s *processServiceImpl) ListProcesses(ctx context.Context, actor entity.Actor, filter port.ProcessFilter) ([]*entity.ProcessInstance, error) {
	if !actor.Role.IsElevated() {
		filter.CreatorID = actor.ID
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	procs, err := s.processRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list processes", "error", err, "actor_id", actor.ID)
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return procs, nil
}
