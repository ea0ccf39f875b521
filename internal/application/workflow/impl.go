package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/form"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	now func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithClock sets the time source used for acted-at and update timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		now: time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CanManageTemplate reports whether the actor may edit or change the status
// of a template: administrators and the template owner.
func CanManageTemplate(actor entity.Actor, tmpl *entity.WorkflowTemplate) bool {
	return actor.Role == entity.RoleAdmin || actor.ID == tmpl.OwnerID
}

// PlanCreation materializes a new process and its step instances from a template
func (e *engineImpl) PlanCreation(ctx context.Context, in CreationInput) (*CreationPlan, error) {
	tmpl := in.Template
	if tmpl == nil {
		return nil, apperror.NotFound("template not found")
	}
	if tmpl.Status != entity.TemplateStatusActive {
		return nil, apperror.Validation("template %d is %s; only ACTIVE templates can start a process", tmpl.ID, tmpl.Status)
	}
	if len(tmpl.Steps) == 0 {
		return nil, apperror.Validation("template %d has no steps", tmpl.ID)
	}
	if in.Actor.ID == 0 {
		return nil, apperror.Validation("creator identity is required")
	}

	formData := in.FormData
	if formData == nil {
		formData = make(map[string]interface{})
	}
	if tmpl.FormSchema != nil {
		if errs := form.Validate(tmpl.FormSchema.Fields, formData); len(errs) > 0 {
			return nil, apperror.ValidationFields("form data is invalid", errs)
		}
	}

	now := e.now()
	proc := &entity.ProcessInstance{
		TemplateID:      tmpl.ID,
		TemplateVersion: tmpl.Version,
		TemplateName:    tmpl.Name,
		CreatorID:       in.Actor.ID,
		FormData:        formData,
		Status:          entity.ProcessStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Submitting the form is the first action on the process
	machine := BuildProcessStateMachine(domainwf.StatePending)
	if err := machine.Fire(ctx, domainwf.TriggerSubmit); err != nil {
		return nil, fmt.Errorf("failed to submit process: %w", err)
	}
	proc.Status = entity.ProcessStatus(machine.State())

	plan := &CreationPlan{
		Process:       proc,
		actor:         in.Actor,
		correlationID: event.NewCorrelationID(),
	}

	for _, ws := range sortedSteps(tmpl.Steps) {
		si := &entity.ProcessStepInstance{
			WorkflowStepID: ws.ID,
			StepOrder:      ws.StepOrder,
			StepType:       ws.Type,
			StepName:       ws.Name,
			Status:         entity.StepStatusPending,
		}
		if ws.StepOrder == 1 && ws.Type == entity.StepTypeForm {
			actedBy, actedAt := in.Actor.ID, now
			si.Status = entity.StepStatusCompleted
			si.ActedBy = &actedBy
			si.ActedAt = &actedAt
		} else if plan.AwaitingStep == nil {
			plan.AwaitingStep = si
		}
		proc.Steps = append(proc.Steps, si)
	}

	return plan, nil
}

// PlanStepAction applies an action to a pending approval step
func (e *engineImpl) PlanStepAction(ctx context.Context, in StepActionInput) (*Transition, error) {
	proc := in.Process
	var step *entity.ProcessStepInstance
	if proc != nil {
		step = findStep(proc, in.StepID)
	}
	if step == nil {
		return nil, apperror.NotFound("step %d not found", in.StepID)
	}
	if step.ProcessID != in.ProcessID || proc.ID != in.ProcessID {
		return nil, apperror.Validation("step %d does not belong to process %d", in.StepID, in.ProcessID)
	}
	if in.Template != nil {
		if err := checkSnapshot(proc, in.Template); err != nil {
			return nil, err
		}
	}
	if step.Status != entity.StepStatusPending {
		return nil, apperror.Validation("step %d is not pending (status %s)", step.ID, step.Status)
	}
	if step.StepType != entity.StepTypeApproval {
		return nil, apperror.Validation("step %d is a %s step; only APPROVAL steps accept actions", step.ID, step.StepType)
	}
	if !in.Actor.Role.IsElevated() {
		return nil, apperror.Forbidden("user %d is not allowed to act on approval steps", in.Actor.ID)
	}

	current := domainwf.State(proc.Status)
	if !current.IsValid() {
		return nil, fmt.Errorf("process %d has unknown status %q", proc.ID, proc.Status)
	}

	var (
		trigger       domainwf.Trigger
		autoCompleted *entity.ProcessStepInstance
	)
	switch in.Action {
	case ActionApprove:
		next := proc.StepByOrder(step.StepOrder + 1)
		switch {
		case next == nil:
			trigger = domainwf.TriggerComplete
		case next.StepType == entity.StepTypeNotification:
			// Only this one NOTIFICATION step is passed; a following
			// NOTIFICATION step waits for the next action.
			if next.Status == entity.StepStatusPending {
				autoCompleted = next
			}
			if proc.StepByOrder(next.StepOrder+1) == nil {
				trigger = domainwf.TriggerComplete
			} else {
				trigger = domainwf.TriggerAdvance
			}
		default:
			trigger = domainwf.TriggerAdvance
		}
	case ActionReject:
		trigger = domainwf.TriggerReject
	case ActionRequestChanges:
		trigger = domainwf.TriggerRequestChanges
	default:
		return nil, apperror.Validation("unknown action %q", in.Action)
	}

	machine := BuildProcessStateMachine(current)
	if !machine.CanFire(trigger) {
		return nil, apperror.Validation("process %d is %s and accepts no further actions", proc.ID, proc.Status)
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) {
			return nil, apperror.Validation("process %d is %s and accepts no further actions", proc.ID, proc.Status).Wrap(err)
		}
		return nil, fmt.Errorf("failed to fire %s on process %d: %w", trigger, proc.ID, err)
	}

	now := e.now()

	actedBy, actedAt := in.Actor.ID, now
	step.ActedBy = &actedBy
	step.ActedAt = &actedAt
	step.Comments = in.Comments
	if in.Action == ActionApprove {
		step.Status = entity.StepStatusCompleted
	} else {
		step.Status = entity.StepStatusRejected
	}

	if autoCompleted != nil {
		completedAt := now
		autoCompleted.Status = entity.StepStatusCompleted
		autoCompleted.ActedAt = &completedAt
	}

	t := &Transition{
		Process:        proc,
		Step:           step,
		AutoCompleted:  autoCompleted,
		PreviousStatus: proc.Status,
		NewStatus:      entity.ProcessStatus(machine.State()),
	}
	proc.Status = t.NewStatus
	proc.UpdatedAt = now

	if t.NewStatus == entity.ProcessStatusInProgress {
		t.NextPending = firstPendingAfter(proc, step.StepOrder)
	}

	t.Effects = e.stepActionEffects(t, in)
	return t, nil
}

func (e *engineImpl) stepActionEffects(t *Transition, in StepActionInput) []*event.Event {
	correlationID := event.NewCorrelationID()
	proc := t.Process

	var auditAction string
	switch in.Action {
	case ActionApprove:
		auditAction = entity.AuditActionStepCompleted
	case ActionReject:
		auditAction = entity.AuditActionStepRejected
	default:
		auditAction = entity.AuditActionChangesRequested
	}

	note := ""
	if t.Step.Comments != nil {
		note = *t.Step.Comments
	}

	previous := map[string]interface{}{
		"process_status": string(t.PreviousStatus),
		"step_id":        t.Step.ID,
		"step_order":     t.Step.StepOrder,
		"step_status":    string(entity.StepStatusPending),
	}

	effects := []*event.Event{
		event.NewAuditRecord(correlationID, proc.ID, auditAction, in.Actor.ID, previous, stepSnapshot(t.NewStatus, t.Step), note),
		event.NewUserNotification(correlationID, proc.ID, proc.CreatorID, actionMessage(t, in.Action, in.Actor), string(entity.NotificationTypeUpdate)),
	}

	if in.Action == ActionApprove && t.NextPending != nil && t.NextPending.StepType == entity.StepTypeApproval {
		effects = append(effects, event.NewApproverPoolNotification(correlationID, proc.ID, awaitingApprovalMessage(proc, t.NextPending)))
	}

	return effects
}

// PlanTemplateStatus moves a template to a new lifecycle status
func (e *engineImpl) PlanTemplateStatus(ctx context.Context, in TemplateStatusInput) (*TemplateStatusChange, error) {
	tmpl := in.Template
	if tmpl == nil {
		return nil, apperror.NotFound("template not found")
	}
	if !in.Status.IsValid() {
		return nil, apperror.Validation("unknown template status %q", in.Status)
	}
	if !CanManageTemplate(in.Actor, tmpl) {
		return nil, apperror.Forbidden("user %d may not change the status of template %d", in.Actor.ID, tmpl.ID)
	}

	change := &TemplateStatusChange{
		Template:       tmpl,
		PreviousStatus: tmpl.Status,
		NewStatus:      tmpl.Status,
	}
	if tmpl.Status == in.Status {
		return change, nil
	}

	current := domainwf.State(tmpl.Status)
	if !current.IsValid() {
		return nil, fmt.Errorf("template %d has unknown status %q", tmpl.ID, tmpl.Status)
	}

	machine := BuildTemplateStateMachine(current, tmpl)
	if err := machine.Fire(ctx, triggerForTemplateStatus(in.Status)); err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, domainwf.ErrInvalidTransition) {
			return nil, apperror.Validation("template %d cannot move from %s to %s", tmpl.ID, tmpl.Status, in.Status).Wrap(err)
		}
		return nil, fmt.Errorf("failed to change status of template %d: %w", tmpl.ID, err)
	}

	tmpl.Status = entity.TemplateStatus(machine.State())
	tmpl.UpdatedAt = e.now()

	change.NewStatus = tmpl.Status
	change.Changed = true
	change.Effects = []*event.Event{
		event.NewAuditRecord(event.NewCorrelationID(), 0, entity.AuditActionTemplateStatus, in.Actor.ID,
			map[string]interface{}{"template_id": tmpl.ID, "status": string(change.PreviousStatus)},
			map[string]interface{}{"template_id": tmpl.ID, "status": string(change.NewStatus)},
			""),
	}

	return change, nil
}

func sortedSteps(steps []*entity.WorkflowStep) []*entity.WorkflowStep {
	sorted := append([]*entity.WorkflowStep{}, steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })
	return sorted
}

func findStep(proc *entity.ProcessInstance, stepID int64) *entity.ProcessStepInstance {
	for _, s := range proc.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// checkSnapshot verifies that the step instances of a process mirror the
// template version it was created from
func checkSnapshot(proc *entity.ProcessInstance, tmpl *entity.WorkflowTemplate) error {
	if tmpl.ID != proc.TemplateID || tmpl.Version != proc.TemplateVersion {
		return fmt.Errorf("process %d runs template %d v%d, got template %d v%d",
			proc.ID, proc.TemplateID, proc.TemplateVersion, tmpl.ID, tmpl.Version)
	}
	if len(tmpl.Steps) != len(proc.Steps) {
		return fmt.Errorf("process %d has %d step instances, template %d v%d has %d steps",
			proc.ID, len(proc.Steps), tmpl.ID, tmpl.Version, len(tmpl.Steps))
	}

	byID := make(map[int64]*entity.WorkflowStep, len(tmpl.Steps))
	for _, ws := range tmpl.Steps {
		byID[ws.ID] = ws
	}
	for _, s := range proc.Steps {
		ws, ok := byID[s.WorkflowStepID]
		if !ok || ws.StepOrder != s.StepOrder || ws.Type != s.StepType {
			return fmt.Errorf("step %d of process %d does not match template %d v%d",
				s.ID, proc.ID, tmpl.ID, tmpl.Version)
		}
	}
	return nil
}

func firstPendingAfter(proc *entity.ProcessInstance, order int) *entity.ProcessStepInstance {
	var first *entity.ProcessStepInstance
	for _, s := range proc.Steps {
		if s.StepOrder <= order || s.Status != entity.StepStatusPending {
			continue
		}
		if first == nil || s.StepOrder < first.StepOrder {
			first = s
		}
	}
	return first
}
