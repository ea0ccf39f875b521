// Package workflow holds the execution engine: every rule that moves a
// process through its steps and a template through its lifecycle.
//
// The engine performs no I/O. Callers load the inputs inside a transaction,
// ask the engine for a plan, persist what the plan changed and, after
// commit, dispatch the plan's effects.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Action is a decision taken on a pending approval step
type Action string

const (
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRequestChanges Action = "request_changes"
)

// ParseAction converts user input into an Action
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject, ActionRequestChanges:
		return a, nil
	default:
		return "", apperror.Validation("unknown action %q: must be one of approve, reject, request_changes", s)
	}
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// WorkflowEngine plans process and template transitions
type WorkflowEngine interface {
	// PlanCreation materializes a new process and its step instances from a template
	PlanCreation(ctx context.Context, in CreationInput) (*CreationPlan, error)

	// PlanStepAction applies an action to a pending approval step. The
	// process and its steps in the input are updated in place.
	PlanStepAction(ctx context.Context, in StepActionInput) (*Transition, error)

	// PlanTemplateStatus moves a template to a new lifecycle status.
	// The template in the input is updated in place.
	PlanTemplateStatus(ctx context.Context, in TemplateStatusInput) (*TemplateStatusChange, error)
}

// CreationInput is what PlanCreation needs
type CreationInput struct {
	Template *entity.WorkflowTemplate
	FormData map[string]interface{}
	Actor    entity.Actor
}

// CreationPlan is a process ready to be persisted.
type CreationPlan struct {
	Process *entity.ProcessInstance

	// AwaitingStep is the first step left PENDING, nil if none
	AwaitingStep *entity.ProcessStepInstance

	actor         entity.Actor
	correlationID string
}

// Effects returns the post-commit effects of the creation. Call it after the
// process has been persisted so the effects carry its id.
func (p *CreationPlan) Effects() []*event.Event {
	proc := p.Process
	effects := []*event.Event{
		event.NewAuditRecord(p.correlationID, proc.ID, entity.AuditActionProcessCreated, p.actor.ID, nil, processSnapshot(proc), ""),
		event.NewUserNotification(p.correlationID, proc.ID, proc.CreatorID, submittedMessage(proc), string(entity.NotificationTypeInfo)),
	}
	if p.AwaitingStep != nil && p.AwaitingStep.StepType == entity.StepTypeApproval {
		effects = append(effects, event.NewApproverPoolNotification(p.correlationID, proc.ID, awaitingApprovalMessage(proc, p.AwaitingStep)))
	}
	return effects
}

// StepActionInput is what PlanStepAction needs. Process is the parent of the
// step identified by StepID, loaded with all of its steps; ProcessID is the
// process the caller addressed. Template, when set, is the template version
// the process was created from and must agree with the step snapshots.
type StepActionInput struct {
	ProcessID int64
	StepID    int64
	Process   *entity.ProcessInstance
	Template  *entity.WorkflowTemplate
	Action    Action
	Actor     entity.Actor
	Comments  *string
}

// Transition is the outcome of a step action
type Transition struct {
	Process *entity.ProcessInstance

	// Step is the acted step after the action
	Step *entity.ProcessStepInstance

	// AutoCompleted is the NOTIFICATION step completed by the cascade, if any
	AutoCompleted *entity.ProcessStepInstance

	// NextPending is the step now awaiting action, nil if none
	NextPending *entity.ProcessStepInstance

	PreviousStatus entity.ProcessStatus
	NewStatus      entity.ProcessStatus
	Effects        []*event.Event
}

// TemplateStatusInput is what PlanTemplateStatus needs
type TemplateStatusInput struct {
	Template *entity.WorkflowTemplate
	Status   entity.TemplateStatus
	Actor    entity.Actor
}

// TemplateStatusChange is the outcome of a template status change.
// Changed is false when the template already had the requested status.
type TemplateStatusChange struct {
	Template       *entity.WorkflowTemplate
	PreviousStatus entity.TemplateStatus
	NewStatus      entity.TemplateStatus
	Changed        bool
	Effects        []*event.Event
}

func processSnapshot(p *entity.ProcessInstance) map[string]interface{} {
	return map[string]interface{}{
		"template_id":      p.TemplateID,
		"template_version": p.TemplateVersion,
		"status":           string(p.Status),
		"steps":            len(p.Steps),
	}
}

func stepSnapshot(p entity.ProcessStatus, s *entity.ProcessStepInstance) map[string]interface{} {
	return map[string]interface{}{
		"process_status": string(p),
		"step_id":        s.ID,
		"step_order":     s.StepOrder,
		"step_status":    string(s.Status),
	}
}

func describeProcess(p *entity.ProcessInstance) string {
	return fmt.Sprintf("%q (#%d)", p.TemplateName, p.ID)
}
