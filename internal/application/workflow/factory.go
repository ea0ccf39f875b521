package workflow

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// BuildProcessStateMachine creates a state machine configured for the process lifecycle
func BuildProcessStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// PENDING state transitions
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.TriggerSubmit, domainwf.StateInProgress)

	// IN_PROGRESS state transitions
	builder.Configure(domainwf.StateInProgress).
		Permit(domainwf.TriggerAdvance, domainwf.StateInProgress).
		Permit(domainwf.TriggerComplete, domainwf.StateCompleted).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerRequestChanges, domainwf.StateChangesRequested)

	// CHANGES_REQUESTED waits for resubmission, which is handled outside the engine.
	// REJECTED and COMPLETED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}

// BuildTemplateStateMachine creates a state machine configured for the
// template lifecycle. Activation is guarded by ValidateActivation.
func BuildTemplateStateMachine(initialState domainwf.State, tmpl *entity.WorkflowTemplate) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	activationGuard := func(ctx context.Context) error {
		return ValidateActivation(tmpl)
	}

	// DRAFT state transitions
	builder.Configure(domainwf.StateDraft).
		PermitIf(domainwf.TriggerActivate, domainwf.StateActive, activationGuard).
		Permit(domainwf.TriggerArchive, domainwf.StateArchived)

	// ACTIVE state transitions
	builder.Configure(domainwf.StateActive).
		Permit(domainwf.TriggerArchive, domainwf.StateArchived).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	// ARCHIVED state transitions
	builder.Configure(domainwf.StateArchived).
		PermitIf(domainwf.TriggerActivate, domainwf.StateActive, activationGuard).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	return builder.Build(initialState)
}

// ValidateActivation checks that a template may become ACTIVE: it has at
// least one step, step orders run contiguously from 1, and a template with a
// FORM step carries a form schema. Failures are validation errors.
func ValidateActivation(tmpl *entity.WorkflowTemplate) error {
	if len(tmpl.Steps) == 0 {
		return apperror.Validation("template %d cannot be activated: it has no steps", tmpl.ID)
	}

	for i, s := range tmpl.Steps {
		if s.StepOrder != i+1 {
			return apperror.Validation("template %d cannot be activated: step orders must be contiguous from 1, found %d at position %d", tmpl.ID, s.StepOrder, i+1)
		}
	}

	if tmpl.HasFormStep() && tmpl.FormSchema == nil {
		return apperror.Validation("template %d cannot be activated: a FORM step requires a form schema", tmpl.ID)
	}

	return nil
}

func triggerForTemplateStatus(status entity.TemplateStatus) domainwf.Trigger {
	switch status {
	case entity.TemplateStatusActive:
		return domainwf.TriggerActivate
	case entity.TemplateStatusArchived:
		return domainwf.TriggerArchive
	default:
		return domainwf.TriggerRevise
	}
}
