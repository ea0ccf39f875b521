package workflow

import (
	"fmt"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

func submittedMessage(p *entity.ProcessInstance) string {
	return fmt.Sprintf("Your request %s has been submitted.", describeProcess(p))
}

func awaitingApprovalMessage(p *entity.ProcessInstance, step *entity.ProcessStepInstance) string {
	return fmt.Sprintf("Request %s is waiting for approval at step %q.", describeProcess(p), step.StepName)
}

func actionMessage(t *Transition, action Action, actor entity.Actor) string {
	by := actor.DisplayName
	if by == "" {
		by = "an approver"
	}

	var msg string
	switch action {
	case ActionApprove:
		if t.NewStatus == entity.ProcessStatusCompleted {
			msg = fmt.Sprintf("Your request %s was approved by %s and is now complete.", describeProcess(t.Process), by)
		} else {
			msg = fmt.Sprintf("Your request %s was approved by %s at step %q.", describeProcess(t.Process), by, t.Step.StepName)
		}
	case ActionReject:
		msg = fmt.Sprintf("Your request %s was rejected by %s.", describeProcess(t.Process), by)
	case ActionRequestChanges:
		msg = fmt.Sprintf("%s requested changes to your request %s.", by, describeProcess(t.Process))
	}

	if t.Step.Comments != nil && *t.Step.Comments != "" {
		msg = fmt.Sprintf("%s Comments: %s", msg, *t.Step.Comments)
	}
	return msg
}
