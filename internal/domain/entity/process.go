package entity

import "time"

// ProcessInstance is one execution of a template version against submitted
// form data. Steps are ordered by StepOrder.
type ProcessInstance struct {
	ID              int64                  `json:"id"`
	TemplateID      int64                  `json:"template_id"`
	TemplateVersion int                    `json:"template_version"`
	TemplateName    string                 `json:"template_name"`
	CreatorID       int64                  `json:"creator_id"`
	FormData        map[string]interface{} `json:"form_data"`
	Status          ProcessStatus          `json:"status"`
	Steps           []*ProcessStepInstance `json:"steps,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// ProcessStepInstance tracks one template step within a process.
//
// StepOrder, StepType and StepName are snapshots of the workflow step taken
// when the process was created; later template edits do not change them.
type ProcessStepInstance struct {
	ID             int64      `json:"id"`
	ProcessID      int64      `json:"process_id"`
	WorkflowStepID int64      `json:"workflow_step_id"`
	StepOrder      int        `json:"step_order"`
	StepType       StepType   `json:"step_type"`
	StepName       string     `json:"step_name"`
	Status         StepStatus `json:"status"`
	ActedBy        *int64     `json:"acted_by,omitempty"`
	ActedAt        *time.Time `json:"acted_at,omitempty"`
	Comments       *string    `json:"comments,omitempty"`
}

// StepByOrder returns the step instance at the given position, or nil
func (p *ProcessInstance) StepByOrder(order int) *ProcessStepInstance {
	for _, s := range p.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// StepContext is a step instance loaded together with its parent process
// (including all of its step instances) and the template it runs.
type StepContext struct {
	Step     *ProcessStepInstance
	Process  *ProcessInstance
	Template *WorkflowTemplate
}
