package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/form"
)

// WorkflowTemplate is a reusable definition of an ordered workflow.
// Steps and FormSchema describe the template's current Version; earlier
// versions stay stored so that existing processes keep resolving them.
type WorkflowTemplate struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      TemplateStatus  `json:"status"`
	OwnerID     int64           `json:"owner_id"`
	Version     int             `json:"version"`
	Steps       []*WorkflowStep `json:"steps"`
	FormSchema  *FormSchema     `json:"form_schema,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowStep is one step of a template version
type WorkflowStep struct {
	ID              int64                  `json:"id"`
	TemplateID      int64                  `json:"template_id"`
	TemplateVersion int                    `json:"template_version"`
	StepOrder       int                    `json:"step_order"`
	Type            StepType               `json:"type"`
	Name            string                 `json:"name"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

// FormSchema is the list of field definitions a template's form collects
type FormSchema struct {
	Fields []form.Field `json:"fields"`
}

// HasFormStep returns true if any step of the template is a FORM step
func (t *WorkflowTemplate) HasFormStep() bool {
	for _, s := range t.Steps {
		if s.Type == StepTypeForm {
			return true
		}
	}
	return false
}

// StepByOrder returns the step at the given position, or nil
func (t *WorkflowTemplate) StepByOrder(order int) *WorkflowStep {
	for _, s := range t.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// TemplateDefinition is the editable content of a template: everything that
// is replaced wholesale when the template is edited.
type TemplateDefinition struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Steps       []StepDefinition `json:"steps" validate:"dive"`
	FormSchema  *FormSchema      `json:"form_schema,omitempty"`
}

// StepDefinition describes one step of a TemplateDefinition; steps are
// ordered by their position in the definition.
type StepDefinition struct {
	Type   StepType               `json:"type" validate:"required,oneof=FORM APPROVAL NOTIFICATION"`
	Name   string                 `json:"name" validate:"required,max=200"`
	Config map[string]interface{} `json:"config,omitempty"`
}
