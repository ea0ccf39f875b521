package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/form"
)

func newTemplateFixture() (TemplateService, *memTemplateRepo, *memProcessRepo, *recordingExecutor) {
	templates := newMemTemplateRepo()
	processes := newMemProcessRepo(templates)
	effects := &recordingExecutor{}
	svc := NewTemplateService(templates, processes, &mockTxManager{}, workflow.NewEngine(), effects, &mockLogger{})
	return svc, templates, processes, effects
}

func expenseDefinition() entity.TemplateDefinition {
	return entity.TemplateDefinition{
		Name:        "Expense claim",
		Description: "Claim back travel costs",
		Steps: []entity.StepDefinition{
			{Type: entity.StepTypeForm, Name: "Submit"},
			{Type: entity.StepTypeApproval, Name: "Manager"},
			{Type: entity.StepTypeNotification, Name: "Notify finance"},
		},
		FormSchema: &entity.FormSchema{Fields: []form.Field{
			{Name: "amount", Label: "Amount", Kind: form.KindCurrency, Required: true},
		}},
	}
}

func TestTemplateService_CreateTemplate(t *testing.T) {
	svc, templates, _, effects := newTemplateFixture()

	tmpl, err := svc.CreateTemplate(context.Background(), admin, expenseDefinition())
	require.NoError(t, err)

	assert.NotZero(t, tmpl.ID)
	assert.Equal(t, entity.TemplateStatusDraft, tmpl.Status)
	assert.Equal(t, 1, tmpl.Version)
	assert.Equal(t, admin.ID, tmpl.OwnerID)
	require.Len(t, tmpl.Steps, 3)
	for i, s := range tmpl.Steps {
		assert.Equal(t, i+1, s.StepOrder)
		assert.Equal(t, 1, s.TemplateVersion)
	}

	stored, err := templates.GetByID(context.Background(), tmpl.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	audits := effects.ofType(event.TypeAuditRecord)
	require.Len(t, audits, 1)
	assert.Equal(t, entity.AuditActionTemplateCreated, audits[0].GetPayloadString(event.KeyAction))
}

func TestTemplateService_CreateTemplate_Rejections(t *testing.T) {
	svc, _, _, _ := newTemplateFixture()
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, approver, expenseDefinition())
	assert.True(t, apperror.IsForbidden(err))

	def := expenseDefinition()
	def.Name = ""
	def.Steps[1].Type = entity.StepType("VOTE")
	_, err = svc.CreateTemplate(ctx, admin, def)
	require.Error(t, err)
	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "steps[1].type")

	def = expenseDefinition()
	def.FormSchema.Fields = append(def.FormSchema.Fields, form.Field{Name: "amount", Kind: form.KindNumber})
	_, err = svc.CreateTemplate(ctx, admin, def)
	assert.True(t, apperror.IsValidation(err))
}

func TestTemplateService_ReplaceTemplateDefinition(t *testing.T) {
	svc, _, _, effects := newTemplateFixture()
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, admin, expenseDefinition())
	require.NoError(t, err)

	def := expenseDefinition()
	def.Name = "Expense claim v2"
	def.Steps = append(def.Steps, entity.StepDefinition{Type: entity.StepTypeApproval, Name: "Finance"})

	updated, err := svc.ReplaceTemplateDefinition(ctx, admin, tmpl.ID, def)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Expense claim v2", updated.Name)
	require.Len(t, updated.Steps, 4)
	assert.Equal(t, 2, updated.Steps[3].TemplateVersion)

	audits := effects.ofType(event.TypeAuditRecord)
	require.Len(t, audits, 2)
	assert.Equal(t, entity.AuditActionTemplateUpdated, audits[1].GetPayloadString(event.KeyAction))
	assert.NotNil(t, audits[1].GetPayload(event.KeyPreviousValue))
}

func TestTemplateService_ReplaceTemplateDefinition_Rejections(t *testing.T) {
	svc, _, _, _ := newTemplateFixture()
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, admin, expenseDefinition())
	require.NoError(t, err)

	_, err = svc.ReplaceTemplateDefinition(ctx, approver, tmpl.ID, expenseDefinition())
	assert.True(t, apperror.IsForbidden(err))

	_, err = svc.ReplaceTemplateDefinition(ctx, admin, 404, expenseDefinition())
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.SetTemplateStatus(ctx, admin, tmpl.ID, entity.TemplateStatusActive)
	require.NoError(t, err)

	_, err = svc.ReplaceTemplateDefinition(ctx, admin, tmpl.ID, expenseDefinition())
	assert.True(t, apperror.IsValidation(err), "active templates are not editable")
}

func TestTemplateService_SetTemplateStatus(t *testing.T) {
	svc, templates, _, effects := newTemplateFixture()
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, admin, expenseDefinition())
	require.NoError(t, err)

	steps := []struct {
		status  entity.TemplateStatus
		audited bool
	}{
		{entity.TemplateStatusActive, true},
		{entity.TemplateStatusActive, false},
		{entity.TemplateStatusArchived, true},
		{entity.TemplateStatusDraft, true},
	}

	audits := len(effects.ofType(event.TypeAuditRecord))
	for _, step := range steps {
		got, err := svc.SetTemplateStatus(ctx, admin, tmpl.ID, step.status)
		require.NoError(t, err, "status %s", step.status)
		assert.Equal(t, step.status, got.Status)

		stored, err := templates.GetByID(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, step.status, stored.Status)

		if step.audited {
			audits++
		}
		assert.Len(t, effects.ofType(event.TypeAuditRecord), audits, "status %s", step.status)
	}
}

func TestTemplateService_SetTemplateStatus_ActivationRules(t *testing.T) {
	svc, templates, _, _ := newTemplateFixture()
	ctx := context.Background()

	def := expenseDefinition()
	def.FormSchema = nil
	tmpl, err := svc.CreateTemplate(ctx, admin, def)
	require.NoError(t, err)

	_, err = svc.SetTemplateStatus(ctx, admin, tmpl.ID, entity.TemplateStatusActive)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	stored, err := templates.GetByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TemplateStatusDraft, stored.Status)

	_, err = svc.SetTemplateStatus(ctx, approver, tmpl.ID, entity.TemplateStatusArchived)
	assert.True(t, apperror.IsForbidden(err))
}

func TestTemplateService_DeleteTemplate(t *testing.T) {
	svc, templates, processes, effects := newTemplateFixture()
	ctx := context.Background()

	tmpl, err := svc.CreateTemplate(ctx, admin, expenseDefinition())
	require.NoError(t, err)

	processes.count = 1
	err = svc.DeleteTemplate(ctx, admin, tmpl.ID)
	assert.True(t, apperror.IsValidation(err))

	processes.count = 0
	err = svc.DeleteTemplate(ctx, approver, tmpl.ID)
	assert.True(t, apperror.IsForbidden(err))

	require.NoError(t, svc.DeleteTemplate(ctx, admin, tmpl.ID))

	stored, err := templates.GetByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	audits := effects.ofType(event.TypeAuditRecord)
	assert.Equal(t, entity.AuditActionTemplateDeleted, audits[len(audits)-1].GetPayloadString(event.KeyAction))

	err = svc.DeleteTemplate(ctx, admin, tmpl.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTemplateService_ListTemplates(t *testing.T) {
	svc, templates, _, _ := newTemplateFixture()
	ctx := context.Background()

	templates.put(&entity.WorkflowTemplate{Name: "a", Status: entity.TemplateStatusActive, Version: 1, UpdatedAt: time.Now()})
	templates.put(&entity.WorkflowTemplate{Name: "b", Status: entity.TemplateStatusDraft, Version: 1, UpdatedAt: time.Now()})

	all, err := svc.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.ListTemplates(ctx, entity.TemplateStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Name)

	_, err = svc.ListTemplates(ctx, entity.TemplateStatus("GONE"))
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.GetTemplate(ctx, 404)
	assert.True(t, apperror.IsNotFound(err))
}
