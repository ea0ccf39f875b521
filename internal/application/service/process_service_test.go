package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/apperror"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/form"
)

type processFixture struct {
	templates *memTemplateRepo
	processes *memProcessRepo
	effects   *recordingExecutor
	metrics   *recordingMetrics
	svc       ProcessService
}

func newProcessFixture(t *testing.T) *processFixture {
	t.Helper()

	templates := newMemTemplateRepo()
	processes := newMemProcessRepo(templates)
	effects := &recordingExecutor{}
	metrics := &recordingMetrics{}

	clock := func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	svc := NewProcessService(templates, processes, &mockTxManager{}, workflow.NewEngine(workflow.WithClock(clock)), effects, metrics, &mockLogger{})

	return &processFixture{templates: templates, processes: processes, effects: effects, metrics: metrics, svc: svc}
}

func (f *processFixture) activeTemplate(types ...entity.StepType) *entity.WorkflowTemplate {
	tmpl := &entity.WorkflowTemplate{
		Name:    "Expense claim",
		Status:  entity.TemplateStatusActive,
		OwnerID: admin.ID,
		Version: 1,
		FormSchema: &entity.FormSchema{Fields: []form.Field{
			{Name: "amount", Kind: form.KindCurrency, Required: true},
		}},
	}
	for i, typ := range types {
		tmpl.Steps = append(tmpl.Steps, &entity.WorkflowStep{
			TemplateVersion: 1,
			StepOrder:       i + 1,
			Type:            typ,
			Name:            string(typ),
		})
	}
	f.templates.put(tmpl)
	return tmpl
}

func TestProcessService_CreateProcess(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeForm, entity.StepTypeApproval)

	proc, err := f.svc.CreateProcess(context.Background(), creator, tmpl.ID, map[string]interface{}{"amount": 42.5})
	require.NoError(t, err)

	assert.NotZero(t, proc.ID)
	assert.Equal(t, entity.ProcessStatusInProgress, proc.Status)
	require.Len(t, proc.Steps, 2)
	assert.Equal(t, entity.StepStatusCompleted, proc.Steps[0].Status)
	assert.Equal(t, entity.StepStatusPending, proc.Steps[1].Status)

	stored, err := f.processes.GetByID(context.Background(), proc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, entity.ProcessStatusInProgress, stored.Status)

	assert.Equal(t, 1, f.metrics.created)

	audits := f.effects.ofType(event.TypeAuditRecord)
	require.Len(t, audits, 1)
	assert.Equal(t, proc.ID, audits[0].ProcessID)
	assert.Equal(t, entity.AuditActionProcessCreated, audits[0].GetPayloadString(event.KeyAction))
	assert.Len(t, f.effects.ofType(event.TypeNotifyApproverPool), 1)
}

func TestProcessService_CreateProcess_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *processFixture) int64
		formData map[string]interface{}
		wantKind apperror.Kind
	}{
		{
			name:     "unknown template",
			setup:    func(f *processFixture) int64 { return 99 },
			wantKind: apperror.KindNotFound,
		},
		{
			name: "draft template",
			setup: func(f *processFixture) int64 {
				tmpl := f.activeTemplate(entity.StepTypeApproval)
				_ = f.templates.UpdateStatus(context.Background(), tmpl.ID, entity.TemplateStatusDraft, time.Now())
				return tmpl.ID
			},
			formData: map[string]interface{}{"amount": 1},
			wantKind: apperror.KindValidation,
		},
		{
			name: "invalid form data",
			setup: func(f *processFixture) int64 {
				return f.activeTemplate(entity.StepTypeForm, entity.StepTypeApproval).ID
			},
			formData: map[string]interface{}{"amount": "lots"},
			wantKind: apperror.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProcessFixture(t)
			id := tt.setup(f)

			_, err := f.svc.CreateProcess(context.Background(), creator, id, tt.formData)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperror.KindOf(err))
			assert.Zero(t, f.metrics.created)
			assert.Empty(t, f.effects.effects)
		})
	}
}

func TestProcessService_CreateProcess_RepositoryError(t *testing.T) {
	f := newProcessFixture(t)
	f.templates.getErr = errors.New("disk I/O error")

	_, err := f.svc.CreateProcess(context.Background(), creator, 1, nil)
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestProcessService_ActStep_ApproveToCompletion(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeForm, entity.StepTypeApproval, entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	first, second := proc.Steps[1], proc.Steps[2]

	updated, err := f.svc.ActStep(ctx, approver, proc.ID, first.ID, workflow.ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusInProgress, updated.Status)

	comments := "  looks good  "
	updated, err = f.svc.ActStep(ctx, admin, proc.ID, second.ID, workflow.ActionApprove, &comments)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusCompleted, updated.Status)

	stored, err := f.processes.GetByID(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusCompleted, stored.Status)
	for _, s := range stored.Steps {
		assert.Equal(t, entity.StepStatusCompleted, s.Status, "step %d", s.StepOrder)
	}
	require.NotNil(t, stored.Steps[2].Comments)
	assert.Equal(t, "looks good", *stored.Steps[2].Comments)

	assert.Equal(t, []string{"approve:IN_PROGRESS", "approve:COMPLETED"}, f.metrics.acted)
}

func TestProcessService_ActStep_UsesPinnedTemplateVersion(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval, entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	tmpl.Version = 2
	tmpl.Steps = []*entity.WorkflowStep{
		{TemplateVersion: 2, StepOrder: 1, Type: entity.StepTypeNotification, Name: "Notify"},
	}
	f.templates.put(tmpl)

	updated, err := f.svc.ActStep(ctx, approver, proc.ID, proc.Steps[0].ID, workflow.ActionApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusInProgress, updated.Status)
	assert.Equal(t, 1, updated.TemplateVersion)
}

func TestProcessService_ActStep_RejectLaterPendingStep(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeForm, entity.StepTypeApproval, entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	updated, err := f.svc.ActStep(ctx, approver, proc.ID, proc.Steps[2].ID, workflow.ActionReject, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusRejected, updated.Status)

	stored, err := f.processes.GetByID(ctx, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StepStatusPending, stored.Steps[1].Status)
	assert.Equal(t, entity.StepStatusRejected, stored.Steps[2].Status)
}

func TestProcessService_ActStep_RejectIsTerminal(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval, entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	updated, err := f.svc.ActStep(ctx, approver, proc.ID, proc.Steps[0].ID, workflow.ActionReject, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ProcessStatusRejected, updated.Status)

	_, err = f.svc.ActStep(ctx, approver, proc.ID, proc.Steps[1].ID, workflow.ActionApprove, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestProcessService_ActStep_Guards(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeForm, entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	_, err = f.svc.ActStep(ctx, creator, proc.ID, proc.Steps[1].ID, workflow.ActionApprove, nil)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.ActStep(ctx, approver, proc.ID, 9999, workflow.ActionApprove, nil)
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.ActStep(ctx, approver, proc.ID+1, proc.Steps[1].ID, workflow.ActionApprove, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.ActStep(ctx, approver, proc.ID, proc.Steps[0].ID, workflow.ActionApprove, nil)
	assert.True(t, apperror.IsValidation(err), "completed form step cannot be acted on")

	assert.Equal(t, []string{"approve:FORBIDDEN", "approve:NOT_FOUND", "approve:VALIDATION", "approve:VALIDATION"}, f.metrics.acted)
}

func TestProcessService_ActStep_ConcurrentDecisions(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)
	stepID := proc.Steps[0].ID

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for _, action := range []workflow.Action{workflow.ActionApprove, workflow.ActionReject, workflow.ActionApprove, workflow.ActionReject} {
		wg.Add(1)
		go func(a workflow.Action) {
			defer wg.Done()
			_, err := f.svc.ActStep(ctx, approver, proc.ID, stepID, a, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}(action)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	for _, err := range failures {
		assert.True(t, apperror.IsValidation(err), "unexpected error: %v", err)
	}
}

func TestProcessService_ActStep_StaleWriteIsValidation(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	// Another approver decides between the read and the write
	stale := &mockTxManager{withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
		sc, err := f.processes.GetStepWithContext(ctx, proc.Steps[0].ID)
		require.NoError(t, err)
		sc.Step.Status = entity.StepStatusRejected
		require.NoError(t, f.processes.UpdateStep(ctx, sc.Step))
		return fn(ctx)
	}}
	svc := NewProcessService(f.templates, &staleProcessRepo{memProcessRepo: f.processes, snapshot: mustGet(t, f.processes, proc.ID)}, stale, workflow.NewEngine(), f.effects, nil, &mockLogger{})

	_, err = svc.ActStep(ctx, approver, proc.ID, proc.Steps[0].ID, workflow.ActionApprove, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.True(t, errors.Is(err, port.ErrStepNotPending))
}

// staleProcessRepo serves a snapshot taken before a concurrent write
type staleProcessRepo struct {
	*memProcessRepo
	snapshot *entity.ProcessInstance
}

func (r *staleProcessRepo) GetStepWithContext(ctx context.Context, stepID int64) (*entity.StepContext, error) {
	proc := cloneProcess(r.snapshot)
	for _, s := range proc.Steps {
		if s.ID == stepID {
			return &entity.StepContext{Step: s, Process: proc}, nil
		}
	}
	return nil, nil
}

func mustGet(t *testing.T, repo *memProcessRepo, id int64) *entity.ProcessInstance {
	t.Helper()
	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestProcessService_GetProcess(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval)
	ctx := context.Background()

	proc, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 10})
	require.NoError(t, err)

	got, err := f.svc.GetProcess(ctx, creator, proc.ID)
	require.NoError(t, err)
	assert.Equal(t, proc.ID, got.ID)

	_, err = f.svc.GetProcess(ctx, approver, proc.ID)
	require.NoError(t, err)

	stranger := entity.Actor{ID: 42, Role: entity.RoleUser}
	_, err = f.svc.GetProcess(ctx, stranger, proc.ID)
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.svc.GetProcess(ctx, creator, 404)
	assert.True(t, apperror.IsNotFound(err))
}

func TestProcessService_ListProcesses(t *testing.T) {
	f := newProcessFixture(t)
	tmpl := f.activeTemplate(entity.StepTypeApproval)
	ctx := context.Background()

	other := entity.Actor{ID: 42, Role: entity.RoleUser}
	_, err := f.svc.CreateProcess(ctx, creator, tmpl.ID, map[string]interface{}{"amount": 1})
	require.NoError(t, err)
	_, err = f.svc.CreateProcess(ctx, other, tmpl.ID, map[string]interface{}{"amount": 2})
	require.NoError(t, err)

	own, err := f.svc.ListProcesses(ctx, creator, port.ProcessFilter{CreatorID: other.ID})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, creator.ID, own[0].CreatorID)

	all, err := f.svc.ListProcesses(ctx, admin, port.ProcessFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
