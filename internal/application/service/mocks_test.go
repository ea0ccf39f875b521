package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// memTemplateRepo is an in-memory TemplateRepository
type memTemplateRepo struct {
	mu        sync.Mutex
	nextID    int64
	templates map[int64]*entity.WorkflowTemplate
	versions  map[templateVersion]*entity.WorkflowTemplate
	getErr    error
}

type templateVersion struct {
	id      int64
	version int
}

func newMemTemplateRepo() *memTemplateRepo {
	return &memTemplateRepo{
		nextID:    1,
		templates: make(map[int64]*entity.WorkflowTemplate),
		versions:  make(map[templateVersion]*entity.WorkflowTemplate),
	}
}

func (m *memTemplateRepo) put(tmpl *entity.WorkflowTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tmpl.ID == 0 {
		tmpl.ID = m.nextID
		m.nextID++
	}
	for _, s := range tmpl.Steps {
		s.TemplateID = tmpl.ID
		if s.ID == 0 {
			s.ID = tmpl.ID*100 + int64(s.StepOrder)
		}
	}
	cp := *tmpl
	m.templates[tmpl.ID] = &cp
	pinned := *tmpl
	m.versions[templateVersion{tmpl.ID, tmpl.Version}] = &pinned
}

// version returns a template as it was at the given version
func (m *memTemplateRepo) version(id int64, version int) *entity.WorkflowTemplate {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.versions[templateVersion{id, version}]
	if !ok {
		return nil
	}
	cp := *t
	if cur, ok := m.templates[id]; ok {
		cp.Status = cur.Status
	}
	return &cp
}

func (m *memTemplateRepo) Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	m.put(tmpl)
	return nil
}

func (m *memTemplateRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplateRepo) List(ctx context.Context, status entity.TemplateStatus) ([]*entity.WorkflowTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.WorkflowTemplate
	for _, t := range m.templates {
		if status == "" || t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTemplateRepo) SaveVersion(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	m.put(tmpl)
	return nil
}

func (m *memTemplateRepo) UpdateStatus(ctx context.Context, id int64, status entity.TemplateStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return errors.New("template not found")
	}
	t.Status = status
	t.UpdatedAt = updatedAt
	return nil
}

func (m *memTemplateRepo) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, id)
	return nil
}

// memProcessRepo is an in-memory ProcessRepository. Reads return copies so
// that the compare-and-set in UpdateStep sees the stored status.
type memProcessRepo struct {
	mu         sync.Mutex
	nextID     int64
	nextStepID int64
	procs      map[int64]*entity.ProcessInstance
	templates  *memTemplateRepo
	count      int
}

func newMemProcessRepo(templates *memTemplateRepo) *memProcessRepo {
	return &memProcessRepo{
		nextID:     1,
		nextStepID: 1,
		procs:      make(map[int64]*entity.ProcessInstance),
		templates:  templates,
	}
}

func cloneProcess(p *entity.ProcessInstance) *entity.ProcessInstance {
	cp := *p
	cp.Steps = make([]*entity.ProcessStepInstance, len(p.Steps))
	for i, s := range p.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	return &cp
}

func (m *memProcessRepo) CreateWithSteps(ctx context.Context, proc *entity.ProcessInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	proc.ID = m.nextID
	m.nextID++
	for _, s := range proc.Steps {
		s.ID = m.nextStepID
		s.ProcessID = proc.ID
		m.nextStepID++
	}
	m.procs[proc.ID] = cloneProcess(proc)
	return nil
}

func (m *memProcessRepo) GetByID(ctx context.Context, id int64) (*entity.ProcessInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[id]
	if !ok {
		return nil, nil
	}
	return cloneProcess(p), nil
}

func (m *memProcessRepo) GetStepWithContext(ctx context.Context, stepID int64) (*entity.StepContext, error) {
	m.mu.Lock()
	var found *entity.ProcessInstance
	for _, p := range m.procs {
		for _, s := range p.Steps {
			if s.ID == stepID {
				found = cloneProcess(p)
			}
		}
	}
	m.mu.Unlock()
	if found == nil {
		return nil, nil
	}

	tmpl := m.templates.version(found.TemplateID, found.TemplateVersion)
	for _, s := range found.Steps {
		if s.ID == stepID {
			return &entity.StepContext{Step: s, Process: found, Template: tmpl}, nil
		}
	}
	return nil, nil
}

func (m *memProcessRepo) UpdateStep(ctx context.Context, step *entity.ProcessStepInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[step.ProcessID]
	if !ok {
		return errors.New("process not found")
	}
	for i, s := range p.Steps {
		if s.ID != step.ID {
			continue
		}
		if s.Status != entity.StepStatusPending {
			return port.ErrStepNotPending
		}
		sc := *step
		p.Steps[i] = &sc
		return nil
	}
	return errors.New("step not found")
}

func (m *memProcessRepo) UpdateStatus(ctx context.Context, id int64, status entity.ProcessStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[id]
	if !ok {
		return errors.New("process not found")
	}
	p.Status = status
	p.UpdatedAt = updatedAt
	return nil
}

func (m *memProcessRepo) List(ctx context.Context, filter port.ProcessFilter) ([]*entity.ProcessInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ProcessInstance
	for _, p := range m.procs {
		if filter.CreatorID != 0 && p.CreatorID != filter.CreatorID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, cloneProcess(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memProcessRepo) CountByTemplate(ctx context.Context, templateID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.count
	for _, p := range m.procs {
		if p.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

type mockAuditRepo struct {
	entries           []*entity.AuditLogEntry
	createFunc        func(ctx context.Context, entry *entity.AuditLogEntry) error
	listByProcessFunc func(ctx context.Context, processID int64) ([]*entity.AuditLogEntry, error)
	listFunc          func(ctx context.Context, limit, offset int) ([]*entity.AuditLogEntry, error)
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *entity.AuditLogEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, entry)
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByProcess(ctx context.Context, processID int64) ([]*entity.AuditLogEntry, error) {
	if m.listByProcessFunc != nil {
		return m.listByProcessFunc(ctx, processID)
	}
	var out []*entity.AuditLogEntry
	for _, e := range m.entries {
		if e.ProcessID != nil && *e.ProcessID == processID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit, offset int) ([]*entity.AuditLogEntry, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return m.entries, nil
}

type mockNotificationRepo struct {
	notifications []*entity.Notification
	createFunc    func(ctx context.Context, n *entity.Notification) error
	markReadCalls int
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, n); err != nil {
			return err
		}
	}
	n.ID = int64(len(m.notifications) + 1)
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	for _, n := range m.notifications {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipientID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64) error {
	m.markReadCalls++
	for _, n := range m.notifications {
		if n.ID == id {
			n.Read = true
		}
	}
	return nil
}

type mockUserRepo struct {
	users           []*entity.User
	listByRolesFunc func(ctx context.Context, roles ...entity.Role) ([]*entity.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	user.ID = int64(len(m.users) + 1)
	m.users = append(m.users, user)
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListByRoles(ctx context.Context, roles ...entity.Role) ([]*entity.User, error) {
	if m.listByRolesFunc != nil {
		return m.listByRolesFunc(ctx, roles...)
	}
	var out []*entity.User
	for _, u := range m.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type mockMessageSender struct {
	sent     map[string]string
	sendFunc func(ctx context.Context, openID, content string) error
}

func (m *mockMessageSender) SendMessage(ctx context.Context, openID, content string) error {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, openID, content)
	}
	if m.sent == nil {
		m.sent = make(map[string]string)
	}
	m.sent[openID] = content
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// recordingExecutor collects the effects it is asked to execute
type recordingExecutor struct {
	mu      sync.Mutex
	effects []*event.Event
}

func (r *recordingExecutor) Execute(ctx context.Context, effects []*event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effects...)
}

func (r *recordingExecutor) ofType(t event.Type) []*event.Event {
	var out []*event.Event
	for _, e := range r.effects {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	mu      sync.Mutex
	created int
	acted   []string
}

func (m *recordingMetrics) ProcessCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) StepActed(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acted = append(m.acted, action+":"+outcome)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

var (
	creator  = entity.Actor{ID: 1, Role: entity.RoleUser, DisplayName: "Casey"}
	approver = entity.Actor{ID: 2, Role: entity.RoleApprover, DisplayName: "Avery"}
	admin    = entity.Actor{ID: 3, Role: entity.RoleAdmin, DisplayName: "Alex"}
)
