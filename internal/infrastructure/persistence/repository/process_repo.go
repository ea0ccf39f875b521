package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ProcessRepository implements port.ProcessRepository
type ProcessRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcessRepository creates a new process repository
func NewProcessRepository(db *sql.DB, logger *zap.Logger) port.ProcessRepository {
	return &ProcessRepository{
		db:     db,
		logger: logger,
	}
}

// CreateWithSteps inserts a process and its step instances. Callers run it
// inside a transaction so that a partial insert never becomes visible.
func (r *ProcessRepository) CreateWithSteps(ctx context.Context, proc *entity.ProcessInstance) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	formData, err := marshalNullable(proc.FormData)
	if err != nil {
		return err
	}
	if !formData.Valid {
		formData = sql.NullString{String: "{}", Valid: true}
	}

	query := `
		INSERT INTO process_instances (
			template_id, template_version, template_name, creator_id,
			form_data, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := exec.ExecContext(ctx, query,
		proc.TemplateID,
		proc.TemplateVersion,
		proc.TemplateName,
		proc.CreatorID,
		formData,
		proc.Status,
		proc.CreatedAt,
		proc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create process", zap.Int64("template_id", proc.TemplateID), zap.Error(err))
		return fmt.Errorf("failed to create process: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	proc.ID = id

	stepQuery := `
		INSERT INTO process_step_instances (
			process_id, workflow_step_id, step_order, step_type, step_name,
			status, acted_by, acted_at, comments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, step := range proc.Steps {
		step.ProcessID = proc.ID

		result, err := exec.ExecContext(ctx, stepQuery,
			step.ProcessID,
			step.WorkflowStepID,
			step.StepOrder,
			step.StepType,
			step.StepName,
			step.Status,
			nullInt64(step.ActedBy),
			nullTime(step.ActedAt),
			nullString(step.Comments),
		)
		if err != nil {
			r.logger.Error("Failed to create step instance",
				zap.Int64("process_id", proc.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create step instance: %w", err)
		}

		stepID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = stepID
	}

	return nil
}

const processColumns = `
	id, template_id, template_version, template_name, creator_id,
	form_data, status, created_at, updated_at
`

// GetByID retrieves a process with its step instances
func (r *ProcessRepository) GetByID(ctx context.Context, id int64) (*entity.ProcessInstance, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	query := `SELECT ` + processColumns + ` FROM process_instances WHERE id = ?`
	proc, err := scanProcess(exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get process by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get process: %w", err)
	}

	steps, err := r.getSteps(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	proc.Steps = steps

	return proc, nil
}

// GetStepWithContext retrieves a step instance together with its process
// and the template version the process was created from
func (r *ProcessRepository) GetStepWithContext(ctx context.Context, stepID int64) (*entity.StepContext, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	var processID int64
	err := exec.QueryRowContext(ctx, `SELECT process_id FROM process_step_instances WHERE id = ?`, stepID).Scan(&processID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step", zap.Int64("step_id", stepID), zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	proc, err := r.GetByID(ctx, processID)
	if err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, nil
	}

	tmpl, err := loadTemplate(ctx, exec, proc.TemplateID, proc.TemplateVersion)
	if err != nil {
		r.logger.Error("Failed to get process template",
			zap.Int64("process_id", proc.ID),
			zap.Int64("template_id", proc.TemplateID),
			zap.Error(err))
		return nil, err
	}

	sc := &entity.StepContext{Process: proc, Template: tmpl}
	for _, s := range proc.Steps {
		if s.ID == stepID {
			sc.Step = s
		}
	}
	return sc, nil
}

// UpdateStep records the decision on a step. The update only applies while
// the stored step is still PENDING; otherwise port.ErrStepNotPending is returned.
func (r *ProcessRepository) UpdateStep(ctx context.Context, step *entity.ProcessStepInstance) error {
	query := `
		UPDATE process_step_instances
		SET status = ?, acted_by = ?, acted_at = ?, comments = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		step.Status,
		nullInt64(step.ActedBy),
		nullTime(step.ActedAt),
		nullString(step.Comments),
		step.ID,
		entity.StepStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to update step", zap.Int64("step_id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to update step: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return port.ErrStepNotPending
	}
	return nil
}

// UpdateStatus changes the aggregate status of a process
func (r *ProcessRepository) UpdateStatus(ctx context.Context, id int64, status entity.ProcessStatus, updatedAt time.Time) error {
	query := `UPDATE process_instances SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, updatedAt, id)
	if err != nil {
		r.logger.Error("Failed to update process status", zap.Int64("id", id), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("failed to update process status: %w", err)
	}
	return expectOneRow(result, "process", id)
}

// List retrieves processes without their steps, newest first
func (r *ProcessRepository) List(ctx context.Context, filter port.ProcessFilter) ([]*entity.ProcessInstance, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.CreatorID != 0 {
		where = append(where, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.TemplateID != 0 {
		where = append(where, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + processColumns + ` FROM process_instances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list processes", zap.Error(err))
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	procs := []*entity.ProcessInstance{}
	for rows.Next() {
		proc, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		procs = append(procs, proc)
	}

	return procs, rows.Err()
}

// CountByTemplate returns how many processes reference a template
func (r *ProcessRepository) CountByTemplate(ctx context.Context, templateID int64) (int, error) {
	var count int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM process_instances WHERE template_id = ?`, templateID,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count processes", zap.Int64("template_id", templateID), zap.Error(err))
		return 0, fmt.Errorf("failed to count processes: %w", err)
	}
	return count, nil
}

func (r *ProcessRepository) getSteps(ctx context.Context, exec sqlite.Executor, processID int64) ([]*entity.ProcessStepInstance, error) {
	query := `
		SELECT id, process_id, workflow_step_id, step_order, step_type, step_name,
			status, acted_by, acted_at, comments
		FROM process_step_instances
		WHERE process_id = ?
		ORDER BY step_order
	`

	rows, err := exec.QueryContext(ctx, query, processID)
	if err != nil {
		r.logger.Error("Failed to get step instances", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to get step instances: %w", err)
	}
	defer rows.Close()

	steps := []*entity.ProcessStepInstance{}
	for rows.Next() {
		var (
			step     entity.ProcessStepInstance
			actedBy  sql.NullInt64
			actedAt  sql.NullTime
			comments sql.NullString
		)
		if err := rows.Scan(
			&step.ID,
			&step.ProcessID,
			&step.WorkflowStepID,
			&step.StepOrder,
			&step.StepType,
			&step.StepName,
			&step.Status,
			&actedBy,
			&actedAt,
			&comments,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step instance: %w", err)
		}

		if actedBy.Valid {
			step.ActedBy = &actedBy.Int64
		}
		if actedAt.Valid {
			step.ActedAt = &actedAt.Time
		}
		if comments.Valid {
			step.Comments = &comments.String
		}
		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

func scanProcess(row rowScanner) (*entity.ProcessInstance, error) {
	var proc entity.ProcessInstance
	var formData sql.NullString

	if err := row.Scan(
		&proc.ID,
		&proc.TemplateID,
		&proc.TemplateVersion,
		&proc.TemplateName,
		&proc.CreatorID,
		&formData,
		&proc.Status,
		&proc.CreatedAt,
		&proc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	proc.FormData = map[string]interface{}{}
	if err := unmarshalNullable(formData, &proc.FormData); err != nil {
		return nil, err
	}

	return &proc, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// Verify interface compliance
var _ port.ProcessRepository = (*ProcessRepository)(nil)
