package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TemplateRepository implements port.TemplateRepository. Every definition
// change is stored as a new row in template_versions with its own steps;
// workflow_templates.current_version points at the live one.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a template and its first version
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	query := `
		INSERT INTO workflow_templates (
			name, description, status, owner_id, current_version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		tmpl.Name,
		tmpl.Description,
		tmpl.Status,
		tmpl.OwnerID,
		tmpl.Version,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tmpl.ID = id

	return r.insertVersion(ctx, tmpl)
}

// SaveVersion stores the template's steps and schema as tmpl.Version and
// makes it current, together with the descriptive fields
func (r *TemplateRepository) SaveVersion(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	if err := r.insertVersion(ctx, tmpl); err != nil {
		return err
	}

	query := `
		UPDATE workflow_templates
		SET name = ?, description = ?, current_version = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		tmpl.Name,
		tmpl.Description,
		tmpl.Version,
		tmpl.UpdatedAt,
		tmpl.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.Int64("id", tmpl.ID), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}
	return expectOneRow(result, "template", tmpl.ID)
}

func (r *TemplateRepository) insertVersion(ctx context.Context, tmpl *entity.WorkflowTemplate) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	schema, err := marshalNullable(tmpl.FormSchema)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx,
		`INSERT INTO template_versions (template_id, version, form_schema, created_at) VALUES (?, ?, ?, ?)`,
		tmpl.ID, tmpl.Version, schema, tmpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template version",
			zap.Int64("template_id", tmpl.ID),
			zap.Int("version", tmpl.Version),
			zap.Error(err))
		return fmt.Errorf("failed to create template version: %w", err)
	}

	stepQuery := `
		INSERT INTO workflow_steps (
			template_id, template_version, step_order, type, name, config
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, step := range tmpl.Steps {
		config, err := marshalNullable(step.Config)
		if err != nil {
			return err
		}

		result, err := exec.ExecContext(ctx, stepQuery,
			tmpl.ID,
			tmpl.Version,
			step.StepOrder,
			step.Type,
			step.Name,
			config,
		)
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.Int64("template_id", tmpl.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create workflow step: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		step.ID = id
		step.TemplateID = tmpl.ID
		step.TemplateVersion = tmpl.Version
	}

	return nil
}

const templateColumns = `
	t.id, t.name, t.description, t.status, t.owner_id, v.version,
	t.created_at, t.updated_at, v.form_schema
`

// GetByID retrieves a template with the steps and schema of its current version
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowTemplate, error) {
	tmpl, err := loadTemplate(ctx, sqlite.ExecutorFrom(ctx, r.db), id, 0)
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return tmpl, nil
}

// loadTemplate reads a template with the steps and schema of the given
// version, or of its current version when version is 0. Returns nil, nil
// when the template or version does not exist.
func loadTemplate(ctx context.Context, exec sqlite.Executor, id int64, version int) (*entity.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates t
		JOIN template_versions v
			ON v.template_id = t.id AND v.version = CASE WHEN ? > 0 THEN ? ELSE t.current_version END
		WHERE t.id = ?
	`

	tmpl, err := scanTemplate(exec.QueryRowContext(ctx, query, version, version, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	steps, err := querySteps(ctx, exec, tmpl.ID, tmpl.Version)
	if err != nil {
		return nil, err
	}
	tmpl.Steps = steps

	return tmpl, nil
}

// List retrieves templates with the steps of their current version
func (r *TemplateRepository) List(ctx context.Context, status entity.TemplateStatus) ([]*entity.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates t
		JOIN template_versions v
			ON v.template_id = t.id AND v.version = t.current_version
		WHERE (? = '' OR t.status = ?)
		ORDER BY t.id
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, status, status)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.WorkflowTemplate
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, tmpl := range templates {
		steps, err := querySteps(ctx, sqlite.ExecutorFrom(ctx, r.db), tmpl.ID, tmpl.Version)
		if err != nil {
			return nil, err
		}
		tmpl.Steps = steps
	}

	return templates, nil
}

// UpdateStatus changes the lifecycle status of a template
func (r *TemplateRepository) UpdateStatus(ctx context.Context, id int64, status entity.TemplateStatus, updatedAt time.Time) error {
	query := `UPDATE workflow_templates SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, status, updatedAt, id)
	if err != nil {
		r.logger.Error("Failed to update template status", zap.Int64("id", id), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("failed to update template status: %w", err)
	}
	return expectOneRow(result, "template", id)
}

// Delete removes a template; versions and steps cascade
func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `DELETE FROM workflow_templates WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return expectOneRow(result, "template", id)
}

func querySteps(ctx context.Context, exec sqlite.Executor, templateID int64, version int) ([]*entity.WorkflowStep, error) {
	query := `
		SELECT id, template_id, template_version, step_order, type, name, config
		FROM workflow_steps
		WHERE template_id = ? AND template_version = ?
		ORDER BY step_order
	`

	rows, err := exec.QueryContext(ctx, query, templateID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	steps := []*entity.WorkflowStep{}
	for rows.Next() {
		var step entity.WorkflowStep
		var config sql.NullString

		if err := rows.Scan(
			&step.ID,
			&step.TemplateID,
			&step.TemplateVersion,
			&step.StepOrder,
			&step.Type,
			&step.Name,
			&config,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		if err := unmarshalNullable(config, &step.Config); err != nil {
			return nil, err
		}
		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*entity.WorkflowTemplate, error) {
	var tmpl entity.WorkflowTemplate
	var schema sql.NullString

	if err := row.Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.Description,
		&tmpl.Status,
		&tmpl.OwnerID,
		&tmpl.Version,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
		&schema,
	); err != nil {
		return nil, err
	}

	if schema.Valid {
		tmpl.FormSchema = &entity.FormSchema{}
		if err := unmarshalNullable(schema, tmpl.FormSchema); err != nil {
			return nil, err
		}
	}

	return &tmpl, nil
}

// expectOneRow turns an update that matched nothing into an error
func expectOneRow(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d not found", what, id)
	}
	return nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
