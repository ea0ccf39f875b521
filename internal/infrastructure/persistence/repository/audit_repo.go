package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository (append-only)
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditLogEntry) error {
	previous, err := marshalNullable(entry.PreviousValue)
	if err != nil {
		return err
	}
	next, err := marshalNullable(entry.NewValue)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (
			action, actor_id, process_id, previous_value, new_value, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.Action,
		entry.ActorID,
		nullInt64(entry.ProcessID),
		previous,
		next,
		entry.Note,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry", zap.String("action", entry.Action), zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

const auditColumns = `id, action, actor_id, process_id, previous_value, new_value, note, created_at`

// ListByProcess retrieves the audit trail of a process, oldest first
func (r *AuditRepository) ListByProcess(ctx context.Context, processID int64) ([]*entity.AuditLogEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE process_id = ? ORDER BY created_at, id`
	return r.query(ctx, query, processID)
}

// List retrieves the audit log, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*entity.AuditLogEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, offset)
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.AuditLogEntry, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*entity.AuditLogEntry{}
	for rows.Next() {
		var (
			entry     entity.AuditLogEntry
			processID sql.NullInt64
			previous  sql.NullString
			next      sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.ActorID,
			&processID,
			&previous,
			&next,
			&entry.Note,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if processID.Valid {
			entry.ProcessID = &processID.Int64
		}
		if err := unmarshalNullable(previous, &entry.PreviousValue); err != nil {
			return nil, err
		}
		if err := unmarshalNullable(next, &entry.NewValue); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
