// instance_action_log_repository.go implements InstanceActionLogRepository, the
// PostgreSQL store for instance action records: append, per-instance history in
// insertion order, operator queries with filters, and logical soft deletion.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/instance-action-log/instance-action-log/internal/db/models"
)

const instanceActionLogColumns = `id, seq, target_id, action_kind, requesting_origin, result_status,
		tenant_id, actor_id, detail, created_at, soft_deleted, deleted_at`

// InstanceActionLogRepository handles instance action log database operations
type InstanceActionLogRepository struct {
	db *sqlx.DB
}

// NewInstanceActionLogRepository creates a new InstanceActionLogRepository
func NewInstanceActionLogRepository(db *sqlx.DB) *InstanceActionLogRepository {
	return &InstanceActionLogRepository{db: db}
}

// InstanceActionLogFilters contains filters for querying records. Nil fields
// are not applied.
type InstanceActionLogFilters struct {
	TargetID       *string
	ActorID        *string
	TenantID       *string
	ActionKind     *string
	StartDate      *time.Time
	EndDate        *time.Time
	IncludeDeleted bool
}

// Append inserts rec, assigning its id; seq and created_at come from the
// database.
func (r *InstanceActionLogRepository) Append(ctx context.Context, rec *models.InstanceActionLog) (string, error) {
	rec.ID = uuid.New().String()

	query := `
		INSERT INTO instance_action_logs (id, target_id, action_kind, requesting_origin, result_status, tenant_id, actor_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.ID,
		rec.TargetID,
		rec.ActionKind,
		rec.RequestingOrigin,
		rec.ResultStatus,
		rec.TenantID,
		rec.ActorID,
		rec.Detail,
	).Scan(&rec.Sequence, &rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert instance action log: %w", err)
	}

	return rec.ID, nil
}

// ListByTarget returns the non-deleted records for targetID in insertion order.
func (r *InstanceActionLogRepository) ListByTarget(ctx context.Context, targetID string) ([]*models.InstanceActionLog, error) {
	query := `SELECT ` + instanceActionLogColumns + `
		FROM instance_action_logs
		WHERE target_id = $1 AND soft_deleted = false
		ORDER BY seq ASC`

	logs := make([]*models.InstanceActionLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, targetID); err != nil {
		return nil, fmt.Errorf("failed to list instance action logs: %w", err)
	}
	return logs, nil
}

// Get retrieves a single record by id. It returns nil, nil when none exists.
func (r *InstanceActionLogRepository) Get(ctx context.Context, id string) (*models.InstanceActionLog, error) {
	query := `SELECT ` + instanceActionLogColumns + `
		FROM instance_action_logs
		WHERE id = $1`

	var log models.InstanceActionLog
	err := r.db.GetContext(ctx, &log, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// List retrieves records with optional filters and pagination, newest first,
// along with the total number of matching records.
func (r *InstanceActionLogRepository) List(ctx context.Context, filters InstanceActionLogFilters, limit, offset int) ([]*models.InstanceActionLog, int, error) {
	where := ` WHERE 1=1`
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, paramIndex)
		args = append(args, v)
		paramIndex++
	}

	if filters.TargetID != nil {
		add(` AND target_id = $%d`, *filters.TargetID)
	}
	if filters.ActorID != nil {
		add(` AND actor_id = $%d`, *filters.ActorID)
	}
	if filters.TenantID != nil {
		add(` AND tenant_id = $%d`, *filters.TenantID)
	}
	if filters.ActionKind != nil {
		add(` AND action_kind = $%d`, *filters.ActionKind)
	}
	if filters.StartDate != nil {
		add(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		add(` AND created_at <= $%d`, *filters.EndDate)
	}
	if !filters.IncludeDeleted {
		where += ` AND soft_deleted = false`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM instance_action_logs`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + instanceActionLogColumns + ` FROM instance_action_logs` + where +
		fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	logs := make([]*models.InstanceActionLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// SoftDelete tombstones every live record for targetID and reports how many
// were affected. Record contents are never modified.
func (r *InstanceActionLogRepository) SoftDelete(ctx context.Context, targetID string) (int64, error) {
	query := `
		UPDATE instance_action_logs
		SET soft_deleted = true, deleted_at = $1
		WHERE target_id = $2 AND soft_deleted = false
	`
	res, err := r.db.ExecContext(ctx, query, time.Now(), targetID)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete instance action logs: %w", err)
	}
	return res.RowsAffected()
}
