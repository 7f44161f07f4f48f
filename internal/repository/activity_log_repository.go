package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// ActivityLogRepository stores append-only activity rows.
type ActivityLogRepository struct {
	db *sqlx.DB
}

// NewActivityLogRepository constructs the repository.
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create inserts one activity row outside of any transaction.
func (r *ActivityLogRepository) Create(ctx context.Context, log *models.ActivityLog) error {
	return insertActivityLog(ctx, r.db, log)
}

// Recent returns the latest rows joined with the actor name.
func (r *ActivityLogRepository) Recent(ctx context.Context, limit int) ([]models.ActivityLogView, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT l.id, l.user_id, l.action, l.entity_type, l.entity_id, l.description,
       l.ip_address, l.user_agent, l.created_at, u.full_name AS actor_name
	FROM activity_logs l
	LEFT JOIN users u ON u.id = l.user_id
	ORDER BY l.created_at DESC
	LIMIT $1`
	logs := make([]models.ActivityLogView, 0, limit)
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	return logs, nil
}

// ListByEntity returns the history of one entity oldest first.
func (r *ActivityLogRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.ActivityLogView, error) {
	const query = `SELECT l.id, l.user_id, l.action, l.entity_type, l.entity_id, l.description,
       l.ip_address, l.user_agent, l.created_at, u.full_name AS actor_name
	FROM activity_logs l
	LEFT JOIN users u ON u.id = l.user_id
	WHERE l.entity_type = $1 AND l.entity_id = $2
	ORDER BY l.created_at ASC`
	var logs []models.ActivityLogView
	if err := r.db.SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list entity activity: %w", err)
	}
	return logs, nil
}

func insertActivityLog(ctx context.Context, exec namedExecer, log *models.ActivityLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_logs
	(id, user_id, action, entity_type, entity_id, description, ip_address, user_agent, created_at)
	VALUES (:id, :user_id, :action, :entity_type, :entity_id, :description, :ip_address, :user_agent, :created_at)`
	if _, err := exec.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}
