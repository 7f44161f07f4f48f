package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

const stageProgressDetailQuery = `SELECT p.id, p.application_id, p.stage_id, p.status, p.started_at, p.completed_at,
       p.notes, p.created_at, p.updated_at, st.name AS stage_name, st.order_no
	FROM application_stage_progress p
	JOIN schema_stages st ON st.id = p.stage_id`

// StageProgressRepository reads and updates the per-application stage checklist.
type StageProgressRepository struct {
	db *sqlx.DB
}

// NewStageProgressRepository constructs the repository.
func NewStageProgressRepository(db *sqlx.DB) *StageProgressRepository {
	return &StageProgressRepository{db: db}
}

// ListByApplication returns the checklist ordered by stage order.
func (r *StageProgressRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.StageProgressDetail, error) {
	query := stageProgressDetailQuery + ` WHERE p.application_id = $1 ORDER BY st.order_no ASC`
	var rows []models.StageProgressDetail
	if err := r.db.SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list stage progress: %w", err)
	}
	return rows, nil
}

// GetByID fetches one progress row. Missing rows surface as sql.ErrNoRows.
func (r *StageProgressRepository) GetByID(ctx context.Context, id string) (*models.StageProgressDetail, error) {
	query := stageProgressDetailQuery + ` WHERE p.id = $1`
	var row models.StageProgressDetail
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateWithLog writes the mutable progress columns and the activity row in one transaction.
func (r *StageProgressRepository) UpdateWithLog(ctx context.Context, progress *models.ApplicationStageProgress, log *models.ActivityLog) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE application_stage_progress
		SET status = :status, started_at = :started_at, completed_at = :completed_at, notes = :notes, updated_at = :updated_at
		WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, progress); err != nil {
			return fmt.Errorf("update stage progress: %w", err)
		}
		return insertActivityLog(ctx, tx, log)
	})
}
