package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

// ScholarshipRepository reads scholarship programs and toggles their availability.
type ScholarshipRepository struct {
	db *sqlx.DB
}

// NewScholarshipRepository constructs the repository.
func NewScholarshipRepository(db *sqlx.DB) *ScholarshipRepository {
	return &ScholarshipRepository{db: db}
}

// ListAll returns every scholarship, newest first.
func (r *ScholarshipRepository) ListAll(ctx context.Context) ([]models.Scholarship, error) {
	const query = `SELECT id, name, provider, is_active, start_date, end_date, created_at, updated_at
	FROM scholarships ORDER BY created_at DESC`
	var items []models.Scholarship
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list scholarships: %w", err)
	}
	return items, nil
}

// GetByID fetches one scholarship. Missing rows surface as sql.ErrNoRows.
func (r *ScholarshipRepository) GetByID(ctx context.Context, id string) (*models.Scholarship, error) {
	const query = `SELECT id, name, provider, is_active, start_date, end_date, created_at, updated_at
	FROM scholarships WHERE id = $1`
	var item models.Scholarship
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// SetActiveWithLog flips is_active and records the activity row in one transaction.
func (r *ScholarshipRepository) SetActiveWithLog(ctx context.Context, id string, active bool, updatedAt time.Time, log *models.ActivityLog) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE scholarships SET is_active = $1, updated_at = $2 WHERE id = $3`, active, updatedAt, id); err != nil {
			return fmt.Errorf("update scholarship status: %w", err)
		}
		return insertActivityLog(ctx, tx, log)
	})
}
