package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

var (
	// ErrDuplicateApplication is returned when (schema_id, student_id) already has an application.
	ErrDuplicateApplication = errors.New("application already exists for schema and student")
	// ErrStaleStatus is returned when a guarded status update matched no row.
	ErrStaleStatus = errors.New("application status changed concurrently")
)

const applicationRecordColumns = `a.id, a.schema_id, a.student_id, a.status, a.notes, a.submitted_at,
       a.verified_by, a.verified_at, a.validated_by, a.validated_at, a.rejected_by, a.rejected_at,
       a.revision_requested_by, a.revision_requested_at, a.revision_deadline, a.created_at, a.updated_at,
       COALESCE(s.user_id::text, '') AS student_user_id, COALESCE(d.faculty_id::text, '') AS student_faculty_id`

const applicationRecordJoins = `FROM applications a
	JOIN students s ON s.id = a.student_id
	LEFT JOIN study_programs sp ON sp.id = s.study_program_id
	LEFT JOIN departments d ON d.id = sp.department_id`

// StatusUpdate describes a guarded status write. Columns holds the actor/timestamp columns of
// the transition and is applied only when the row is still in From.
type StatusUpdate struct {
	ID        string
	From      models.ApplicationStatus
	To        models.ApplicationStatus
	Columns   map[string]interface{}
	UpdatedAt time.Time
}

// ApplicationTx is the unit of work used by review transitions.
type ApplicationTx interface {
	InsertApplication(ctx context.Context, app *models.Application) error
	LockApplication(ctx context.Context, id string) (*models.ApplicationRecord, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) error
	ListSchemaStages(ctx context.Context, schemaID string) ([]models.Stage, error)
	CountStageProgress(ctx context.Context, applicationID string) (int, error)
	InsertStageProgress(ctx context.Context, rows []models.ApplicationStageProgress) (int, error)
	InsertActivityLog(ctx context.Context, log *models.ActivityLog) error
}

// ApplicationRepository persists applications and owns the review transaction boundary.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetByID fetches an application with its ownership facts. Missing rows surface as sql.ErrNoRows.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	query := `SELECT ` + applicationRecordColumns + ` ` + applicationRecordJoins + ` WHERE a.id = $1`
	var record models.ApplicationRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// StudentIDByUser resolves the student row owned by a user account.
func (r *ApplicationRepository) StudentIDByUser(ctx context.Context, userID string) (string, error) {
	var id string
	if err := r.db.GetContext(ctx, &id, `SELECT id FROM students WHERE user_id = $1`, userID); err != nil {
		return "", err
	}
	return id, nil
}

// SchemaExists reports whether a scholarship schema is present.
func (r *ApplicationRepository) SchemaExists(ctx context.Context, schemaID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM scholarship_schemas WHERE id = $1)`, schemaID); err != nil {
		return false, fmt.Errorf("check schema: %w", err)
	}
	return exists, nil
}

// WithinTransaction runs fn inside one database transaction.
func (r *ApplicationRepository) WithinTransaction(ctx context.Context, fn func(tx ApplicationTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&applicationTx{tx: tx})
	})
}

type applicationTx struct {
	tx *sqlx.Tx
}

func (t *applicationTx) InsertApplication(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt
	const query = `INSERT INTO applications (id, schema_id, student_id, status, notes, created_at, updated_at)
	VALUES (:id, :schema_id, :student_id, :status, :notes, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, app); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (t *applicationTx) LockApplication(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	query := `SELECT ` + applicationRecordColumns + ` ` + applicationRecordJoins + ` WHERE a.id = $1 FOR UPDATE OF a`
	var record models.ApplicationRecord
	if err := t.tx.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

func (t *applicationTx) UpdateStatus(ctx context.Context, update StatusUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = time.Now().UTC()
	}
	names := make([]string, 0, len(update.Columns))
	for name := range update.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	args := []interface{}{update.To, update.UpdatedAt}
	sets := []string{"status = $1", "updated_at = $2"}
	for _, name := range names {
		args = append(args, update.Columns[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	args = append(args, update.ID, update.From)
	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (t *applicationTx) ListSchemaStages(ctx context.Context, schemaID string) ([]models.Stage, error) {
	const query = `SELECT id, schema_id, name, order_no FROM schema_stages WHERE schema_id = $1 ORDER BY order_no ASC`
	var stages []models.Stage
	if err := t.tx.SelectContext(ctx, &stages, query, schemaID); err != nil {
		return nil, fmt.Errorf("list schema stages: %w", err)
	}
	return stages, nil
}

func (t *applicationTx) CountStageProgress(ctx context.Context, applicationID string) (int, error) {
	var count int
	if err := t.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM application_stage_progress WHERE application_id = $1`, applicationID); err != nil {
		return 0, fmt.Errorf("count stage progress: %w", err)
	}
	return count, nil
}

func (t *applicationTx) InsertStageProgress(ctx context.Context, rows []models.ApplicationStageProgress) (int, error) {
	const query = `INSERT INTO application_stage_progress
	(id, application_id, stage_id, status, started_at, completed_at, notes, created_at, updated_at)
	VALUES (:id, :application_id, :stage_id, :status, :started_at, :completed_at, :notes, :created_at, :updated_at)
	ON CONFLICT (application_id, stage_id) DO NOTHING`
	inserted := 0
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		result, err := t.tx.NamedExecContext(ctx, query, &rows[i])
		if err != nil {
			return inserted, fmt.Errorf("insert stage progress: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

func (t *applicationTx) InsertActivityLog(ctx context.Context, log *models.ActivityLog) error {
	return insertActivityLog(ctx, t.tx, log)
}
