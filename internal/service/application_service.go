package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type applicationStore interface {
	GetByID(ctx context.Context, id string) (*models.ApplicationRecord, error)
	StudentIDByUser(ctx context.Context, userID string) (string, error)
	SchemaExists(ctx context.Context, schemaID string) (bool, error)
	WithinTransaction(ctx context.Context, fn func(tx repository.ApplicationTx) error) error
}

type activityHistoryReader interface {
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.ActivityLogView, error)
}

// TransitionOp names a review transition.
type TransitionOp string

const (
	OpSubmit          TransitionOp = "submit"
	OpVerify          TransitionOp = "verify"
	OpVerifierReject  TransitionOp = "verifier-reject"
	OpRequestRevision TransitionOp = "request-revision"
	OpValidate        TransitionOp = "validate"
	OpValidatorReject TransitionOp = "validator-reject"
)

type transitionInput struct {
	Notes    string
	Deadline *time.Time
}

type transitionRule struct {
	verb         string
	from         []models.ApplicationStatus
	to           models.ApplicationStatus
	action       string
	roles        []models.UserRole
	ownerOnly    bool
	requireNotes bool
	materialize  bool
	// stamp writes the transition's own actor/timestamp fields and returns them as columns.
	stamp    func(app *models.Application, actorID string, now time.Time, in transitionInput) map[string]interface{}
	describe func(actorName string, in transitionInput) string
}

func stampRejection(app *models.Application, actorID string, now time.Time, in transitionInput) map[string]interface{} {
	notes := strings.TrimSpace(in.Notes)
	app.RejectedBy, app.RejectedAt, app.Notes = &actorID, &now, &notes
	return map[string]interface{}{"rejected_by": actorID, "rejected_at": now, "notes": notes}
}

var transitionRules = map[TransitionOp]transitionRule{
	OpSubmit: {
		verb:      "submit",
		from:      []models.ApplicationStatus{models.ApplicationStatusDraft, models.ApplicationStatusRevisionNeeded},
		to:        models.ApplicationStatusAwaitingVerify,
		action:    models.ActivitySubmitApplication,
		roles:     []models.UserRole{models.RoleStudent},
		ownerOnly: true,
		stamp: func(app *models.Application, _ string, now time.Time, _ transitionInput) map[string]interface{} {
			app.SubmittedAt = &now
			return map[string]interface{}{"submitted_at": now}
		},
		describe: func(name string, _ transitionInput) string {
			return fmt.Sprintf("%s mengajukan pendaftaran beasiswa untuk diverifikasi", name)
		},
	},
	OpVerify: {
		verb:   "verify",
		from:   []models.ApplicationStatus{models.ApplicationStatusAwaitingVerify},
		to:     models.ApplicationStatusVerified,
		action: models.ActivityVerifyApplication,
		roles:  []models.UserRole{models.RoleVerifier, models.RoleSuperAdmin},
		stamp: func(app *models.Application, actorID string, now time.Time, _ transitionInput) map[string]interface{} {
			app.VerifiedBy, app.VerifiedAt = &actorID, &now
			return map[string]interface{}{"verified_by": actorID, "verified_at": now}
		},
		describe: func(name string, _ transitionInput) string {
			return fmt.Sprintf("%s memverifikasi pendaftaran beasiswa", name)
		},
	},
	OpVerifierReject: {
		verb:         "reject",
		from:         []models.ApplicationStatus{models.ApplicationStatusAwaitingVerify},
		to:           models.ApplicationStatusRejected,
		action:       models.ActivityRejectApplication,
		roles:        []models.UserRole{models.RoleVerifier, models.RoleSuperAdmin},
		requireNotes: true,
		stamp:        stampRejection,
		describe: func(name string, in transitionInput) string {
			return fmt.Sprintf("%s menolak pendaftaran pada tahap verifikasi. Alasan: %s", name, strings.TrimSpace(in.Notes))
		},
	},
	OpRequestRevision: {
		verb:         "request revision",
		from:         []models.ApplicationStatus{models.ApplicationStatusAwaitingVerify},
		to:           models.ApplicationStatusRevisionNeeded,
		action:       models.ActivityRequestRevision,
		roles:        []models.UserRole{models.RoleVerifier, models.RoleSuperAdmin},
		requireNotes: true,
		stamp: func(app *models.Application, actorID string, now time.Time, in transitionInput) map[string]interface{} {
			notes := strings.TrimSpace(in.Notes)
			app.RevisionRequestedBy, app.RevisionRequestedAt, app.RevisionDeadline, app.Notes = &actorID, &now, in.Deadline, &notes
			return map[string]interface{}{
				"revision_requested_by": actorID,
				"revision_requested_at": now,
				"revision_deadline":     in.Deadline,
				"notes":                 notes,
			}
		},
		describe: func(name string, in transitionInput) string {
			return fmt.Sprintf("%s meminta revisi pendaftaran. Catatan: %s", name, strings.TrimSpace(in.Notes))
		},
	},
	OpValidate: {
		verb:        "validate",
		from:        []models.ApplicationStatus{models.ApplicationStatusVerified},
		to:          models.ApplicationStatusValidated,
		action:      models.ActivityValidateApplication,
		roles:       []models.UserRole{models.RoleValidator, models.RoleSuperAdmin},
		materialize: true,
		stamp: func(app *models.Application, actorID string, now time.Time, _ transitionInput) map[string]interface{} {
			app.ValidatedBy, app.ValidatedAt = &actorID, &now
			return map[string]interface{}{"validated_by": actorID, "validated_at": now}
		},
		describe: func(name string, _ transitionInput) string {
			return fmt.Sprintf("%s memvalidasi pendaftaran beasiswa", name)
		},
	},
	OpValidatorReject: {
		verb:         "reject",
		from:         []models.ApplicationStatus{models.ApplicationStatusVerified},
		to:           models.ApplicationStatusRejected,
		action:       models.ActivityRejectApplication,
		roles:        []models.UserRole{models.RoleValidator, models.RoleSuperAdmin},
		requireNotes: true,
		stamp:        stampRejection,
		describe: func(name string, in transitionInput) string {
			return fmt.Sprintf("%s menolak pendaftaran pada tahap validasi. Alasan: %s", name, strings.TrimSpace(in.Notes))
		},
	},
}

// ApplicationService owns the review state machine and its side effects.
type ApplicationService struct {
	repo      applicationStore
	history   activityHistoryReader
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewApplicationService constructs the service.
func NewApplicationService(repo applicationStore, history activityHistoryReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		repo:      repo,
		history:   history,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a DRAFT application for the calling student.
func (s *ApplicationService) Create(ctx context.Context, actor models.Actor, meta models.RequestMeta, req dto.CreateApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "schema_id is required")
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can apply")
	}

	studentID, err := s.repo.StudentIDByUser(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile for this account")
		}
		return nil, appErrors.Persistence(err, "failed to load student profile")
	}
	exists, err := s.repo.SchemaExists(ctx, req.SchemaID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load scholarship schema")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship schema not found")
	}

	app := &models.Application{
		SchemaID:  req.SchemaID,
		StudentID: studentID,
		Status:    models.ApplicationStatusDraft,
		Notes:     req.Notes,
		CreatedAt: s.now(),
	}
	err = s.repo.WithinTransaction(ctx, func(tx repository.ApplicationTx) error {
		if err := tx.InsertApplication(ctx, app); err != nil {
			return err
		}
		return tx.InsertActivityLog(ctx, s.activity(actor, meta, models.ActivityCreateApplication, app.ID,
			fmt.Sprintf("%s membuat draf pendaftaran beasiswa", actor.DisplayName)))
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an application for this schema already exists")
		}
		return nil, appErrors.Persistence(err, "failed to create application")
	}

	s.invalidate(ctx, "create", func(ctx context.Context) (int, error) {
		return s.cache.InvalidateByPattern(ctx, cachekey.RecentActivities)
	})
	return app, nil
}

// Get returns one application visible to the actor.
func (s *ApplicationService) Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Persistence(err, "failed to load application")
	}
	if err := authorizeRecord(actor, record); err != nil {
		return nil, err
	}
	return &record.Application, nil
}

// History returns the activity trail of one application, oldest first.
func (s *ApplicationService) History(ctx context.Context, id string, actor models.Actor) ([]models.ActivityLogView, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	logs, err := s.history.ListByEntity(ctx, models.ApplicationEntityType, id)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load application history")
	}
	return logs, nil
}

// Submit moves a draft or revised application into the verification queue.
func (s *ApplicationService) Submit(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpSubmit, id, actor, meta, transitionInput{})
}

// Verify accepts an application at the verification step.
func (s *ApplicationService) Verify(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpVerify, id, actor, meta, transitionInput{})
}

// RejectByVerifier rejects an application awaiting verification.
func (s *ApplicationService) RejectByVerifier(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpVerifierReject, id, actor, meta, transitionInput{Notes: req.Notes})
}

// RequestRevision sends an application back to the student.
func (s *ApplicationService) RequestRevision(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RequestRevisionRequest) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpRequestRevision, id, actor, meta, transitionInput{Notes: req.Notes, Deadline: req.Deadline})
}

// Validate accepts a verified application and materializes its stage checklist.
func (s *ApplicationService) Validate(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpValidate, id, actor, meta, transitionInput{})
}

// RejectByValidator rejects a verified application.
func (s *ApplicationService) RejectByValidator(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error) {
	return s.transition(ctx, OpValidatorReject, id, actor, meta, transitionInput{Notes: req.Notes})
}

func (s *ApplicationService) transition(ctx context.Context, op TransitionOp, id string, actor models.Actor, meta models.RequestMeta, in transitionInput) (result *dto.TransitionResult, err error) {
	rule, ok := transitionRules[op]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown transition %q", op))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "application."+string(op),
		trace.WithAttributes(
			attribute.String("application.id", id),
			attribute.String("actor.role", string(actor.Role)),
		),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = appErrors.FromError(err).Code
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveTransition(string(op), outcome)
		span.End()
	}()

	if !roleAllowed(actor.Role, rule.roles) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s cannot %s applications", actor.Role, rule.verb))
	}
	now := s.now()
	if err := validateTransitionInput(rule, in, now); err != nil {
		return nil, err
	}

	var (
		app     models.Application
		created int
	)
	err = s.repo.WithinTransaction(ctx, func(tx repository.ApplicationTx) error {
		record, err := tx.LockApplication(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "application not found")
			}
			return fmt.Errorf("lock application: %w", err)
		}
		if err := authorizeRecord(actor, record); err != nil {
			return err
		}
		if rule.ownerOnly && record.StudentUserID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the applicant can "+rule.verb+" this application")
		}
		if !statusIn(record.Status, rule.from) {
			return stateConflict(rule.verb, record.Status)
		}

		app = record.Application
		columns := rule.stamp(&app, actor.ID, now, in)
		if err := tx.UpdateStatus(ctx, repository.StatusUpdate{
			ID:        app.ID,
			From:      record.Status,
			To:        rule.to,
			Columns:   columns,
			UpdatedAt: now,
		}); err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return stateConflict(rule.verb, record.Status)
			}
			return err
		}
		app.Status = rule.to
		app.UpdatedAt = now

		if rule.materialize {
			if created, err = materializeStages(ctx, tx, app.ID, app.SchemaID, now); err != nil {
				return err
			}
		}

		return tx.InsertActivityLog(ctx, s.activity(actor, meta, rule.action, app.ID, rule.describe(actor.DisplayName, in)))
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Persistence(err, "failed to "+rule.verb+" application")
	}

	s.logger.Info("application transitioned",
		zap.String("application_id", app.ID),
		zap.String("operation", string(op)),
		zap.String("status", string(app.Status)),
		zap.String("actor_id", actor.ID),
		zap.Int("stages_created", created),
	)
	s.invalidate(ctx, string(op), s.cache.InvalidateApplicationDomain)

	return transitionResult(app, created), nil
}

// materializeStages creates the stage checklist once. The first stage starts immediately.
func materializeStages(ctx context.Context, tx repository.ApplicationTx, applicationID, schemaID string, now time.Time) (int, error) {
	stages, err := tx.ListSchemaStages(ctx, schemaID)
	if err != nil {
		return 0, err
	}
	if len(stages) == 0 {
		return 0, nil
	}
	existing, err := tx.CountStageProgress(ctx, applicationID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil
	}

	rows := make([]models.ApplicationStageProgress, 0, len(stages))
	for _, stage := range stages {
		row := models.ApplicationStageProgress{
			ApplicationID: applicationID,
			StageID:       stage.ID,
			Status:        models.StageProgressNotStarted,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if stage.OrderNo == 1 {
			started := now
			row.Status = models.StageProgressInProgress
			row.StartedAt = &started
		}
		rows = append(rows, row)
	}
	return tx.InsertStageProgress(ctx, rows)
}

func (s *ApplicationService) activity(actor models.Actor, meta models.RequestMeta, action, applicationID, description string) *models.ActivityLog {
	return newActivityLog(actor, meta, action, models.ApplicationEntityType, applicationID, description, s.now())
}

func (s *ApplicationService) invalidate(ctx context.Context, op string, fn func(context.Context) (int, error)) {
	invalidateAfterCommit(ctx, s.cache, s.logger, op, fn)
}

func validateTransitionInput(rule transitionRule, in transitionInput, now time.Time) error {
	if rule.requireNotes && strings.TrimSpace(in.Notes) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notes are required")
	}
	if in.Deadline != nil && !in.Deadline.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "deadline must be in the future")
	}
	return nil
}

// authorizeRecord applies ownership rules shared by reads and transitions.
func authorizeRecord(actor models.Actor, record *models.ApplicationRecord) error {
	if err := requireFaculty(actor); err != nil {
		return err
	}
	switch {
	case actor.Role == models.RoleStudent && record.StudentUserID != actor.ID:
		return appErrors.Clone(appErrors.ErrForbidden, "application belongs to another student")
	case actor.Role.FacultyScoped() && (record.StudentFacultyID == "" || record.StudentFacultyID != actor.FacultyID):
		return appErrors.Clone(appErrors.ErrForbidden, "application is outside your faculty")
	}
	return nil
}

// requireFaculty rejects faculty-scoped actors whose identity has no faculty.
func requireFaculty(actor models.Actor) error {
	if actor.Role.FacultyScoped() && actor.FacultyID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "account is not assigned to a faculty")
	}
	return nil
}

func stateConflict(verb string, current models.ApplicationStatus) error {
	return appErrors.Clone(appErrors.ErrStateConflict, fmt.Sprintf("cannot %s: current status is %s", verb, current))
}

func roleAllowed(role models.UserRole, allowed []models.UserRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

func statusIn(status models.ApplicationStatus, allowed []models.ApplicationStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

func transitionResult(app models.Application, created int) *dto.TransitionResult {
	result := &dto.TransitionResult{ID: app.ID, Status: app.Status, StagesCreated: created}
	switch app.Status {
	case models.ApplicationStatusAwaitingVerify:
		result.SubmittedAt = app.SubmittedAt
	case models.ApplicationStatusVerified:
		result.VerifiedAt = app.VerifiedAt
	case models.ApplicationStatusValidated:
		result.ValidatedAt = app.ValidatedAt
	case models.ApplicationStatusRejected:
		result.RejectedAt = app.RejectedAt
	case models.ApplicationStatusRevisionNeeded:
		result.RevisionRequestedAt = app.RevisionRequestedAt
		result.RevisionDeadline = app.RevisionDeadline
	}
	return result
}
