package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

var stageEditors = []models.UserRole{models.RoleValidator, models.RoleSuperAdmin}

type stageProgressStore interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.StageProgressDetail, error)
	GetByID(ctx context.Context, id string) (*models.StageProgressDetail, error)
	UpdateWithLog(ctx context.Context, progress *models.ApplicationStageProgress, log *models.ActivityLog) error
}

type applicationReader interface {
	GetByID(ctx context.Context, id string) (*models.ApplicationRecord, error)
}

// StageProgressService exposes the post-validation checklist of an application.
type StageProgressService struct {
	repo         stageProgressStore
	applications applicationReader
	cache        *CacheService
	logger       *zap.Logger
	validator    *validator.Validate
	now          func() time.Time
}

// NewStageProgressService constructs the service.
func NewStageProgressService(repo stageProgressStore, applications applicationReader, cache *CacheService, logger *zap.Logger) *StageProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageProgressService{
		repo:         repo,
		applications: applications,
		cache:        cache,
		logger:       logger,
		validator:    validator.New(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// List returns the checklist of one application ordered by stage order.
func (s *StageProgressService) List(ctx context.Context, applicationID string, actor models.Actor) ([]models.StageProgressDetail, error) {
	if err := s.authorize(ctx, applicationID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load stage progress")
	}
	if rows == nil {
		rows = []models.StageProgressDetail{}
	}
	return rows, nil
}

// Update changes the status or notes of one checklist row.
func (s *StageProgressService) Update(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.UpdateStageProgressRequest) (*models.StageProgressDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status is required")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid stage status %q", req.Status))
	}
	if !roleAllowed(actor.Role, stageEditors) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot update stage progress")
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage progress not found")
		}
		return nil, appErrors.Persistence(err, "failed to load stage progress")
	}
	if err := s.authorize(ctx, current.ApplicationID, actor); err != nil {
		return nil, err
	}

	now := s.now()
	updated := *current
	applyStageStatus(&updated.ApplicationStageProgress, req.Status, now)
	if req.Notes != nil {
		notes := strings.TrimSpace(*req.Notes)
		updated.Notes = &notes
	}
	updated.UpdatedAt = now

	log := newActivityLog(actor, meta, models.ActivityUpdateStageProgress, models.ApplicationEntityType, current.ApplicationID,
		fmt.Sprintf("%s memperbarui tahap %s menjadi %s", actor.DisplayName, current.StageName, req.Status), now)
	if err := s.repo.UpdateWithLog(ctx, &updated.ApplicationStageProgress, log); err != nil {
		return nil, appErrors.Persistence(err, "failed to update stage progress")
	}

	s.logger.Info("stage progress updated",
		zap.String("progress_id", id),
		zap.String("application_id", current.ApplicationID),
		zap.String("status", string(req.Status)),
		zap.String("actor_id", actor.ID),
	)
	invalidateAfterCommit(ctx, s.cache, s.logger, "update_stage_progress", func(ctx context.Context) (int, error) {
		return s.cache.InvalidateByPattern(ctx, cachekey.RecentActivities)
	})
	return &updated, nil
}

func (s *StageProgressService) authorize(ctx context.Context, applicationID string, actor models.Actor) error {
	record, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Persistence(err, "failed to load application")
	}
	return authorizeRecord(actor, record)
}

// applyStageStatus stamps started_at on first entry into progress and completed_at on terminal states.
func applyStageStatus(progress *models.ApplicationStageProgress, status models.StageProgressStatus, now time.Time) {
	progress.Status = status
	if status == models.StageProgressInProgress && progress.StartedAt == nil {
		progress.StartedAt = &now
	}
	if status.Terminal() {
		if progress.StartedAt == nil {
			progress.StartedAt = &now
		}
		progress.CompletedAt = &now
		return
	}
	progress.CompletedAt = nil
}
