package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// ScholarshipEntityType is the entity_type recorded on scholarship activity logs.
const ScholarshipEntityType = "Scholarship"

type scholarshipStore interface {
	ListAll(ctx context.Context) ([]models.Scholarship, error)
	GetByID(ctx context.Context, id string) (*models.Scholarship, error)
	SetActiveWithLog(ctx context.Context, id string, active bool, updatedAt time.Time, log *models.ActivityLog) error
}

// ScholarshipService lists scholarship programs and opens or closes them.
type ScholarshipService struct {
	repo      scholarshipStore
	cache     *CacheService
	ttl       time.Duration
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewScholarshipService constructs the service. ttl applies to the cached list.
func NewScholarshipService(repo scholarshipStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ScholarshipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScholarshipService{
		repo:      repo,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns every scholarship through the cache.
func (s *ScholarshipService) List(ctx context.Context) ([]models.Scholarship, bool, error) {
	items, hit, err := GetOrCompute(ctx, s.cache, cachekey.AllScholarships, s.ttl, func(ctx context.Context) ([]models.Scholarship, error) {
		rows, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []models.Scholarship{}
		}
		return rows, nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to list scholarships")
	}
	return items, hit, nil
}

// UpdateStatus opens or closes a scholarship and drops the aggregates derived from it.
func (s *ScholarshipService) UpdateStatus(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.UpdateScholarshipStatusRequest) (*models.Scholarship, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "is_active is required")
	}
	if actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmins can change scholarship status")
	}

	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scholarship not found")
		}
		return nil, appErrors.Persistence(err, "failed to load scholarship")
	}

	now := s.now()
	state := "menutup"
	if *req.IsActive {
		state = "membuka"
	}
	log := newActivityLog(actor, meta, models.ActivityUpdateScholarship, ScholarshipEntityType, id,
		fmt.Sprintf("%s %s beasiswa %s", actor.DisplayName, state, item.Name), now)
	if err := s.repo.SetActiveWithLog(ctx, id, *req.IsActive, now, log); err != nil {
		return nil, appErrors.Persistence(err, "failed to update scholarship status")
	}
	item.IsActive = *req.IsActive
	item.UpdatedAt = now

	s.logger.Info("scholarship status updated", zap.String("scholarship_id", id), zap.Bool("is_active", item.IsActive), zap.String("actor_id", actor.ID))
	invalidateAfterCommit(ctx, s.cache, s.logger, "update_scholarship", func(ctx context.Context) (int, error) {
		removed, err := s.cache.InvalidateScholarshipDomain(ctx)
		if err != nil {
			return removed, err
		}
		feed, err := s.cache.InvalidateByPattern(ctx, cachekey.RecentActivities)
		return removed + feed, err
	})
	return item, nil
}
