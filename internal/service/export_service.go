package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/export"
)

const (
	defaultExportMaxRows = 5000
	// ExportEntityType is the entity_type recorded on export activity logs.
	ExportEntityType = "Export"
)

var exportHeaders = []string{"No", "Nama", "NIM", "Jenis Kelamin", "Program Studi", "Jurusan", "Fakultas", "Beasiswa", "Skema", "Status", "Tanggal Daftar"}

type applicationLister interface {
	ListApplications(ctx context.Context, filter models.ApplicationListFilter) ([]models.ApplicationListRow, int, error)
}

type activityWriter interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders the application listing as a downloadable document.
type ExportService struct {
	applications applicationLister
	activities   activityWriter
	cache        *CacheService
	logger       *zap.Logger
	cfg          ExportConfig
	now          func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(applications applicationLister, activities activityWriter, cache *CacheService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultExportMaxRows
	}
	return &ExportService{
		applications: applications,
		activities:   activities,
		cache:        cache,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ExportApplications renders the applications visible in scope using the requested format.
func (s *ExportService) ExportApplications(ctx context.Context, actor models.Actor, meta models.RequestMeta, scope models.AnalyticsScope, filter models.ApplicationListFilter, rawFormat string) (*ExportResult, error) {
	if actor.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students cannot export applications")
	}
	if err := requireFaculty(actor); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	renderer, err := export.NewRenderer(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	filter.Scope = scope
	filter.Page = 1
	filter.PageSize = s.cfg.MaxRows
	rows, total, err := s.applications.ListApplications(ctx, filter)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to load applications for export")
	}
	if total > len(rows) {
		s.logger.Warn("export truncated", zap.Int("total", total), zap.Int("max_rows", s.cfg.MaxRows))
	}

	now := s.now()
	payload, err := renderer.Render(buildApplicationDataset(rows, scope, now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	result := &ExportResult{
		Filename:    buildExportFilename("applications", scope, now, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
		Rows:        len(rows),
	}

	log := newActivityLog(actor, meta, models.ActivityExportApplications, ExportEntityType, result.Filename,
		fmt.Sprintf("%s mengekspor %d data pendaftaran (%s)", actor.DisplayName, len(rows), format), now)
	if err := s.activities.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record export activity", zap.Error(err))
	} else {
		invalidateAfterCommit(ctx, s.cache, s.logger, "export", func(ctx context.Context) (int, error) {
			return s.cache.InvalidateByPattern(ctx, cachekey.RecentActivities)
		})
	}
	return result, nil
}

func buildApplicationDataset(rows []models.ApplicationListRow, scope models.AnalyticsScope, now time.Time) export.Dataset {
	title := "Data Pendaftaran Beasiswa"
	if scope.Year > 0 {
		title = fmt.Sprintf("%s %d", title, scope.Year)
	}
	dataRows := make([][]string, 0, len(rows))
	for i, row := range rows {
		dataRows = append(dataRows, []string{
			fmt.Sprintf("%d", i+1),
			row.StudentName,
			row.NIM,
			row.Gender,
			row.StudyProgram,
			row.Department,
			row.Faculty,
			row.ScholarshipName,
			row.SchemaName,
			string(row.Status),
			formatReportTime(row.CreatedAt),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("%s (dibuat %s)", title, now.Format("02-01-2006 15:04")),
		Headers: exportHeaders,
		Rows:    dataRows,
	}
}

func buildExportFilename(prefix string, scope models.AnalyticsScope, now time.Time, ext string) string {
	parts := []string{prefix}
	if scope.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", scope.Year))
	}
	if scope.FacultyID != "" {
		parts = append(parts, sanitizeFilename(scope.FacultyID))
	}
	parts = append(parts, now.Format("20060102_150405"))
	return fmt.Sprintf("%s.%s", strings.Join(parts, "_"), ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func formatReportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
