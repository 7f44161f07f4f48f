package service

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const (
	distributionCap      = 10
	topFacultiesCap      = 5
	topFacultiesMinimum  = 5
	defaultListingSize   = 20
	defaultYearlyWindow  = 5
	defaultListingMaxCap = 100
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	ApplicationTotals(ctx context.Context, scope models.AnalyticsScope) (int, int, error)
	ScholarshipCounts(ctx context.Context) (int, int, int, error)
	ActiveStudents(ctx context.Context, scope models.AnalyticsScope) (int, error)
	MonthlyCounts(ctx context.Context, scope models.AnalyticsScope) ([]models.PeriodCount, error)
	YearlyCounts(ctx context.Context, scope models.AnalyticsScope, fromYear, toYear int) ([]models.PeriodCount, error)
	StatusCounts(ctx context.Context, scope models.AnalyticsScope) ([]models.StatusCount, error)
	Distribution(ctx context.Context, scope models.AnalyticsScope, dimension repository.DistributionDimension, limit int) ([]models.DistributionRow, error)
	TopFaculties(ctx context.Context, scope models.AnalyticsScope, minApplicants, limit int) ([]models.DistributionRow, error)
	ListApplications(ctx context.Context, filter models.ApplicationListFilter) ([]models.ApplicationListRow, int, error)
}

// AnalyticsOptions tunes the aggregator.
type AnalyticsOptions struct {
	CacheTTL         time.Duration
	YearlyWindow     int
	ListingPageLimit int
}

var monthLabels = [12]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}

type statusDisplay struct {
	label string
	color string
}

var statusDisplays = map[models.ApplicationStatus]statusDisplay{
	models.ApplicationStatusAwaitingVerify: {label: "Menunggu Verifikasi", color: "#F59E0B"},
	models.ApplicationStatusRevisionNeeded: {label: "Perlu Revisi", color: "#8B5CF6"},
	models.ApplicationStatusVerified:       {label: "Terverifikasi", color: "#3B82F6"},
	models.ApplicationStatusValidated:      {label: "Tervalidasi", color: "#10B981"},
	models.ApplicationStatusRejected:       {label: "Ditolak", color: "#EF4444"},
}

// AnalyticsService serves read-only aggregates, always through the cache.
// The boolean returned by each aggregate reports a cache hit.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	opts    AnalyticsOptions
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, opts AnalyticsOptions) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.YearlyWindow <= 0 {
		opts.YearlyWindow = defaultYearlyWindow
	}
	if opts.ListingPageLimit <= 0 {
		opts.ListingPageLimit = defaultListingMaxCap
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, opts: opts, now: time.Now}
}

// Scope derives the aggregate scope for an actor. Faculty-scoped roles are pinned to their faculty
// and refused when their identity carries none.
func (s *AnalyticsService) Scope(actor models.Actor, query dto.AnalyticsQuery) (models.AnalyticsScope, error) {
	if err := requireFaculty(actor); err != nil {
		return models.AnalyticsScope{}, err
	}
	scope := models.AnalyticsScope{Year: query.Year, Role: actor.Role, FacultyID: query.FacultyID}
	if actor.Role.FacultyScoped() {
		scope.FacultyID = actor.FacultyID
	}
	return scope, nil
}

func keyScope(scope models.AnalyticsScope) cachekey.Scope {
	return cachekey.Scope{Year: scope.Year, Role: string(scope.Role), FacultyID: scope.FacultyID}
}

// Summary returns the headline counters.
func (s *AnalyticsService) Summary(ctx context.Context, scope models.AnalyticsScope) (*models.AnalyticsSummary, bool, error) {
	key := cachekey.Analytics(cachekey.FamilySummary, keyScope(scope))
	summary, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) (*models.AnalyticsSummary, error) {
		defer s.observe("analytics_summary", time.Now())
		total, validated, err := s.repo.ApplicationTotals(ctx, scope)
		if err != nil {
			return nil, err
		}
		scholarships, open, closed, err := s.repo.ScholarshipCounts(ctx)
		if err != nil {
			return nil, err
		}
		students, err := s.repo.ActiveStudents(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &models.AnalyticsSummary{
			TotalApplications:     total,
			ValidatedApplications: validated,
			AcceptanceRate:        acceptanceRate(validated, total),
			TotalScholarships:     scholarships,
			OpenScholarships:      open,
			ClosedScholarships:    closed,
			ActiveStudents:        students,
		}, nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute summary")
	}
	return summary, hit, nil
}

// MonthlyTrend returns twelve calendar-ordered buckets for the scope year (current year by default).
func (s *AnalyticsService) MonthlyTrend(ctx context.Context, scope models.AnalyticsScope) ([]models.TrendPoint, bool, error) {
	if scope.Year <= 0 {
		scope.Year = s.now().Year()
	}
	key := cachekey.Analytics(cachekey.FamilyTrend, keyScope(scope), "monthly")
	points, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.TrendPoint, error) {
		defer s.observe("analytics_monthly_trend", time.Now())
		rows, err := s.repo.MonthlyCounts(ctx, scope)
		if err != nil {
			return nil, err
		}
		return fillMonthly(rows), nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute monthly trend")
	}
	return points, hit, nil
}

// YearlyTrend returns a fixed window of years ending at the scope year, oldest first.
func (s *AnalyticsService) YearlyTrend(ctx context.Context, scope models.AnalyticsScope) ([]models.TrendPoint, bool, error) {
	if scope.Year <= 0 {
		scope.Year = s.now().Year()
	}
	window := s.opts.YearlyWindow
	key := cachekey.Analytics(cachekey.FamilyTrend, keyScope(scope), "yearly", cachekey.Param("w", strconv.Itoa(window)))
	points, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.TrendPoint, error) {
		defer s.observe("analytics_yearly_trend", time.Now())
		from := scope.Year - window + 1
		rows, err := s.repo.YearlyCounts(ctx, scope, from, scope.Year)
		if err != nil {
			return nil, err
		}
		return fillYearly(rows, from, scope.Year), nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute yearly trend")
	}
	return points, hit, nil
}

// StatusDistribution returns one entry per non-draft status in workflow order.
func (s *AnalyticsService) StatusDistribution(ctx context.Context, scope models.AnalyticsScope) ([]models.StatusCount, bool, error) {
	key := cachekey.Analytics(cachekey.FamilyStatus, keyScope(scope))
	counts, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.StatusCount, error) {
		defer s.observe("analytics_status", time.Now())
		rows, err := s.repo.StatusCounts(ctx, scope)
		if err != nil {
			return nil, err
		}
		return fillStatuses(rows), nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute status distribution")
	}
	return counts, hit, nil
}

// Distribution breaks applications down by faculty, department and gender.
func (s *AnalyticsService) Distribution(ctx context.Context, scope models.AnalyticsScope) (*models.ApplicationDistribution, bool, error) {
	key := cachekey.Analytics(cachekey.FamilyDistribution, keyScope(scope))
	result, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) (*models.ApplicationDistribution, error) {
		defer s.observe("analytics_distribution", time.Now())
		out := &models.ApplicationDistribution{}
		targets := []struct {
			dimension repository.DistributionDimension
			dest      *[]models.DistributionRow
		}{
			{repository.DimensionFaculty, &out.Faculties},
			{repository.DimensionDepartment, &out.Departments},
			{repository.DimensionGender, &out.Genders},
		}
		for _, target := range targets {
			rows, err := s.repo.Distribution(ctx, scope, target.dimension, distributionCap)
			if err != nil {
				return nil, err
			}
			*target.dest = rankDistribution(rows, distributionCap)
		}
		return out, nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute distribution")
	}
	return result, hit, nil
}

// TopFaculties returns the faculties with the best acceptance rate among those with enough applicants.
func (s *AnalyticsService) TopFaculties(ctx context.Context, scope models.AnalyticsScope) ([]models.DistributionRow, bool, error) {
	key := cachekey.Analytics(cachekey.FamilyPerformance, keyScope(scope), "faculty")
	rows, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.DistributionRow, error) {
		defer s.observe("analytics_top_faculties", time.Now())
		rows, err := s.repo.TopFaculties(ctx, scope, topFacultiesMinimum, topFacultiesCap)
		if err != nil {
			return nil, err
		}
		return rankPerformance(rows, topFacultiesMinimum, topFacultiesCap), nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to compute top faculties")
	}
	return rows, hit, nil
}

// ListApplications returns a page of flattened applications.
func (s *AnalyticsService) ListApplications(ctx context.Context, scope models.AnalyticsScope, query dto.AnalyticsQuery) (*models.ApplicationListPage, bool, error) {
	if query.Gender != "" && query.Gender != "L" && query.Gender != "P" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "gender must be L or P")
	}
	filter := models.ApplicationListFilter{
		Scope:        scope,
		DepartmentID: query.DepartmentID,
		Gender:       query.Gender,
		Search:       query.Search,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultListingSize
	}
	if filter.PageSize > s.opts.ListingPageLimit {
		filter.PageSize = s.opts.ListingPageLimit
	}

	key := cachekey.Analytics(cachekey.FamilyListing, keyScope(scope),
		cachekey.Param("d", filter.DepartmentID),
		cachekey.Param("g", filter.Gender),
		cachekey.Param("q", filter.Search),
		cachekey.Param("p", strconv.Itoa(filter.Page)),
		cachekey.Param("s", strconv.Itoa(filter.PageSize)),
	)
	page, hit, err := GetOrCompute(ctx, s.cache, key, s.opts.CacheTTL, func(ctx context.Context) (*models.ApplicationListPage, error) {
		defer s.observe("analytics_listing", time.Now())
		rows, total, err := s.repo.ListApplications(ctx, filter)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []models.ApplicationListRow{}
		}
		return &models.ApplicationListPage{
			Items:      rows,
			Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
		}, nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to list applications")
	}
	return page, hit, nil
}

// SystemMetrics returns the instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func (s *AnalyticsService) observe(label string, start time.Time) {
	s.metrics.ObserveDBQuery(label, time.Since(start))
}

// acceptanceRate is validated*100/total rounded to one decimal, or nil when total is zero.
func acceptanceRate(validated, total int) *float64 {
	if total == 0 {
		return nil
	}
	rate := math.Round(float64(validated)*1000/float64(total)) / 10
	return &rate
}

func fillMonthly(rows []models.PeriodCount) []models.TrendPoint {
	points := make([]models.TrendPoint, 12)
	for i := range points {
		points[i] = models.TrendPoint{Period: i + 1, Label: monthLabels[i]}
	}
	for _, row := range rows {
		if row.Period >= 1 && row.Period <= 12 {
			points[row.Period-1].Value = row.Total
		}
	}
	return points
}

func fillYearly(rows []models.PeriodCount, from, to int) []models.TrendPoint {
	points := make([]models.TrendPoint, 0, to-from+1)
	index := make(map[int]int, len(rows))
	for _, row := range rows {
		index[row.Period] = row.Total
	}
	for year := from; year <= to; year++ {
		points = append(points, models.TrendPoint{Period: year, Label: strconv.Itoa(year), Value: index[year]})
	}
	return points
}

func fillStatuses(rows []models.StatusCount) []models.StatusCount {
	counts := make(map[models.ApplicationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	out := make([]models.StatusCount, 0, len(models.ReviewStatuses))
	for _, status := range models.ReviewStatuses {
		display := statusDisplays[status]
		out = append(out, models.StatusCount{Status: status, Label: display.label, Color: display.color, Count: counts[status]})
	}
	return out
}

// rankDistribution orders by total desc then label asc, caps, and fills acceptance rates.
func rankDistribution(rows []models.DistributionRow, limit int) []models.DistributionRow {
	ranked := append([]models.DistributionRow{}, rows...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Label < ranked[j].Label
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].AcceptanceRate = acceptanceRate(ranked[i].Validated, ranked[i].Total)
	}
	return ranked
}

// rankPerformance keeps groups with at least minimum applicants, ordered by acceptance rate desc.
func rankPerformance(rows []models.DistributionRow, minimum, limit int) []models.DistributionRow {
	ranked := make([]models.DistributionRow, 0, len(rows))
	for _, row := range rows {
		if row.Total < minimum {
			continue
		}
		row.AcceptanceRate = acceptanceRate(row.Validated, row.Total)
		ranked = append(ranked, row)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].AcceptanceRate, ranked[j].AcceptanceRate
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		if *a != *b {
			return *a > *b
		}
		return ranked[i].Label < ranked[j].Label
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
