package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// DistributionDimension names a grouping column of the distribution queries.
type DistributionDimension string

const (
	DimensionFaculty    DistributionDimension = "faculty"
	DimensionDepartment DistributionDimension = "department"
	DimensionGender     DistributionDimension = "gender"
)

var dimensionColumns = map[DistributionDimension][2]string{
	DimensionFaculty:    {"f.id::text", "f.name"},
	DimensionDepartment: {"d.id::text", "d.name"},
	DimensionGender:     {"s.gender", "s.gender"},
}

const applicationScopeJoins = `FROM applications a
	JOIN students s ON s.id = a.student_id
	LEFT JOIN study_programs sp ON sp.id = s.study_program_id
	LEFT JOIN departments d ON d.id = sp.department_id
	LEFT JOIN faculties f ON f.id = d.faculty_id`

// AnalyticsRepository exposes read-only aggregate queries over applications.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// scopeClause renders the non-draft, year and faculty conditions shared by every aggregate.
func scopeClause(scope models.AnalyticsScope, args []interface{}, withYear bool) (string, []interface{}) {
	var builder strings.Builder
	builder.WriteString(" WHERE a.status <> 'DRAFT'")
	if withYear && scope.Year > 0 {
		args = append(args, scope.Year)
		builder.WriteString(fmt.Sprintf(" AND EXTRACT(YEAR FROM a.created_at) = $%d", len(args)))
	}
	if scope.FacultyID != "" {
		args = append(args, scope.FacultyID)
		builder.WriteString(fmt.Sprintf(" AND d.faculty_id = $%d", len(args)))
	}
	return builder.String(), args
}

// ApplicationTotals counts non-draft and validated applications in scope.
func (r *AnalyticsRepository) ApplicationTotals(ctx context.Context, scope models.AnalyticsScope) (int, int, error) {
	where, args := scopeClause(scope, nil, true)
	query := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE a.status = 'VALIDATED') AS validated ` + applicationScopeJoins + where
	var row struct {
		Total     int `db:"total"`
		Validated int `db:"validated"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return 0, 0, fmt.Errorf("count applications: %w", err)
	}
	return row.Total, row.Validated, nil
}

// ScholarshipCounts returns total, open and closed scholarships.
func (r *AnalyticsRepository) ScholarshipCounts(ctx context.Context) (int, int, int, error) {
	const query = `SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE is_active AND end_date > NOW()) AS open,
       COUNT(*) FILTER (WHERE end_date < NOW()) AS closed
	FROM scholarships`
	var row struct {
		Total  int `db:"total"`
		Open   int `db:"open"`
		Closed int `db:"closed"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, 0, fmt.Errorf("count scholarships: %w", err)
	}
	return row.Total, row.Open, row.Closed, nil
}

// ActiveStudents counts active students, restricted to the scope faculty when set.
func (r *AnalyticsRepository) ActiveStudents(ctx context.Context, scope models.AnalyticsScope) (int, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT COUNT(*) FROM students s
	LEFT JOIN study_programs sp ON sp.id = s.study_program_id
	LEFT JOIN departments d ON d.id = sp.department_id
	WHERE s.is_active`)
	var args []interface{}
	if scope.FacultyID != "" {
		args = append(args, scope.FacultyID)
		builder.WriteString(fmt.Sprintf(" AND d.faculty_id = $%d", len(args)))
	}
	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return count, nil
}

// MonthlyCounts groups applications of scope.Year by calendar month (1..12). Empty months are absent.
func (r *AnalyticsRepository) MonthlyCounts(ctx context.Context, scope models.AnalyticsScope) ([]models.PeriodCount, error) {
	where, args := scopeClause(scope, nil, true)
	query := `SELECT EXTRACT(MONTH FROM a.created_at)::int AS period, COUNT(*) AS total ` +
		applicationScopeJoins + where + ` GROUP BY period ORDER BY period`
	var rows []models.PeriodCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("monthly application counts: %w", err)
	}
	return rows, nil
}

// YearlyCounts groups applications by year within [fromYear, toYear]. Empty years are absent.
func (r *AnalyticsRepository) YearlyCounts(ctx context.Context, scope models.AnalyticsScope, fromYear, toYear int) ([]models.PeriodCount, error) {
	where, args := scopeClause(scope, []interface{}{fromYear, toYear}, false)
	query := `SELECT EXTRACT(YEAR FROM a.created_at)::int AS period, COUNT(*) AS total ` +
		applicationScopeJoins + where +
		` AND EXTRACT(YEAR FROM a.created_at) BETWEEN $1 AND $2 GROUP BY period ORDER BY period`
	var rows []models.PeriodCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("yearly application counts: %w", err)
	}
	return rows, nil
}

// StatusCounts counts non-draft applications per status. Statuses with no rows are absent.
func (r *AnalyticsRepository) StatusCounts(ctx context.Context, scope models.AnalyticsScope) ([]models.StatusCount, error) {
	where, args := scopeClause(scope, nil, true)
	query := `SELECT a.status, COUNT(*) AS total ` + applicationScopeJoins + where + ` GROUP BY a.status`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	return rows, nil
}

// Distribution groups applications by a dimension ordered by total desc then label asc.
func (r *AnalyticsRepository) Distribution(ctx context.Context, scope models.AnalyticsScope, dimension DistributionDimension, limit int) ([]models.DistributionRow, error) {
	columns, ok := dimensionColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown distribution dimension %q", dimension)
	}
	where, args := scopeClause(scope, nil, true)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT COALESCE(%[1]s, '') AS key, COALESCE(%[2]s, '') AS label, COUNT(*) AS total,
       COUNT(*) FILTER (WHERE a.status = 'VALIDATED') AS validated %[3]s%[4]s
	GROUP BY %[1]s, %[2]s ORDER BY total DESC, label ASC LIMIT $%[5]d`,
		columns[0], columns[1], applicationScopeJoins, where, len(args))
	var rows []models.DistributionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s distribution: %w", dimension, err)
	}
	return rows, nil
}

// TopFaculties returns faculties with at least minApplicants applications ordered by acceptance rate.
func (r *AnalyticsRepository) TopFaculties(ctx context.Context, scope models.AnalyticsScope, minApplicants, limit int) ([]models.DistributionRow, error) {
	where, args := scopeClause(scope, nil, true)
	args = append(args, minApplicants, limit)
	query := fmt.Sprintf(`SELECT f.id::text AS key, f.name AS label, COUNT(*) AS total,
       COUNT(*) FILTER (WHERE a.status = 'VALIDATED') AS validated %s%s AND f.id IS NOT NULL
	GROUP BY f.id, f.name
	HAVING COUNT(*) >= $%d
	ORDER BY COUNT(*) FILTER (WHERE a.status = 'VALIDATED') * 100.0 / NULLIF(COUNT(*), 0) DESC NULLS LAST, f.name ASC
	LIMIT $%d`, applicationScopeJoins, where, len(args)-1, len(args))
	var rows []models.DistributionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("top faculties: %w", err)
	}
	return rows, nil
}

// ListApplications returns one page of flattened applications and the total match count.
func (r *AnalyticsRepository) ListApplications(ctx context.Context, filter models.ApplicationListFilter) ([]models.ApplicationListRow, int, error) {
	where, args := scopeClause(filter.Scope, nil, true)
	var builder strings.Builder
	builder.WriteString(where)
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		builder.WriteString(fmt.Sprintf(" AND d.id = $%d", len(args)))
	}
	if filter.Gender != "" {
		args = append(args, filter.Gender)
		builder.WriteString(fmt.Sprintf(" AND s.gender = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, containsPattern(filter.Search))
		builder.WriteString(fmt.Sprintf(` AND (s.full_name ILIKE $%[1]d ESCAPE '\' OR s.nim ILIKE $%[1]d ESCAPE '\' OR sc.name ILIKE $%[1]d ESCAPE '\')`, len(args)))
	}
	from := applicationScopeJoins + `
	JOIN scholarship_schemas ss ON ss.id = a.schema_id
	JOIN scholarships sc ON sc.id = ss.scholarship_id`
	conditions := builder.String()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) `+from+conditions, args...); err != nil {
		return nil, 0, fmt.Errorf("count application listing: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	query := `SELECT a.id, a.status, s.full_name AS student_name, s.nim, COALESCE(s.gender, '') AS gender,
       COALESCE(sp.name, '') AS study_program, COALESCE(d.name, '') AS department, COALESCE(f.name, '') AS faculty,
       sc.name AS scholarship_name, ss.name AS schema_name, a.created_at ` + from + conditions +
		fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var rows []models.ApplicationListRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return rows, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns free text into an ILIKE substring pattern with wildcards escaped.
func containsPattern(raw string) string {
	return "%" + likeEscaper.Replace(raw) + "%"
}
