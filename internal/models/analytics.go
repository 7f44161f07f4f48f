package models

import "time"

// AnalyticsScope holds the inputs every aggregate is keyed on. FacultyID is the effective
// faculty filter: pinned for faculty-scoped roles, optional for the rest.
type AnalyticsScope struct {
	Year      int
	Role      UserRole
	FacultyID string
}

// AnalyticsSummary is the headline counter block of the dashboard.
type AnalyticsSummary struct {
	TotalApplications     int      `json:"total_applications"`
	ValidatedApplications int      `json:"validated_applications"`
	AcceptanceRate        *float64 `json:"acceptance_rate"`
	TotalScholarships     int      `json:"total_scholarships"`
	OpenScholarships      int      `json:"open_scholarships"`
	ClosedScholarships    int      `json:"closed_scholarships"`
	ActiveStudents        int      `json:"active_students"`
}

// PeriodCount is a raw grouped count as returned by trend queries.
type PeriodCount struct {
	Period int `db:"period"`
	Total  int `db:"total"`
}

// TrendPoint is one bucket of a zero-filled trend series.
type TrendPoint struct {
	Period int    `json:"period"`
	Label  string `json:"label"`
	Value  int    `json:"value"`
}

// StatusCount is the number of applications in one workflow status.
type StatusCount struct {
	Status ApplicationStatus `db:"status" json:"status"`
	Label  string            `db:"-" json:"label"`
	Color  string            `db:"-" json:"color"`
	Count  int               `db:"total" json:"count"`
}

// DistributionRow is one group of a distribution with its acceptance rate.
type DistributionRow struct {
	Key            string   `db:"key" json:"key"`
	Label          string   `db:"label" json:"label"`
	Total          int      `db:"total" json:"total"`
	Validated      int      `db:"validated" json:"validated"`
	AcceptanceRate *float64 `db:"-" json:"acceptance_rate"`
}

// ApplicationDistribution groups the per-dimension breakdowns.
type ApplicationDistribution struct {
	Faculties   []DistributionRow `json:"faculties"`
	Departments []DistributionRow `json:"departments"`
	Genders     []DistributionRow `json:"genders"`
}

// ApplicationListFilter narrows the flattened application listing.
type ApplicationListFilter struct {
	Scope        AnalyticsScope
	DepartmentID string
	Gender       string
	Search       string
	Page         int
	PageSize     int
}

// ApplicationListRow is an application flattened with its student, program and scholarship labels.
type ApplicationListRow struct {
	ID              string            `db:"id" json:"id"`
	Status          ApplicationStatus `db:"status" json:"status"`
	StudentName     string            `db:"student_name" json:"student_name"`
	NIM             string            `db:"nim" json:"nim"`
	Gender          string            `db:"gender" json:"gender"`
	StudyProgram    string            `db:"study_program" json:"study_program"`
	Department      string            `db:"department" json:"department"`
	Faculty         string            `db:"faculty" json:"faculty"`
	ScholarshipName string            `db:"scholarship_name" json:"scholarship_name"`
	SchemaName      string            `db:"schema_name" json:"schema_name"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// ApplicationListPage is a cached page of the listing.
type ApplicationListPage struct {
	Items      []ApplicationListRow `json:"items"`
	Pagination Pagination           `json:"pagination"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheKeysInvalidated     uint64    `json:"cache_keys_invalidated"`
	Transitions              uint64    `json:"transitions"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
