package dto

// AnalyticsQuery mirrors the query string accepted by analytics endpoints.
type AnalyticsQuery struct {
	Year         int
	FacultyID    string
	DepartmentID string
	Gender       string
	Search       string
	Page         int
	PageSize     int
}
