package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleValidator  UserRole = "VALIDATOR"
	RoleVerifier   UserRole = "VERIFIKATOR"
	RoleStudent    UserRole = "MAHASISWA"
)

// FacultyScoped reports whether the role only sees data of its own faculty.
func (r UserRole) FacultyScoped() bool {
	return r == RoleVerifier
}

// Actor is the already-authenticated identity performing an operation.
type Actor struct {
	ID          string
	DisplayName string
	Role        UserRole
	FacultyID   string
}

// RequestMeta carries request metadata recorded on activity logs.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
