package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// RBAC enforces a role allow-list on a route. Ownership and faculty checks stay in the services.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowedRoles[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Role groups used by the route table.
var (
	Reviewers      = []models.UserRole{models.RoleVerifier, models.RoleValidator, models.RoleSuperAdmin}
	Verifiers      = []models.UserRole{models.RoleVerifier, models.RoleSuperAdmin}
	Validators     = []models.UserRole{models.RoleValidator, models.RoleSuperAdmin}
	Authenticated  = []models.UserRole{models.RoleVerifier, models.RoleValidator, models.RoleSuperAdmin, models.RoleStudent}
	StudentsOnly   = []models.UserRole{models.RoleStudent}
	SuperAdminOnly = []models.UserRole{models.RoleSuperAdmin}
)
