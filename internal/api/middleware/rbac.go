package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tasktracker/task-system/internal/core/domain"
)

// RBAC enforces role-based access control. It must run after Auth.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !user.HasRole(allowedRoles...) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
