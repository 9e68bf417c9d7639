package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vitalab/vitalab/internal/platform/httperr"
)

// RequireRole checks that the caller holds at least one of the given roles.
// Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return httperr.Authorization(fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
