package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that rejects callers lacking all of the
// given roles. Admin passes everything.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles)+1)
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	allowed[RoleAdmin] = struct{}{}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, r := range RolesFromContext(c.Request().Context()) {
				if _, ok := allowed[r]; ok {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}
