package middleware // middleware provides shared request processing for handlers

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-hold/internal/apperror"
)

// RequireRole enforces that the authenticated user carries one of roles in
// the token's "role" claim.  Identity must run first.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !allowed[RoleFrom(c)] {
                return apperror.Forbidden("forbidden")
            }
            return next(c)
        }
    }
}
