package middleware

// identity.go holds helpers shared across middleware files for reading the
// caller attached by JWTAuth or OptionalJWT.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/rental-markup/internal/identity"
)

// userID returns the acting user as a string for use in keys, or "anon"
// when the request carries no principal.
func userID(c echo.Context) string {
    if p, ok := identity.FromContext(c.Request().Context()); ok {
        return strconv.FormatUint(p.UserID, 10)
    }
    return "anon"
}

// role returns the caller's role, or "" for anonymous requests.
func role(c echo.Context) string {
    if p, ok := identity.FromContext(c.Request().Context()); ok {
        return p.Role
    }
    return ""
}
