package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "fmt"
    "net/http" // HTTP status codes for responses
    "strconv"
    "strings" // string utilities for prefix checking and trimming

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/rental-markup/internal/identity"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// attaches the caller as an identity.Principal on the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers and
// the markup engine read the acting user through identity.FromContext; the
// raw values are also stored under `c.Get("user_id")` and `c.Get("role")`.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header should start with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            p, err := parsePrincipal(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
            }
            attach(c, p)
            return next(c)
        }
    }
}

// OptionalJWT behaves like JWTAuth when a Bearer token is present and lets
// anonymous requests through untouched.  A malformed token is still
// rejected so that a client never silently loses its identity.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if auth == "" {
                return next(c)
            }
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            p, err := parsePrincipal(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
            }
            attach(c, p)
            return next(c)
        }
    }
}

// parsePrincipal verifies an HS256 token and converts its sub and role
// claims into a Principal.
func parsePrincipal(secret, raw string) (identity.Principal, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject anything that is not HMAC signed.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return identity.Principal{}, fmt.Errorf("invalid token")
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return identity.Principal{}, fmt.Errorf("invalid claims")
    }
    uid, ok := subjectID(claims["sub"])
    if !ok {
        return identity.Principal{}, fmt.Errorf("invalid subject")
    }
    role, _ := claims["role"].(string)
    return identity.Principal{UserID: uid, Role: role}, nil
}

// subjectID accepts the sub claim as a JSON number or a decimal string.
func subjectID(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != float64(uint64(t)) {
            return 0, false
        }
        return uint64(t), true
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// attach stores p on both the echo context and the request context.
func attach(c echo.Context, p identity.Principal) {
    c.Set("user_id", p.UserID)
    c.Set("role", p.Role)
    req := c.Request()
    c.SetRequest(req.WithContext(identity.WithPrincipal(req.Context(), p)))
}
