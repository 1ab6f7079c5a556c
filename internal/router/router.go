package router // package router defines how HTTP routes are registered for the API

import (
	"strings"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/rental-markup/internal/handler"    // handlers for markups, landing pages and health
	"github.com/iliyamo/rental-markup/internal/middleware" // JWT authentication, roles, cache and rate limiting
	"github.com/iliyamo/rental-markup/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: liveness and readiness checks.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready)
}

// RegisterMarkup registers the host-facing markup endpoints under /v1.  All
// of them require a valid access token.  Whether the caller may add a
// markup is decided by the markup engine from the users table, not from
// the token's role claim, so no role gate is applied here except for the
// admin listing.
func RegisterMarkup(e *echo.Echo, h *handler.MarkupHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/listings/:type/:id")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.POST("/markup", h.Apply, limit)
	g.DELETE("/markup", h.Remove, limit)
	g.GET("/markup", h.Current)
	g.GET("/markup/link", h.Link)
	g.GET("/price", h.Price)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	admin.GET("/listings/:type/:id/markups", h.AdminList)
}

// RegisterLanding registers the routes a shared markup link resolves to,
// once per distinct link prefix.  The landing page is public, rate limited
// and response cached; a bearer token, when sent, only identifies the
// visitor to the limiter.  Confirming the offer requires a session.
func RegisterLanding(e *echo.Echo, h *handler.LandingHandler, prefixes []string, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	seen := map[string]bool{}
	for _, p := range prefixes {
		p = "/" + strings.Trim(p, "/")
		if p == "/" || seen[p] {
			continue
		}
		seen[p] = true
		e.GET(p+"/:token", h.Show, middleware.OptionalJWT(jwtSecret), limit, cache)
		e.POST(p+"/:token/confirm", h.Confirm, middleware.JWTAuth(jwtSecret), limit)
	}
}
