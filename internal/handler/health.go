package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready reports 503 until db answers a ping.  A nil db (memory store) is
// always ready.
func Ready(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db == nil {
            return c.String(http.StatusOK, "ok")
        }
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := db.PingContext(ctx); err != nil {
            return c.String(http.StatusServiceUnavailable, "database unavailable")
        }
        return c.String(http.StatusOK, "ok")
    }
}
