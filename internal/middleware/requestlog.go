package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"

    "github.com/iliyamo/rental-markup/internal/logger"
)

// RequestLogger writes one structured line per request through the global
// zap logger.  Server errors are logged at error level so they reach Sentry
// when it is configured.
func RequestLogger() echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:   true,
        LogURIPath:  true,
        LogStatus:   true,
        LogLatency:  true,
        LogRemoteIP: true,
        LogError:    true,
        HandleError: true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            fields := []zap.Field{
                zap.String("method", v.Method),
                zap.String("path", v.URIPath),
                zap.String("route", c.Path()),
                zap.Int("status", v.Status),
                zap.Duration("latency", v.Latency),
                zap.String("remote_ip", v.RemoteIP),
                zap.String("user", userID(c)),
            }
            log := logger.FromContext(c.Request().Context())
            switch {
            case v.Status >= 500:
                log.Error("request", append(fields, zap.Error(v.Error))...)
            case v.Error != nil:
                log.Info("request", append(fields, zap.Error(v.Error))...)
            default:
                log.Info("request", fields...)
            }
            return nil
        },
    })
}

// Recover converts panics into 500 responses and logs the stack.
func Recover() echo.MiddlewareFunc {
    return echomw.RecoverWithConfig(echomw.RecoverConfig{
        LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
            logger.FromContext(c.Request().Context()).Error("panic recovered",
                zap.Error(err), zap.ByteString("stack", stack), zap.String("path", c.Request().URL.Path))
            return err
        },
    })
}
