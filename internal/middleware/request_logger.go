package middleware

import (
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-hold/internal/apperror"
)

// RequestLogger writes one structured line per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)

            req := c.Request()
            res := c.Response()
            // The error handler has not run yet; report its status.
            status := res.Status
            if err != nil {
                status = statusOf(err)
            }

            fields := []zap.Field{
                zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
                zap.String("method", req.Method),
                zap.String("path", req.URL.Path),
                zap.String("query", req.URL.RawQuery),
                zap.Int("status", status),
                zap.Int64("size", res.Size),
                zap.Duration("latency", time.Since(start)),
                zap.String("remote_ip", c.RealIP()),
            }
            if p, ok := PrincipalFrom(c); ok {
                fields = append(fields, zap.String("principal", p.String()))
            }

            switch {
            case status >= 500:
                log.Error("server error", append(fields, zap.Error(err))...)
            case status >= 400:
                log.Warn("client error", append(fields, zap.Error(err))...)
            default:
                log.Info("request completed", fields...)
            }
            return err
        }
    }
}

func statusOf(err error) int {
    if ae, ok := apperror.As(err); ok {
        return ae.StatusCode()
    }
    var he *echo.HTTPError
    if errors.As(err, &he) {
        return he.Code
    }
    return http.StatusInternalServerError
}
