package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrTimeout is returned when a request outlives its deadline.
var ErrTimeout = echo.NewHTTPError(http.StatusGatewayTimeout, "The backend took too long to answer. Please try again.")

// RequestTimeout bounds each request, and every backend call made while
// serving it, by timeout. Static assets are not bounded.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || strings.HasPrefix(c.Request().URL.Path, "/static/") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return ErrTimeout
			}
			return err
		}
	}
}
