package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinsys/clinsys/internal/platform/gateway"
)

// RequestIDHeader is read from and echoed on every request.
const RequestIDHeader = gateway.RequestIDHeader

// RequestIDKey is the echo context key holding the id.
const RequestIDKey = "request_id"

// RequestID assigns each request an id, reusing the caller's when present.
// The id is stored on the echo context and on the request context so
// backend calls made while serving the request carry it too.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(RequestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			c.SetRequest(req.WithContext(gateway.WithRequestID(req.Context(), rid)))
			return next(c)
		}
	}
}
