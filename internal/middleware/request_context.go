package middleware

import (
	"marketplace/internal/pkg/logging"

	"github.com/labstack/echo/v4"
)

// RequestContext はechoのRequestIDをslogのcontextへ移す。
// middleware.RequestID の後に置く。
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
