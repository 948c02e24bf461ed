package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RequireRole はAuthJWTが入れたroleが roles のどれかであることを確認する。
// AuthJWTより後ろに置くこと。
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "forbidden"
	if len(roles) == 1 {
		denied = roles[0] + " only"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxUserRoleKey).(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if !slices.Contains(roles, role) {
				return c.JSON(http.StatusForbidden, errorJSON(denied))
			}
			return next(c)
		}
	}
}

func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireRole(RoleAdmin)
}
