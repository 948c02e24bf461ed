package server

import (
	"marketplace/internal/bootstrap"
	"marketplace/internal/config"
	"marketplace/internal/handler"
	mw "marketplace/internal/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, cfg config.Config, app *bootstrap.App) {
	auth := mw.AuthJWT(cfg.JWTSecret)
	limit := paymentRateLimiter(cfg.RateLimitPerSecond)

	handler.NewOrderHandler(app.Checkout, app.Orders).RegisterRoutes(e, auth, limit)
	handler.NewPaymentHandler(app.Checkout, app.Settlement).RegisterRoutes(e, auth, limit)
	handler.NewVendorHandler(app.Vendors, app.Payout).RegisterRoutes(e, auth)

	admin := e.Group("/admin")
	admin.Use(auth)
	admin.Use(mw.AdminRoleGuard())

	handler.NewAdminOrderHandler(app.AdminOrder).RegisterRoutes(admin)
	handler.NewAdminVendorHandler(app.Vendors).RegisterRoutes(admin)
	handler.NewAdminReportHandler(app.Reports).RegisterRoutes(admin)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, handler.SuccessResponse{Message: "ok"})
	})
}
