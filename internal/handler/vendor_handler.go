package handler

import (
	"net/http"
	"strings"

	"marketplace/internal/middleware"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type VendorHandler struct {
	vendors *usecase.VendorUsecase
	payout  *usecase.PayoutUsecase
}

func NewVendorHandler(vendors *usecase.VendorUsecase, payout *usecase.PayoutUsecase) *VendorHandler {
	return &VendorHandler{vendors: vendors, payout: payout}
}

func (h *VendorHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc) {
	g := e.Group("/vendors")
	g.Use(auth)
	g.PUT("/me/bank-details", h.updateBankDetails, middleware.RequireRole(middleware.RoleVendor))

	// 受取先の作成は管理者のみ
	g.POST("/:id/provision-subaccount", h.provision, middleware.AdminRoleGuard())
}

func (h *VendorHandler) updateBankDetails(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req usecase.BankDetailsInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.vendors.UpdateBankDetails(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// provision は承認済みベンダーの受取先を作る。
// 200 {subaccount_code, created} / 400 未承認・口座不備・未対応銀行・ゲートウェイ拒否 /
// 404 ベンダーなし / 502 ゲートウェイ不通
func (h *VendorHandler) provision(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.payout.Provision(c.Request().Context(), adminID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
