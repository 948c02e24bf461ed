package handler

import (
	"net/http"
	"strings"

	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminVendorHandler struct {
	uc *usecase.VendorUsecase
}

func NewAdminVendorHandler(uc *usecase.VendorUsecase) *AdminVendorHandler {
	return &AdminVendorHandler{uc: uc}
}

func (h *AdminVendorHandler) RegisterRoutes(admin *echo.Group) {
	admin.POST("/vendors/:id/approve", h.approve)
	admin.POST("/vendors/:id/reject", h.reject)
	admin.GET("/vendors/unprovisioned", h.unprovisioned)
}

func (h *AdminVendorHandler) approve(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Approve(c.Request().Context(), adminID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminVendorHandler) reject(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Reject(c.Request().Context(), adminID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminVendorHandler) unprovisioned(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit < 1 || limit > 200 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}

	out, err := h.uc.ListUnprovisioned(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
