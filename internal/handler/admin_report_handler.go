package handler

import (
	"net/http"
	"strings"

	"marketplace/internal/domain/model"
	"marketplace/internal/repository"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 照合確認用の集計API
type AdminReportHandler struct {
	uc *usecase.ReportUsecase
}

func NewAdminReportHandler(uc *usecase.ReportUsecase) *AdminReportHandler {
	return &AdminReportHandler{uc: uc}
}

func (h *AdminReportHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/reports/summary", h.summary)
	admin.GET("/payments", h.payments)
	admin.GET("/orders/orphaned", h.orphans)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminReportHandler) summary(c echo.Context) error {
	out, err := h.uc.Summary(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminReportHandler) payments(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit < 1 || limit > 200 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	status := c.QueryParam("status")
	if status == "" {
		status = string(model.PaymentStatusPending)
	}

	out, err := h.uc.PaymentsByStatus(c.Request().Context(), status, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminReportHandler) orphans(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit < 1 || limit > 200 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}

	out, err := h.uc.OrphanedOrders(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminReportHandler) auditLogs(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit < 1 || limit > 200 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok || offset < 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}

	f := repository.AuditLogFilter{Limit: limit, Offset: offset}
	if v := strings.TrimSpace(c.QueryParam("actor_user_id")); v != "" {
		f.ActorUserID = &v
	}
	if v := strings.TrimSpace(c.QueryParam("action")); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := strings.TrimSpace(c.QueryParam("resource_type")); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := strings.TrimSpace(c.QueryParam("resource_id")); v != "" {
		f.ResourceID = &v
	}
	from, ok := queryTime(c, "from")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
	}
	f.CreatedFrom, f.CreatedTo = from, to

	out, err := h.uc.AuditLogs(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
