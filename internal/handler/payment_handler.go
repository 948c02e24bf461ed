package handler

import (
	"io"
	"net/http"
	"strings"

	"marketplace/internal/infra/paystack"
	"marketplace/internal/usecase"

	"github.com/labstack/echo/v4"
)

// webhook本文の上限
const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	checkout   *usecase.CheckoutUsecase
	settlement *usecase.SettlementUsecase
}

func NewPaymentHandler(checkout *usecase.CheckoutUsecase, settlement *usecase.SettlementUsecase) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, settlement: settlement}
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc, limit echo.MiddlewareFunc) {
	g := e.Group("/payments")
	g.Use(auth, limit)
	g.POST("/initialize", h.initialize)
	g.POST("/verify", h.verify)

	// 署名で認証するのでJWTは付けない
	e.POST("/webhooks/paystack", h.webhook)
}

func (h *PaymentHandler) initialize(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req usecase.InitializePaymentInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.checkout.InitializePayment(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) verify(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if strings.TrimSpace(req.Reference) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "reference is required"})
	}

	out, err := h.settlement.VerifyForBuyer(c.Request().Context(), userID, req.Reference)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 署名検証は生のbodyに対して行うのでBindしない
func (h *PaymentHandler) webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
	}

	sig := c.Request().Header.Get(paystack.SignatureHeader)
	if err := h.settlement.HandleWebhook(c.Request().Context(), body, sig); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, WebhookAck{Received: true})
}
