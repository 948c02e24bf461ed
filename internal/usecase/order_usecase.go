package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// 購入者向けの注文参照
type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type PaymentOutput struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel,omitempty"`
	GatewayResponse string          `json:"gateway_response,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OrderOutput struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Status          string            `json:"status"`
	Total           decimal.Decimal   `json:"total"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	ShippingAddress string            `json:"shipping_address"`
	ShippingCity    string            `json:"shipping_city"`
	ShippingState   string            `json:"shipping_state"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
	Payments        []PaymentOutput   `json:"payments,omitempty"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string) ([]OrderOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return []OrderOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}

	//ページングはまず固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return dbError()
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError()
			}
			outs = append(outs, toOrderOutput(o, items, nil))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID string, orderID string) (OrderOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return OrderOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newError(ErrNotFound, "not found")
		}
		if err != nil {
			return dbError()
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return newError(ErrNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return dbError()
		}
		payments, err := r.Payments().ListByOrderID(ctx, orderID)
		if err != nil {
			return dbError()
		}

		out = toOrderOutput(o, items, payments)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem, payments []model.Payment) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Price:     it.Price,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal(),
		})
	}

	var outPayments []PaymentOutput
	for _, p := range payments {
		outPayments = append(outPayments, toPaymentOutput(p))
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Total:           o.Total,
		Email:           o.Email,
		Phone:           o.Phone,
		ShippingAddress: o.ShippingAddress,
		ShippingCity:    o.ShippingCity,
		ShippingState:   o.ShippingState,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
		Payments:        outPayments,
	}
}

func toPaymentOutput(p model.Payment) PaymentOutput {
	return PaymentOutput{
		Reference:       p.PaystackReference,
		Status:          string(p.Status),
		Amount:          p.Amount,
		Currency:        p.Currency,
		Channel:         p.PaymentMethod,
		GatewayResponse: p.GatewayResponse,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt,
	}
}
