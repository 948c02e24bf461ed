package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 同じreferenceがすでにある
var ErrDuplicateReference = errors.New("duplicate payment reference")

// 初回の成功確認でだけ書き込む項目
type SettlementUpdate struct {
	PaymentMethod   string
	Metadata        string
	GatewayResponse string
	PaidAt          time.Time
}

type PaymentTotals struct {
	Count  int64
	Amount decimal.Decimal
}

type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) error
	FindByReference(ctx context.Context, reference string) (model.Payment, error)
	ListByOrderID(ctx context.Context, orderID string) ([]model.Payment, error)

	// pendingの行だけをsuccessにする。0行ならfalse。
	MarkSucceeded(ctx context.Context, reference string, u SettlementUpdate) (bool, error)
	// pendingの行だけをfailedにする。0行ならfalse。
	MarkFailed(ctx context.Context, reference string, gatewayResponse string) (bool, error)

	// 矛盾を1回だけ記録する。すでに記録済みならfalse。
	FlagConflict(ctx context.Context, reference string, reason string, at time.Time) (bool, error)

	ListByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]model.Payment, error)
	// 矛盾記録済みの行は含めない
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
	SumSucceeded(ctx context.Context) (PaymentTotals, error)
	CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error)
}
