package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *string
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) error

	// TransitionStatus は現在値が from のときだけ to に変える。
	// 変わらなかったら false（他の処理が先に進めた）。
	TransitionStatus(ctx context.Context, orderID string, from, to model.OrderStatus) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	//明細が1件もないpending注文（作成途中で失敗したもの）
	ListPendingWithoutItems(ctx context.Context, limit int) ([]model.Order, error)
	CountPendingWithoutItems(ctx context.Context) (int64, error)
}
