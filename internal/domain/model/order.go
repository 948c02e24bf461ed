package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 配送フローの順番（cancelledは別扱い）
var fulfillmentRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusPaid:       1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

type Order struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Email           string          `gorm:"type:varchar(255);not null" json:"email"`
	Phone           string          `gorm:"type:varchar(30);not null" json:"phone"`
	ShippingAddress string          `gorm:"type:varchar(255);not null" json:"shipping_address"`
	ShippingCity    string          `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingState   string          `gorm:"type:varchar(100);not null" json:"shipping_state"`
	Total           decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	Status          OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	if st == OrderStatusCancelled {
		return st, true
	}
	_, ok := fulfillmentRank[st]
	return st, ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// 発送前ならキャンセル可能
func (s OrderStatus) IsPreFulfillment() bool {
	return s == OrderStatusPending || s == OrderStatusPaid || s == OrderStatusProcessing
}

// CanAdminTransition は管理者操作で from → to に進めてよいかを返す。
// pending→paid は決済照合だけが行うので管理者には許可しない。
func CanAdminTransition(from, to OrderStatus) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return from.IsPreFulfillment()
	}
	if from == OrderStatusPending || to == OrderStatusPaid {
		return false
	}
	fromRank, ok := fulfillmentRank[from]
	if !ok {
		return false
	}
	toRank, ok := fulfillmentRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
