package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// 決済の試行1回分。paystack_referenceで外部と突き合わせる。
type Payment struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID              string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	UserID               string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Amount               decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency             string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status               PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaystackReference    string          `gorm:"type:varchar(100);not null;uniqueIndex" json:"paystack_reference"`
	TransactionReference string          `gorm:"type:varchar(100);not null" json:"transaction_reference"`

	//成功時だけ入る
	PaymentMethod string `gorm:"type:varchar(50)" json:"payment_method,omitempty"`

	//verifyレスポンスそのもの（JSON）
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`

	GatewayResponse string     `gorm:"type:varchar(255)" json:"gateway_response,omitempty"`

	//照合で矛盾が出た時刻と種類。入ったら自動照合の対象外
	ConflictAt     *time.Time `gorm:"index" json:"conflict_at,omitempty"`
	ConflictReason string     `gorm:"type:varchar(50)" json:"conflict_reason,omitempty"`

	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

// 手動確認待ち
func (p Payment) HasConflict() bool {
	return p.ConflictAt != nil
}
