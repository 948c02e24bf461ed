package model

import "time"

// 注文ステータス更新、ベンダー承認、決済確定など。
type AuditAction string

const (
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionApproveVendor     AuditAction = "APPROVE_VENDOR"
	AuditActionRejectVendor      AuditAction = "REJECT_VENDOR"
	AuditActionProvisionPayout   AuditAction = "PROVISION_SUBACCOUNT"
	AuditActionSettlePayment     AuditAction = "SETTLE_PAYMENT"
	AuditActionFailPayment       AuditAction = "FAIL_PAYMENT"

	//終端状態と食い違う通知を検知した（自動では直さない）
	AuditActionPaymentConflict AuditAction = "PAYMENT_CONFLICT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceOrder   AuditResourceType = "order"
	AuditResourceVendor  AuditResourceType = "vendor"
	AuditResourcePayment AuditResourceType = "payment"
)

// 決済照合など人以外の操作者
const SystemActor = "system"

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーID（照合処理はsystem）。
	ActorUserID string `gorm:"type:varchar(36);not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID string `gorm:"type:varchar(100);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`

	//JSON文字列で保存する。
	AfterJSON string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
