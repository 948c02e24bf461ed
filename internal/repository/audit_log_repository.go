package repository

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
)

// 管理画面の監査ログ検索条件（nilは条件なし）
type AuditLogFilter struct {
	ActorUserID  *string
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

type AuditLogRepository interface {
	// 追記のみ。更新・削除はしない
	Create(ctx context.Context, log model.AuditLog) error

	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)

	// 照合サマリ用（PAYMENT_CONFLICTの件数など）
	CountByAction(ctx context.Context, action model.AuditAction) (int64, error)
}
