package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品は参照だけ（カタログ管理は別サービス）
type ProductRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}
