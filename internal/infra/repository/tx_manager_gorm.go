package repository

import (
	"context"

	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	db *gorm.DB
}

// tx付きのDBから毎回作る
func (r *txReposGorm) Orders() repo.OrderRepository         { return NewOrderGormRepository(r.db) }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository { return NewOrderItemGormRepository(r.db) }
func (r *txReposGorm) Payments() repo.PaymentRepository     { return NewPaymentGormRepository(r.db) }
func (r *txReposGorm) Vendors() repo.VendorRepository       { return NewVendorGormRepository(r.db) }
func (r *txReposGorm) Products() repo.ProductRepository     { return NewProductGormRepository(r.db) }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository   { return NewAuditLogGormRepository(r.db) }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txReposGorm{db: tx})
	})
}

// Tx外で使う場合（単発の参照など）
func NewRepos(db *gorm.DB) repo.TxRepos {
	return &txReposGorm{db: db}
}
