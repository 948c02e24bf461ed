package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) error {
	err := r.db.WithContext(ctx).Create(&p).Error
	if isUniqueViolation(err) {
		return repo.ErrDuplicateReference
	}
	return err
}

func (r *PaymentGormRepository) FindByReference(ctx context.Context, reference string) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("paystack_reference = ?", reference).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.Payment, error) {
	var items []model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at asc").Find(&items).Error
	if err != nil {
		return []model.Payment{}, err
	}
	return items, nil
}

// status='pending' を条件にした1行更新。
// 負けた側（0行）は何も書かない。
func (r *PaymentGormRepository) MarkSucceeded(ctx context.Context, reference string, u repo.SettlementUpdate) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("paystack_reference = ? AND status = ?", reference, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":           model.PaymentStatusSuccess,
			"payment_method":   u.PaymentMethod,
			"metadata":         u.Metadata,
			"gateway_response": u.GatewayResponse,
			"paid_at":          u.PaidAt,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PaymentGormRepository) MarkFailed(ctx context.Context, reference string, gatewayResponse string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("paystack_reference = ? AND status = ?", reference, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":           model.PaymentStatusFailed,
			"gateway_response": gatewayResponse,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// conflict_at IS NULL を条件にするので同時に呼ばれても勝つのは1本
func (r *PaymentGormRepository) FlagConflict(ctx context.Context, reference string, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("paystack_reference = ? AND conflict_at IS NULL", reference).
		Updates(map[string]interface{}{
			"conflict_at":     at,
			"conflict_reason": reason,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PaymentGormRepository) ListByStatus(ctx context.Context, status model.PaymentStatus, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Payment{}, err
	}
	return items, nil
}

// 古い順（長く放置されたものから）
func (r *PaymentGormRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []model.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND conflict_at IS NULL", model.PaymentStatusPending, before).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Payment{}, err
	}
	return items, nil
}

func (r *PaymentGormRepository) SumSucceeded(ctx context.Context) (repo.PaymentTotals, error) {
	var row struct {
		Count  int64
		Amount decimal.NullDecimal
	}
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("COUNT(*) AS count, SUM(amount) AS amount").
		Where("status = ?", model.PaymentStatusSuccess).
		Scan(&row).Error
	if err != nil {
		return repo.PaymentTotals{}, err
	}

	out := repo.PaymentTotals{Count: row.Count, Amount: decimal.Zero}
	if row.Amount.Valid {
		out.Amount = row.Amount.Decimal.Round(2)
	}
	return out, nil
}

func (r *PaymentGormRepository) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error) {
	var rows []struct {
		Status model.PaymentStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := map[model.PaymentStatus]int64{
		model.PaymentStatusPending: 0,
		model.PaymentStatusSuccess: 0,
		model.PaymentStatusFailed:  0,
	}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// 一意制約違反（TranslateError有効時はErrDuplicatedKey、それ以外はpgのコード）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
