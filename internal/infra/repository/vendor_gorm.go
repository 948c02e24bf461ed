package repository

import (
	"context"
	"errors"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"gorm.io/gorm"
)

const noSubaccount = "(paystack_subaccount_code IS NULL OR paystack_subaccount_code = '')"

type VendorGormRepository struct {
	db *gorm.DB
}

func NewVendorGormRepository(db *gorm.DB) *VendorGormRepository {
	return &VendorGormRepository{db: db}
}

func (r *VendorGormRepository) FindByID(ctx context.Context, id string) (model.Vendor, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *VendorGormRepository) FindByUserID(ctx context.Context, userID string) (model.Vendor, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *VendorGormRepository) findOne(ctx context.Context, cond string, arg string) (model.Vendor, error) {
	var v model.Vendor
	err := r.db.WithContext(ctx).Where(cond, arg).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Vendor{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Vendor{}, err
	}
	return v, nil
}

func (r *VendorGormRepository) SetApproval(ctx context.Context, id string, approved bool) error {
	res := r.db.WithContext(ctx).Model(&model.Vendor{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_approved": approved,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 一度入ったコードは上書きしない
func (r *VendorGormRepository) SetSubaccountCodeIfEmpty(ctx context.Context, id string, code string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Vendor{}).
		Where("id = ? AND "+noSubaccount, id).
		Updates(map[string]interface{}{
			"paystack_subaccount_code": code,
			"updated_at":               time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	//0行：存在しないのか、既に入っているのか
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *VendorGormRepository) UpdateBankDetails(ctx context.Context, id string, d model.BankDetails) error {
	res := r.db.WithContext(ctx).Model(&model.Vendor{}).
		Where("id = ? AND "+noSubaccount, id).
		Updates(map[string]interface{}{
			"bank_name":           d.BankName,
			"bank_account_number": d.AccountNumber,
			"bank_account_name":   d.AccountName,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return repo.ErrVendorLocked
}

func (r *VendorGormRepository) ListApprovedWithoutSubaccount(ctx context.Context, limit int) ([]model.Vendor, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []model.Vendor
	err := r.db.WithContext(ctx).
		Scopes(approvedWithoutSubaccount).
		Order("updated_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Vendor{}, err
	}
	return items, nil
}

func (r *VendorGormRepository) CountApprovedWithoutSubaccount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Vendor{}).Scopes(approvedWithoutSubaccount).Count(&n).Error
	return n, err
}

func approvedWithoutSubaccount(q *gorm.DB) *gorm.DB {
	return q.Where("is_approved = ? AND "+noSubaccount, true)
}
