package repository

import (
	"context"
	"errors"

	"marketplace/internal/domain/model"
)

// サブアカウント作成済みのベンダーは口座を変えられない
var ErrVendorLocked = errors.New("vendor payout destination already provisioned")

type VendorRepository interface {
	FindByID(ctx context.Context, id string) (model.Vendor, error)
	FindByUserID(ctx context.Context, userID string) (model.Vendor, error)
	SetApproval(ctx context.Context, id string, approved bool) error

	// コードが空のときだけ保存する。既に入っていたらfalse。
	SetSubaccountCodeIfEmpty(ctx context.Context, id string, code string) (bool, error)

	UpdateBankDetails(ctx context.Context, id string, d model.BankDetails) error
	ListApprovedWithoutSubaccount(ctx context.Context, limit int) ([]model.Vendor, error)
	CountApprovedWithoutSubaccount(ctx context.Context) (int64, error)
}
