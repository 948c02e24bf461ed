package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/paystack"
	repo "marketplace/internal/repository"
)

// ベンダー本人・管理者のベンダー操作
type VendorUsecase struct {
	tx        repo.TransactionManager
	repos     repo.TxRepos
	payout    *PayoutUsecase
	validator CheckoutValidator
	clock     Clock
	log       *slog.Logger
}

func NewVendorUsecase(tx repo.TransactionManager, repos repo.TxRepos, payout *PayoutUsecase, validator CheckoutValidator, clock Clock, log *slog.Logger) *VendorUsecase {
	return &VendorUsecase{
		tx:        tx,
		repos:     repos,
		payout:    payout,
		validator: validator,
		clock:     clock,
		log:       log.With("component", "vendor"),
	}
}

type BankDetailsInput struct {
	BankName      string `json:"bank_name" validate:"required,max=100"`
	AccountNumber string `json:"bank_account_number" validate:"required,numeric,min=6,max=20"`
	AccountName   string `json:"bank_account_name" validate:"required,max=255"`
}

type VendorOutput struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	StoreName         string `json:"store_name"`
	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	BankAccountName   string `json:"bank_account_name"`
	IsApproved        bool   `json:"is_approved"`
	SubaccountCode    string `json:"paystack_subaccount_code,omitempty"`
}

func toVendorOutput(v model.Vendor) VendorOutput {
	return VendorOutput{
		ID:                v.ID,
		UserID:            v.UserID,
		StoreName:         v.StoreName,
		BankName:          v.BankName,
		BankAccountNumber: v.BankAccountNumber,
		BankAccountName:   v.BankAccountName,
		IsApproved:        v.IsApproved,
		SubaccountCode:    v.SubaccountCode(),
	}
}

// UpdateBankDetails はベンダー本人が振込先を登録する。
// サブアカウント作成後は変更できない。
func (u *VendorUsecase) UpdateBankDetails(ctx context.Context, userID string, in BankDetailsInput) (VendorOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return VendorOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	if err := u.validator.ValidateBankDetails(in); err != nil {
		return VendorOutput{}, newError(ErrInvalidRequest, err.Error())
	}
	d, err := model.NewBankDetails(in.BankName, in.AccountNumber, in.AccountName)
	if errors.Is(err, model.ErrIncompleteBankDetails) {
		return VendorOutput{}, newError(ErrIncompleteBankDetails, "vendor bank details incomplete")
	}
	if err != nil {
		return VendorOutput{}, newError(ErrInvalidRequest, err.Error())
	}
	if _, err := paystack.LookupBankCode(d.BankName); err != nil {
		return VendorOutput{}, newError(ErrUnsupportedBank, fmt.Sprintf("unsupported bank: %s", d.BankName))
	}

	v, err := u.repos.Vendors().FindByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return VendorOutput{}, newError(ErrNotFound, "vendor not found")
	}
	if err != nil {
		return VendorOutput{}, dbError()
	}

	err = u.repos.Vendors().UpdateBankDetails(ctx, v.ID, d)
	if errors.Is(err, repo.ErrVendorLocked) {
		return VendorOutput{}, newError(ErrInconsistentState, "bank details cannot change after payout provisioning")
	}
	if err != nil {
		return VendorOutput{}, dbError()
	}

	v.BankName, v.BankAccountNumber, v.BankAccountName = d.BankName, d.AccountNumber, d.AccountName
	return toVendorOutput(v), nil
}

type ApproveVendorOutput struct {
	Vendor           VendorOutput `json:"vendor"`
	SubaccountStatus string       `json:"subaccount_status"`
	SubaccountCode   string       `json:"subaccount_code,omitempty"`
	Reason           string       `json:"reason,omitempty"`
}

const (
	SubaccountActive  = "active"
	SubaccountPending = "pending"
)

// Approve は承認を確定させてから受取先を作る。
// 受取先の作成に失敗しても承認は戻さない。
func (u *VendorUsecase) Approve(ctx context.Context, adminUserID string, vendorID string) (ApproveVendorOutput, error) {
	if strings.TrimSpace(adminUserID) == "" {
		return ApproveVendorOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}

	v, err := u.setApproval(ctx, adminUserID, vendorID, true)
	if err != nil {
		return ApproveVendorOutput{}, err
	}

	out := ApproveVendorOutput{Vendor: toVendorOutput(v)}
	prov, err := u.payout.Provision(ctx, adminUserID, vendorID)
	if err != nil {
		out.SubaccountStatus = SubaccountPending
		out.Reason = err.Error()
		if he, ok := AsHTTPError(err); ok {
			out.Reason = he.Message
		}
		u.log.WarnContext(ctx, "vendor approved without payout destination", "vendor_id", vendorID, "reason", out.Reason)
		return out, nil
	}

	out.SubaccountStatus = SubaccountActive
	out.SubaccountCode = prov.SubaccountCode
	out.Vendor.SubaccountCode = prov.SubaccountCode
	return out, nil
}

func (u *VendorUsecase) Reject(ctx context.Context, adminUserID string, vendorID string) (VendorOutput, error) {
	if strings.TrimSpace(adminUserID) == "" {
		return VendorOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	v, err := u.setApproval(ctx, adminUserID, vendorID, false)
	if err != nil {
		return VendorOutput{}, err
	}
	return toVendorOutput(v), nil
}

func (u *VendorUsecase) setApproval(ctx context.Context, adminUserID, vendorID string, approved bool) (model.Vendor, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return model.Vendor{}, newError(ErrInvalidRequest, "vendor id required")
	}

	action := model.AuditActionRejectVendor
	if approved {
		action = model.AuditActionApproveVendor
	}

	var out model.Vendor
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		v, err := r.Vendors().FindByID(ctx, vendorID)
		if err == repo.ErrNotFound {
			return newError(ErrNotFound, "vendor not found")
		}
		if err != nil {
			return dbError()
		}

		before := v.IsApproved
		if err := r.Vendors().SetApproval(ctx, vendorID, approved); err != nil {
			return dbError()
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminUserID,
			Action:       action,
			ResourceType: model.AuditResourceVendor,
			ResourceID:   vendorID,
			BeforeJSON:   fmt.Sprintf(`{"is_approved":%t}`, before),
			AfterJSON:    fmt.Sprintf(`{"is_approved":%t}`, approved),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return dbError()
		}

		v.IsApproved = approved
		out = v
		return nil
	})
	if err != nil {
		return model.Vendor{}, err
	}
	return out, nil
}

type UnprovisionedVendor struct {
	VendorOutput
	Reason string `json:"reason"`
}

// 承認済みなのに受取先がないベンダー（管理画面で「作成待ち」として出す）
func (u *VendorUsecase) ListUnprovisioned(ctx context.Context, limit int) ([]UnprovisionedVendor, error) {
	vendors, err := u.repos.Vendors().ListApprovedWithoutSubaccount(ctx, limit)
	if err != nil {
		return []UnprovisionedVendor{}, dbError()
	}

	outs := make([]UnprovisionedVendor, 0, len(vendors))
	for _, v := range vendors {
		outs = append(outs, UnprovisionedVendor{
			VendorOutput: toVendorOutput(v),
			Reason:       provisionBlocker(v),
		})
	}
	return outs, nil
}

func provisionBlocker(v model.Vendor) string {
	d, err := v.BankDetails()
	if errors.Is(err, model.ErrIncompleteBankDetails) {
		return "bank details incomplete"
	}
	if err != nil {
		return err.Error()
	}
	if _, err := paystack.LookupBankCode(d.BankName); err != nil {
		return fmt.Sprintf("unsupported bank: %s", d.BankName)
	}
	return "ready to provision"
}
