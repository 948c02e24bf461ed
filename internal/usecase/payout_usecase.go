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

	"github.com/shopspring/decimal"
)

// ベンダーの受取先（サブアカウント）をゲートウェイに作る。
type PayoutUsecase struct {
	repos             repo.TxRepos
	gateway           PaymentGateway
	clock             Clock
	commissionPercent decimal.Decimal
	log               *slog.Logger
}

func NewPayoutUsecase(repos repo.TxRepos, gateway PaymentGateway, clock Clock, commissionPercent decimal.Decimal, log *slog.Logger) *PayoutUsecase {
	return &PayoutUsecase{
		repos:             repos,
		gateway:           gateway,
		clock:             clock,
		commissionPercent: commissionPercent,
		log:               log.With("component", "payout"),
	}
}

type ProvisionOutput struct {
	SubaccountCode string `json:"subaccount_code"`
	Created        bool   `json:"created"`
}

// Provision は冪等。コードが既にあればゲートウェイを呼ばずにそれを返す。
func (u *PayoutUsecase) Provision(ctx context.Context, actorUserID string, vendorID string) (ProvisionOutput, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return ProvisionOutput{}, newError(ErrInvalidRequest, "vendor id required")
	}
	log := u.log.With("vendor_id", vendorID)

	v, err := u.repos.Vendors().FindByID(ctx, vendorID)
	if err == repo.ErrNotFound {
		return ProvisionOutput{}, newError(ErrNotFound, "vendor not found")
	}
	if err != nil {
		return ProvisionOutput{}, dbError()
	}

	if v.HasSubaccount() {
		return ProvisionOutput{SubaccountCode: v.SubaccountCode()}, nil
	}
	if !v.IsApproved {
		return ProvisionOutput{}, newError(ErrInvalidRequest, "vendor is not approved")
	}

	bank, err := v.BankDetails()
	switch {
	case errors.Is(err, model.ErrIncompleteBankDetails):
		return ProvisionOutput{}, newError(ErrIncompleteBankDetails, "vendor bank details incomplete")
	case err != nil:
		return ProvisionOutput{}, newError(ErrInvalidRequest, err.Error())
	}

	bankCode, err := paystack.LookupBankCode(bank.BankName)
	if err != nil {
		return ProvisionOutput{}, newError(ErrUnsupportedBank, fmt.Sprintf("unsupported bank: %s", bank.BankName))
	}

	code, err := u.gateway.CreateSubaccount(ctx, paystack.SubaccountRequest{
		BusinessName:     v.StoreName,
		BankCode:         bankCode,
		AccountNumber:    bank.AccountNumber,
		PercentageCharge: u.commissionPercent.InexactFloat64(),
		Description:      fmt.Sprintf("Subaccount for %s", v.StoreName),
	})
	if err != nil {
		log.WarnContext(ctx, "create subaccount failed", "error", err)
		if errors.Is(err, paystack.ErrRejected) {
			return ProvisionOutput{}, newError(ErrGatewayRejected, gatewayMessage(err))
		}
		return ProvisionOutput{}, newError(ErrGatewayUnavailable, "payment gateway unavailable")
	}

	stored, err := u.repos.Vendors().SetSubaccountCodeIfEmpty(ctx, vendorID, code)
	if err != nil {
		log.ErrorContext(ctx, "subaccount created but not saved", "subaccount_code", code, "error", err)
		return ProvisionOutput{}, dbError()
	}
	if !stored {
		//同時実行で先に保存された方を正とする
		cur, err := u.repos.Vendors().FindByID(ctx, vendorID)
		if err != nil {
			return ProvisionOutput{}, dbError()
		}
		log.WarnContext(ctx, "subaccount already provisioned concurrently",
			"kept", cur.SubaccountCode(), "discarded", code)
		return ProvisionOutput{SubaccountCode: cur.SubaccountCode()}, nil
	}

	if err := u.repos.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actorOrSystem(actorUserID),
		Action:       model.AuditActionProvisionPayout,
		ResourceType: model.AuditResourceVendor,
		ResourceID:   vendorID,
		BeforeJSON:   `{"paystack_subaccount_code":null}`,
		AfterJSON:    mustJSON(map[string]string{"paystack_subaccount_code": code, "bank_code": bankCode}),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		//コードは保存済みなので失敗にはしない
		log.ErrorContext(ctx, "provision audit write failed", "error", err)
	}

	log.InfoContext(ctx, "subaccount provisioned", "subaccount_code", code, "bank_code", bankCode)
	return ProvisionOutput{SubaccountCode: code, Created: true}, nil
}

func actorOrSystem(id string) string {
	if strings.TrimSpace(id) == "" {
		return model.SystemActor
	}
	return id
}
