package usecase

import (
	"context"
	"net/http"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// 照合確認用の管理者向け集計
type ReportUsecase struct {
	repos             repo.TxRepos
	commissionPercent decimal.Decimal
}

func NewReportUsecase(repos repo.TxRepos, commissionPercent decimal.Decimal) *ReportUsecase {
	return &ReportUsecase{repos: repos, commissionPercent: commissionPercent}
}

type SummaryOutput struct {
	TotalRevenue         decimal.Decimal               `json:"total_revenue"`
	PlatformCommission   decimal.Decimal               `json:"platform_commission"`
	VendorPayouts        decimal.Decimal               `json:"vendor_payouts"`
	SuccessfulPayments   int64                         `json:"successful_payments"`
	PaymentsByStatus     map[model.PaymentStatus]int64 `json:"payments_by_status"`
	OrphanedOrders       int64                         `json:"orphaned_orders"`
	UnprovisionedVendors int64                         `json:"unprovisioned_vendors"`
	PaymentConflicts     int64                         `json:"payment_conflicts"`
}

var hundred = decimal.NewFromInt(100)

func (u *ReportUsecase) Summary(ctx context.Context) (SummaryOutput, error) {
	totals, err := u.repos.Payments().SumSucceeded(ctx)
	if err != nil {
		return SummaryOutput{}, dbError()
	}
	counts, err := u.repos.Payments().CountByStatus(ctx)
	if err != nil {
		return SummaryOutput{}, dbError()
	}
	orphans, err := u.repos.Orders().CountPendingWithoutItems(ctx)
	if err != nil {
		return SummaryOutput{}, dbError()
	}
	vendors, err := u.repos.Vendors().CountApprovedWithoutSubaccount(ctx)
	if err != nil {
		return SummaryOutput{}, dbError()
	}

	conflicts, err := u.repos.AuditLogs().CountByAction(ctx, model.AuditActionPaymentConflict)
	if err != nil {
		return SummaryOutput{}, dbError()
	}

	commission := totals.Amount.Mul(u.commissionPercent).Div(hundred).Round(2)
	return SummaryOutput{
		TotalRevenue:         totals.Amount,
		PlatformCommission:   commission,
		VendorPayouts:        totals.Amount.Sub(commission),
		SuccessfulPayments:   totals.Count,
		PaymentsByStatus:     counts,
		OrphanedOrders:       orphans,
		UnprovisionedVendors: vendors,
		PaymentConflicts:     conflicts,
	}, nil
}

type AdminPaymentOutput struct {
	PaymentOutput
	OrderID        string     `json:"order_id"`
	UserID         string     `json:"user_id"`
	ConflictAt     *time.Time `json:"conflict_at,omitempty"`
	ConflictReason string     `json:"conflict_reason,omitempty"`
}

func (u *ReportUsecase) PaymentsByStatus(ctx context.Context, status string, limit int) ([]AdminPaymentOutput, error) {
	st := model.PaymentStatus(status)
	switch st {
	case model.PaymentStatusPending, model.PaymentStatusSuccess, model.PaymentStatusFailed:
	default:
		return []AdminPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	payments, err := u.repos.Payments().ListByStatus(ctx, st, limit)
	if err != nil {
		return []AdminPaymentOutput{}, dbError()
	}
	outs := make([]AdminPaymentOutput, 0, len(payments))
	for _, p := range payments {
		outs = append(outs, AdminPaymentOutput{
			PaymentOutput:  toPaymentOutput(p),
			OrderID:        p.OrderID,
			UserID:         p.UserID,
			ConflictAt:     p.ConflictAt,
			ConflictReason: p.ConflictReason,
		})
	}
	return outs, nil
}

// 明細なしで残ったpending注文（自動では消さない）
func (u *ReportUsecase) OrphanedOrders(ctx context.Context, limit int) ([]OrderOutput, error) {
	orders, err := u.repos.Orders().ListPendingWithoutItems(ctx, limit)
	if err != nil {
		return []OrderOutput{}, dbError()
	}
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o, nil, nil))
	}
	return outs, nil
}

func (u *ReportUsecase) AuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	logs, err := u.repos.AuditLogs().List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, dbError()
	}
	return logs, nil
}
