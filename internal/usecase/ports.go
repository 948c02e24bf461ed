package usecase

import (
	"context"
	"time"

	"marketplace/internal/infra/paystack"
)

// 決済ゲートウェイ（本番は paystack.Client）
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, in paystack.InitializeRequest) (paystack.InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (paystack.VerifyResult, error)
	CreateSubaccount(ctx context.Context, in paystack.SubaccountRequest) (string, error)
}

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// 入力の形式チェック（DBを見ないもの）
type CheckoutValidator interface {
	ValidateCheckout(in CheckoutInput) error
	ValidateInitializePayment(in InitializePaymentInput) error
	ValidateBankDetails(in BankDetailsInput) error
}
