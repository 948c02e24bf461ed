package usecase_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/paystack"
	infraRepo "marketplace/internal/infra/repository"
	repo "marketplace/internal/repository"
	"marketplace/internal/usecase"
	"marketplace/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// =====================
// 共通部品
// =====================

type uuidIDs struct{}

func (uuidIDs) NewID() string { return uuid.NewString() }

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), db.Options(true))
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// =====================
// PaymentGateway モック
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) InitializeTransaction(ctx context.Context, in paystack.InitializeRequest) (paystack.InitializeResult, error) {
	args := m.Called(ctx, in)
	r, _ := args.Get(0).(paystack.InitializeResult)
	return r, args.Error(1)
}

func (m *GatewayMock) VerifyTransaction(ctx context.Context, reference string) (paystack.VerifyResult, error) {
	args := m.Called(ctx, reference)
	r, _ := args.Get(0).(paystack.VerifyResult)
	return r, args.Error(1)
}

func (m *GatewayMock) CreateSubaccount(ctx context.Context, in paystack.SubaccountRequest) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

var _ usecase.PaymentGateway = (*GatewayMock)(nil)

// =====================
// SQLite上で組み立てた一式
// =====================

type env struct {
	db      *gorm.DB
	repos   repo.TxRepos
	gateway *GatewayMock
	clock   *fixedClock

	checkout   *usecase.CheckoutUsecase
	orders     *usecase.OrderUsecase
	settlement *usecase.SettlementUsecase
	payout     *usecase.PayoutUsecase
	vendors    *usecase.VendorUsecase
	reports    *usecase.ReportUsecase
}

const webhookSecret = "sk_test_secret"

func newEnv(t *testing.T) *env {
	t.Helper()

	gdb := openTestDB(t)
	tx := infraRepo.NewTxManagerGorm(gdb)
	repos := infraRepo.NewRepos(gdb)
	gw := new(GatewayMock)
	clock := newFixedClock()
	log := discardLogger()
	v := validator.NewCheckoutValidator()
	commission := decimal.NewFromInt(5)

	payout := usecase.NewPayoutUsecase(repos, gw, clock, commission, log)
	return &env{
		db:      gdb,
		repos:   repos,
		gateway: gw,
		clock:   clock,

		checkout: usecase.NewCheckoutUsecase(tx, repos, gw, v, uuidIDs{}, clock, usecase.CheckoutConfig{
			Currency:        "NGN",
			CallbackURL:     "https://shop.example/payment/callback",
			ReferencePrefix: "itha",
			TaxRate:         decimal.RequireFromString("0.075"),
		}, log),
		orders: usecase.NewOrderUsecase(tx),
		settlement: usecase.NewSettlementUsecase(tx, repos, gw, nil, clock, usecase.SettlementConfig{
			WebhookSecret: webhookSecret,
			CacheTTL:      time.Hour,
		}, log),
		payout:  payout,
		vendors: usecase.NewVendorUsecase(tx, repos, payout, v, clock, log),
		reports: usecase.NewReportUsecase(repos, commission),
	}
}

func (e *env) seedVendor(t *testing.T, v model.Vendor) model.Vendor {
	t.Helper()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.UserID == "" {
		v.UserID = uuid.NewString()
	}
	if v.StoreName == "" {
		v.StoreName = "Ada Stores"
	}
	require.NoError(t, e.db.Create(&v).Error)
	return v
}

func (e *env) seedProduct(t *testing.T, vendorID string, price string, active bool) model.Product {
	t.Helper()
	p := model.Product{
		ID:       uuid.NewString(),
		VendorID: vendorID,
		Name:     "Ankara fabric",
		Price:    decimal.RequireFromString(price),
		IsActive: active,
	}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

// 決済行つきのpending注文
func (e *env) seedPendingPayment(t *testing.T, total string) (model.Order, model.Payment) {
	t.Helper()
	ctx := context.Background()
	now := e.clock.Now()

	o := model.Order{
		ID:              uuid.NewString(),
		UserID:          uuid.NewString(),
		Email:           "buyer@example.com",
		Phone:           "08030000000",
		ShippingAddress: "12 Marina Road",
		ShippingCity:    "Lagos",
		ShippingState:   "Lagos",
		Total:           decimal.RequireFromString(total),
		Status:          model.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.repos.Orders().Create(ctx, o))

	ref := "itha_" + uuid.NewString()[:8]
	p := model.Payment{
		ID:                   uuid.NewString(),
		OrderID:              o.ID,
		UserID:               o.UserID,
		Amount:               o.Total,
		Currency:             "NGN",
		Status:               model.PaymentStatusPending,
		PaystackReference:    ref,
		TransactionReference: ref,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, e.repos.Payments().Create(ctx, p))
	return o, p
}

func (e *env) payment(t *testing.T, ref string) model.Payment {
	t.Helper()
	p, err := e.repos.Payments().FindByReference(context.Background(), ref)
	require.NoError(t, err)
	return p
}

func (e *env) order(t *testing.T, id string) model.Order {
	t.Helper()
	o, err := e.repos.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *env) auditCount(t *testing.T, action model.AuditAction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func successVerify(ref string, amountMinor int64) paystack.VerifyResult {
	return paystack.VerifyResult{
		Reference:       ref,
		Status:          paystack.StatusSuccess,
		AmountMinor:     amountMinor,
		Currency:        "NGN",
		Channel:         "card",
		GatewayResponse: "Approved",
		Raw:             []byte(`{"status":"success"}`),
	}
}

func requireKind(t *testing.T, err error, kind error, status int) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, kind)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, status, he.Status)
}
