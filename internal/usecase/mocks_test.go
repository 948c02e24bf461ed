package usecase_test

import (
	"context"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	payments   repo.PaymentRepository
	vendors    repo.VendorRepository
	products   repo.ProductRepository
	auditLogs  repo.AuditLogRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) Payments() repo.PaymentRepository     { return r.payments }
func (r *TxReposMock) Vendors() repo.VendorRepository       { return r.vendors }
func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error) {
	panic("not used in unit tests")
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) error {
	panic("not used in unit tests")
}

func (m *OrderRepoMock) TransitionStatus(ctx context.Context, orderID string, from, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	total, _ := args.Get(1).(int64)
	return orders, total, args.Error(2)
}

func (m *OrderRepoMock) ListPendingWithoutItems(ctx context.Context, limit int) ([]model.Order, error) {
	panic("not used in unit tests")
}

func (m *OrderRepoMock) CountPendingWithoutItems(ctx context.Context) (int64, error) {
	panic("not used in unit tests")
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	panic("not used in unit tests")
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type VendorRepoMock struct{ mock.Mock }

func (m *VendorRepoMock) FindByID(ctx context.Context, id string) (model.Vendor, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(model.Vendor)
	return v, args.Error(1)
}

func (m *VendorRepoMock) FindByUserID(ctx context.Context, userID string) (model.Vendor, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(model.Vendor)
	return v, args.Error(1)
}

func (m *VendorRepoMock) SetApproval(ctx context.Context, id string, approved bool) error {
	args := m.Called(ctx, id, approved)
	return args.Error(0)
}

func (m *VendorRepoMock) SetSubaccountCodeIfEmpty(ctx context.Context, id string, code string) (bool, error) {
	args := m.Called(ctx, id, code)
	return args.Bool(0), args.Error(1)
}

func (m *VendorRepoMock) UpdateBankDetails(ctx context.Context, id string, d model.BankDetails) error {
	args := m.Called(ctx, id, d)
	return args.Error(0)
}

func (m *VendorRepoMock) CountApprovedWithoutSubaccount(ctx context.Context) (int64, error) {
	panic("not used in unit tests")
}

func (m *VendorRepoMock) ListApprovedWithoutSubaccount(ctx context.Context, limit int) ([]model.Vendor, error) {
	args := m.Called(ctx, limit)
	vs, _ := args.Get(0).([]model.Vendor)
	return vs, args.Error(1)
}

type AuditLogRepoMock struct{ mock.Mock }

func (m *AuditLogRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditLogRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	panic("not used in unit tests")
}

func (m *AuditLogRepoMock) CountByAction(ctx context.Context, action model.AuditAction) (int64, error) {
	panic("not used in unit tests")
}

var (
	_ repo.OrderRepository     = (*OrderRepoMock)(nil)
	_ repo.OrderItemRepository = (*OrderItemRepoMock)(nil)
	_ repo.VendorRepository    = (*VendorRepoMock)(nil)
	_ repo.AuditLogRepository  = (*AuditLogRepoMock)(nil)
	_ repo.TransactionManager  = (*TxManagerMock)(nil)
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }
