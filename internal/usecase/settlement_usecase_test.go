package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/paystack"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func webhookBody(t *testing.T, event, ref string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"event": event,
		"data":  map[string]any{"reference": ref, "status": "success", "amount": 10750000},
	})
	require.NoError(t, err)
	return b
}

// 2回目以降はゲートウェイを呼ばず同じ結果を返す
func TestReconcile_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil).Once()

	first, err := e.settlement.Reconcile(ctx, p.PaystackReference, usecase.TriggerVerify)
	require.NoError(t, err)
	assert.True(t, first.Transitioned)
	assert.Equal(t, model.PaymentStatusSuccess, first.Status)
	assert.Equal(t, "card", first.Channel)

	second, err := e.settlement.Reconcile(ctx, p.PaystackReference, usecase.TriggerWebhook)
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.Equal(t, model.PaymentStatusSuccess, second.Status)

	assert.Equal(t, model.OrderStatusPaid, e.order(t, o.ID).Status)
	pay := e.payment(t, p.PaystackReference)
	require.NotNil(t, pay.PaidAt)
	assert.Equal(t, "card", pay.PaymentMethod)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionSettlePayment))

	e.gateway.AssertNumberOfCalls(t, "VerifyTransaction", 1)
}

// verifyとwebhookが同時に来ても遷移は1回だけ
func TestReconcile_ConcurrentTriggersSingleTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil)

	const n = 6
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trigger := usecase.TriggerVerify
			if i%2 == 1 {
				trigger = usecase.TriggerWebhook
			}
			res, err := e.settlement.Reconcile(ctx, p.PaystackReference, trigger)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, model.PaymentStatusSuccess, res.Status)
			if res.Transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, transitions)
	assert.Equal(t, model.OrderStatusPaid, e.order(t, o.ID).Status)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionSettlePayment))
}

func TestReconcile_FailedLeavesOrderPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).Return(paystack.VerifyResult{
		Reference:       p.PaystackReference,
		Status:          paystack.StatusFailed,
		AmountMinor:     10750000,
		GatewayResponse: "Declined",
	}, nil).Once()

	res, err := e.settlement.Reconcile(ctx, p.PaystackReference, usecase.TriggerVerify)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, res.Status)
	assert.Equal(t, "Declined", res.GatewayResponse)

	assert.Equal(t, model.OrderStatusPending, e.order(t, o.ID).Status)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionFailPayment))
}

func TestReconcile_NotYetDefinitive(t *testing.T) {
	for _, status := range []string{"abandoned", "ongoing", paystack.StatusNotFound} {
		t.Run(status, func(t *testing.T) {
			e := newEnv(t)
			_, p := e.seedPendingPayment(t, "107500")

			e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
				Return(paystack.VerifyResult{Reference: p.PaystackReference, Status: status}, nil)

			res, err := e.settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerSweep)
			require.NoError(t, err)
			assert.Equal(t, model.PaymentStatusPending, res.Status)
			assert.Equal(t, model.PaymentStatusPending, e.payment(t, p.PaystackReference).Status)
		})
	}
}

func TestReconcile_AmountMismatchIsConflict(t *testing.T) {
	e := newEnv(t)
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 100), nil).Once()

	_, err := e.settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerVerify)
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)

	assert.Equal(t, model.PaymentStatusPending, e.payment(t, p.PaystackReference).Status)
	assert.Equal(t, model.OrderStatusPending, e.order(t, o.ID).Status)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionPaymentConflict))
}

// 同じ注文の2本目の成功は取り消して衝突として残す
func TestReconcile_SecondSuccessForPaidOrderRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, first := e.seedPendingPayment(t, "107500")

	ref2 := "itha_second"
	require.NoError(t, e.repos.Payments().Create(ctx, model.Payment{
		ID:                   uuid.NewString(),
		OrderID:              o.ID,
		UserID:               o.UserID,
		Amount:               o.Total,
		Currency:             "NGN",
		Status:               model.PaymentStatusPending,
		PaystackReference:    ref2,
		TransactionReference: ref2,
		CreatedAt:            e.clock.Now(),
		UpdatedAt:            e.clock.Now(),
	}))

	e.gateway.On("VerifyTransaction", mock.Anything, first.PaystackReference).
		Return(successVerify(first.PaystackReference, 10750000), nil).Once()
	e.gateway.On("VerifyTransaction", mock.Anything, ref2).
		Return(successVerify(ref2, 10750000), nil).Once()

	_, err := e.settlement.Reconcile(ctx, first.PaystackReference, usecase.TriggerVerify)
	require.NoError(t, err)

	_, err = e.settlement.Reconcile(ctx, ref2, usecase.TriggerWebhook)
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)

	assert.Equal(t, model.PaymentStatusPending, e.payment(t, ref2).Status)
	assert.Equal(t, model.OrderStatusPaid, e.order(t, o.ID).Status)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionPaymentConflict))
}

func TestReconcile_GatewayErrors(t *testing.T) {
	e := newEnv(t)
	_, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(paystack.VerifyResult{}, fmt.Errorf("%w: timeout", paystack.ErrUnavailable)).Once()

	_, err := e.settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerVerify)
	requireKind(t, err, usecase.ErrGatewayUnavailable, http.StatusBadGateway)
	assert.Equal(t, model.PaymentStatusPending, e.payment(t, p.PaystackReference).Status)

	_, err = e.settlement.Reconcile(context.Background(), "itha_unknown", usecase.TriggerVerify)
	requireKind(t, err, usecase.ErrNotFound, http.StatusNotFound)
}

// =====================
// VerifyForBuyer
// =====================

func TestVerifyForBuyer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil).Once()

	// 他人のreference
	_, err := e.settlement.VerifyForBuyer(ctx, uuid.NewString(), p.PaystackReference)
	requireKind(t, err, usecase.ErrNotFound, http.StatusNotFound)

	out, err := e.settlement.VerifyForBuyer(ctx, o.UserID, p.PaystackReference)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, o.ID, out.Data.OrderID)
	assert.Equal(t, "card", out.Data.Channel)
	assert.Equal(t, "107500.00", out.Data.Amount.StringFixed(2))
}

func TestVerifyForBuyer_NotSuccessful(t *testing.T) {
	e := newEnv(t)
	o, p := e.seedPendingPayment(t, "107500")

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).Return(paystack.VerifyResult{
		Reference:       p.PaystackReference,
		Status:          paystack.StatusFailed,
		GatewayResponse: "Insufficient Funds",
	}, nil).Once()

	_, err := e.settlement.VerifyForBuyer(context.Background(), o.UserID, p.PaystackReference)
	requireKind(t, err, usecase.ErrGatewayRejected, http.StatusBadRequest)
	he, _ := usecase.AsHTTPError(err)
	assert.Equal(t, "payment verification failed: Insufficient Funds", he.Message)
}

// =====================
// Webhook
// =====================

func TestHandleWebhook_BadSignatureMutatesNothing(t *testing.T) {
	e := newEnv(t)
	o, p := e.seedPendingPayment(t, "107500")
	body := webhookBody(t, paystack.EventChargeSuccess, p.PaystackReference)

	for _, sig := range []string{"", "deadbeef", paystack.Sign(body, "other-secret")} {
		err := e.settlement.HandleWebhook(context.Background(), body, sig)
		requireKind(t, err, usecase.ErrUnauthenticated, http.StatusUnauthorized)
	}

	assert.Equal(t, model.PaymentStatusPending, e.payment(t, p.PaystackReference).Status)
	assert.Equal(t, model.OrderStatusPending, e.order(t, o.ID).Status)
	e.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

func TestHandleWebhook_ChargeSuccessSettles(t *testing.T) {
	e := newEnv(t)
	o, p := e.seedPendingPayment(t, "107500")
	body := webhookBody(t, paystack.EventChargeSuccess, p.PaystackReference)

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil).Once()

	require.NoError(t, e.settlement.HandleWebhook(context.Background(), body, paystack.Sign(body, webhookSecret)))
	assert.Equal(t, model.OrderStatusPaid, e.order(t, o.ID).Status)

	// 再送は照合済みの行で止まる
	require.NoError(t, e.settlement.HandleWebhook(context.Background(), body, paystack.Sign(body, webhookSecret)))
	e.gateway.AssertNumberOfCalls(t, "VerifyTransaction", 1)
}

func TestHandleWebhook_AcknowledgesIgnorable(t *testing.T) {
	e := newEnv(t)

	bodies := [][]byte{
		[]byte(`{not json`),
		webhookBody(t, "transfer.success", "itha_x"),
		webhookBody(t, paystack.EventChargeSuccess, ""),
		webhookBody(t, paystack.EventChargeSuccess, "itha_unknown"),
	}
	for _, body := range bodies {
		require.NoError(t, e.settlement.HandleWebhook(context.Background(), body, paystack.Sign(body, webhookSecret)))
	}
	e.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

func TestHandleWebhook_SuccessForFailedPaymentIsRecorded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, p := e.seedPendingPayment(t, "107500")

	won, err := e.repos.Payments().MarkFailed(ctx, p.PaystackReference, "Declined")
	require.NoError(t, err)
	require.True(t, won)

	body := webhookBody(t, paystack.EventChargeSuccess, p.PaystackReference)
	require.NoError(t, e.settlement.HandleWebhook(ctx, body, paystack.Sign(body, webhookSecret)))

	assert.Equal(t, model.PaymentStatusFailed, e.payment(t, p.PaystackReference).Status)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionPaymentConflict))
	e.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

// 保存に失敗したら非2xxで再送させる
func TestHandleWebhook_StoreFailureIsRetryable(t *testing.T) {
	e := newEnv(t)
	_, p := e.seedPendingPayment(t, "107500")
	body := webhookBody(t, paystack.EventChargeSuccess, p.PaystackReference)

	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = e.settlement.HandleWebhook(context.Background(), body, paystack.Sign(body, webhookSecret))
	requireKind(t, err, usecase.ErrPersistence, http.StatusInternalServerError)
}

// =====================
// Sweep / キャッシュ
// =====================

func TestSweepPending(t *testing.T) {
	e := newEnv(t)
	_, ok := e.seedPendingPayment(t, "107500")
	_, bad := e.seedPendingPayment(t, "5000")
	_, wait := e.seedPendingPayment(t, "2000")

	e.clock.Advance(2 * time.Hour)
	_, fresh := e.seedPendingPayment(t, "3000")

	e.gateway.On("VerifyTransaction", mock.Anything, ok.PaystackReference).
		Return(successVerify(ok.PaystackReference, 10750000), nil)
	e.gateway.On("VerifyTransaction", mock.Anything, bad.PaystackReference).
		Return(paystack.VerifyResult{Reference: bad.PaystackReference, Status: paystack.StatusFailed}, nil)
	e.gateway.On("VerifyTransaction", mock.Anything, wait.PaystackReference).
		Return(paystack.VerifyResult{Reference: wait.PaystackReference, Status: "abandoned"}, nil)

	rep, err := e.settlement.SweepPending(context.Background(), time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, usecase.SweepReport{Checked: 3, Succeeded: 1, Failed: 1, Pending: 1}, rep)

	assert.Equal(t, model.PaymentStatusPending, e.payment(t, fresh.PaystackReference).Status)
	e.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, fresh.PaystackReference)
}

// キャンセル済み注文への成功は1回だけ記録し、以後の自動照合ではverifyしない
func TestSweepPending_ConflictIsRecordedOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	moved, err := e.repos.Orders().TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, moved)

	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil)

	e.clock.Advance(2 * time.Hour)

	rep, err := e.settlement.SweepPending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, usecase.SweepReport{Checked: 1, Errors: 1}, rep)

	rep, err = e.settlement.SweepPending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, usecase.SweepReport{}, rep)

	body := webhookBody(t, paystack.EventChargeSuccess, p.PaystackReference)
	require.NoError(t, e.settlement.HandleWebhook(ctx, body, paystack.Sign(body, webhookSecret)))

	_, err = e.settlement.VerifyForBuyer(ctx, o.UserID, p.PaystackReference)
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)

	e.gateway.AssertNumberOfCalls(t, "VerifyTransaction", 1)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionPaymentConflict))

	got := e.payment(t, p.PaystackReference)
	assert.Equal(t, model.PaymentStatusPending, got.Status)
	assert.True(t, got.HasConflict())
	assert.Equal(t, "order_not_pending", got.ConflictReason)
	assert.Equal(t, model.OrderStatusCancelled, e.order(t, o.ID).Status)

	sum, err := e.reports.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.PaymentConflicts)
}

// operatorは確認し直せるが、監査ログは増えない
func TestReconcile_OperatorRechecksHeldPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o, p := e.seedPendingPayment(t, "107500")

	_, err := e.repos.Orders().TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled)
	require.NoError(t, err)
	e.gateway.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil)

	_, err = e.settlement.Reconcile(ctx, p.PaystackReference, usecase.TriggerWebhook)
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)

	_, err = e.settlement.Reconcile(ctx, p.PaystackReference, usecase.TriggerOperator)
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)

	e.gateway.AssertNumberOfCalls(t, "VerifyTransaction", 2)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionPaymentConflict))
}

func TestReconcile_UsesSettlementCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gdb := openTestDB(t)
	repos := infraRepo.NewRepos(gdb)
	gw := new(GatewayMock)
	clock := newFixedClock()
	settlement := usecase.NewSettlementUsecase(infraRepo.NewTxManagerGorm(gdb), repos, gw,
		cache.NewRedisCache(rdb, "test"), clock, usecase.SettlementConfig{WebhookSecret: webhookSecret, CacheTTL: time.Hour}, discardLogger())

	e := &env{db: gdb, repos: repos, clock: clock}
	_, p := e.seedPendingPayment(t, "107500")

	gw.On("VerifyTransaction", mock.Anything, p.PaystackReference).
		Return(successVerify(p.PaystackReference, 10750000), nil).Once()

	_, err := settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerVerify)
	require.NoError(t, err)

	// DBが落ちてもキャッシュから返る
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res, err := settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerWebhook)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSuccess, res.Status)
	assert.False(t, res.Transitioned)

	mr.FastForward(2 * time.Hour)
	_, err = settlement.Reconcile(context.Background(), p.PaystackReference, usecase.TriggerWebhook)
	requireKind(t, err, usecase.ErrPersistence, http.StatusInternalServerError)
}
