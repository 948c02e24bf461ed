package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/paystack"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// 照合の呼び出し元
type ReconcileTrigger string

const (
	TriggerVerify   ReconcileTrigger = "verify"
	TriggerWebhook  ReconcileTrigger = "webhook"
	TriggerSweep    ReconcileTrigger = "sweep"
	TriggerOperator ReconcileTrigger = "operator"
)

const settlementCacheOp = "settlement"

type SettlementConfig struct {
	WebhookSecret string
	CacheTTL      time.Duration
}

// 決済の確定処理。verify呼び出しとWebhookの両方から呼ばれる。
type SettlementUsecase struct {
	tx      repo.TransactionManager
	repos   repo.TxRepos
	gateway PaymentGateway
	cache   cache.Cache
	clock   Clock
	cfg     SettlementConfig
	log     *slog.Logger
}

func NewSettlementUsecase(
	tx repo.TransactionManager,
	repos repo.TxRepos,
	gateway PaymentGateway,
	c cache.Cache,
	clock Clock,
	cfg SettlementConfig,
	log *slog.Logger,
) *SettlementUsecase {
	if c == nil {
		c = cache.Noop{}
	}
	return &SettlementUsecase{
		tx:      tx,
		repos:   repos,
		gateway: gateway,
		cache:   c,
		clock:   clock,
		cfg:     cfg,
		log:     log.With("component", "settlement"),
	}
}

type SettlementResult struct {
	Reference       string              `json:"reference"`
	Status          model.PaymentStatus `json:"status"`
	OrderID         string              `json:"order_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	Channel         string              `json:"channel,omitempty"`
	GatewayResponse string              `json:"gateway_response,omitempty"`

	// この呼び出しで状態を変えたか（キャッシュには残さない）
	Transitioned bool `json:"-"`
}

func resultFromPayment(p model.Payment) SettlementResult {
	return SettlementResult{
		Reference:       p.PaystackReference,
		Status:          p.Status,
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Channel:         p.PaymentMethod,
		GatewayResponse: p.GatewayResponse,
	}
}

// Reconcile はreferenceの決済をゲートウェイのverify結果で確定させる。
// 状態の書き込みは status='pending' を条件にした更新だけなので、
// 同時に何回呼ばれても遷移は1回だけ起きる。
func (u *SettlementUsecase) Reconcile(ctx context.Context, reference string, trigger ReconcileTrigger) (SettlementResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return SettlementResult{}, newError(ErrInvalidRequest, "reference required")
	}
	log := u.log.With("reference", reference, "trigger", string(trigger))

	if cached, ok := u.cached(ctx, reference); ok {
		return cached, nil
	}

	p, err := u.repos.Payments().FindByReference(ctx, reference)
	if err == repo.ErrNotFound {
		return SettlementResult{}, newError(ErrNotFound, "payment not found")
	}
	if err != nil {
		return SettlementResult{}, dbError()
	}

	//終端ならverifyしない
	if p.Status.IsTerminal() {
		res := resultFromPayment(p)
		u.remember(ctx, res)
		return res, nil
	}

	//矛盾記録済みは手動確認待ち。operator以外はverifyし直さない
	if p.HasConflict() && trigger != TriggerOperator {
		log.DebugContext(ctx, "payment held for review", "conflict_reason", p.ConflictReason)
		return SettlementResult{}, newError(ErrInconsistentState, "payment is held for manual review: "+p.ConflictReason)
	}

	v, err := u.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		log.WarnContext(ctx, "verify failed", "error", err)
		if errors.Is(err, paystack.ErrRejected) {
			return SettlementResult{}, newError(ErrGatewayRejected, gatewayMessage(err))
		}
		return SettlementResult{}, newError(ErrGatewayUnavailable, "payment gateway unavailable")
	}

	switch {
	case v.Succeeded():
		return u.settleSuccess(ctx, log, p, v, trigger)
	case v.DefinitelyFailed():
		return u.settleFailure(ctx, log, p, v, trigger)
	default:
		log.InfoContext(ctx, "payment not settled yet", "gateway_status", v.Status)
		res := resultFromPayment(p)
		res.GatewayResponse = firstNonEmpty(v.GatewayResponse, v.Status)
		return res, nil
	}
}

func (u *SettlementUsecase) settleSuccess(ctx context.Context, log *slog.Logger, p model.Payment, v paystack.VerifyResult, trigger ReconcileTrigger) (SettlementResult, error) {
	//金額・通貨はverifyの値を正とする
	if v.AmountMinor != model.ToMinorUnits(p.Amount) || (v.Currency != "" && !strings.EqualFold(v.Currency, p.Currency)) {
		detail := fmt.Sprintf("expected %d %s, gateway reported %d %s", model.ToMinorUnits(p.Amount), p.Currency, v.AmountMinor, v.Currency)
		log.ErrorContext(ctx, "settlement amount mismatch", "order_id", p.OrderID, "detail", detail)
		u.recordConflict(ctx, p, "amount_mismatch", detail, trigger)
		return SettlementResult{}, newError(ErrInconsistentState, "payment amount does not match order")
	}

	metadata := string(v.Raw)
	if metadata == "" {
		metadata = string(v.Metadata)
	}

	var won bool
	errOrderNotPending := errors.New("order not pending")

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		won, err = r.Payments().MarkSucceeded(ctx, p.PaystackReference, repo.SettlementUpdate{
			PaymentMethod:   v.Channel,
			Metadata:        metadata,
			GatewayResponse: truncate(v.GatewayResponse, 255),
			PaidAt:          u.clock.Now(),
		})
		if err != nil {
			return dbError()
		}
		if !won {
			//別の呼び出しが先に確定させた
			return nil
		}

		moved, err := r.Orders().TransitionStatus(ctx, p.OrderID, model.OrderStatusPending, model.OrderStatusPaid)
		if err != nil {
			return dbError()
		}
		if !moved {
			//別の決済で支払済み、またはキャンセル済み
			return errOrderNotPending
		}

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  model.SystemActor,
			Action:       model.AuditActionSettlePayment,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   p.PaystackReference,
			BeforeJSON:   `{"payment":"pending","order":"pending"}`,
			AfterJSON:    mustJSON(map[string]string{"payment": "success", "order": "paid", "order_id": p.OrderID, "channel": v.Channel, "trigger": string(trigger)}),
			CreatedAt:    u.clock.Now(),
		})
	})
	if errors.Is(err, errOrderNotPending) {
		log.ErrorContext(ctx, "payment succeeded but order is no longer pending", "order_id", p.OrderID)
		u.recordConflict(ctx, p, "order_not_pending", "gateway reported success for an order that is not pending", trigger)
		return SettlementResult{}, newError(ErrInconsistentState, "order is not awaiting payment")
	}
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return SettlementResult{}, err
		}
		return SettlementResult{}, dbError()
	}

	res, err := u.reload(ctx, p.PaystackReference)
	if err != nil {
		return SettlementResult{}, err
	}
	res.Transitioned = won
	if won {
		log.InfoContext(ctx, "payment settled", "order_id", p.OrderID, "channel", v.Channel, "amount_minor", v.AmountMinor)
	}
	u.remember(ctx, res)
	return res, nil
}

func (u *SettlementUsecase) settleFailure(ctx context.Context, log *slog.Logger, p model.Payment, v paystack.VerifyResult, trigger ReconcileTrigger) (SettlementResult, error) {
	var won bool
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		won, err = r.Payments().MarkFailed(ctx, p.PaystackReference, truncate(firstNonEmpty(v.GatewayResponse, v.Status), 255))
		if err != nil {
			return dbError()
		}
		if !won {
			return nil
		}
		//注文はpendingのまま（再試行できる）
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  model.SystemActor,
			Action:       model.AuditActionFailPayment,
			ResourceType: model.AuditResourcePayment,
			ResourceID:   p.PaystackReference,
			BeforeJSON:   `{"payment":"pending"}`,
			AfterJSON:    mustJSON(map[string]string{"payment": "failed", "order_id": p.OrderID, "gateway_status": v.Status, "trigger": string(trigger)}),
			CreatedAt:    u.clock.Now(),
		})
	})
	if err != nil {
		if _, ok := AsHTTPError(err); ok {
			return SettlementResult{}, err
		}
		return SettlementResult{}, dbError()
	}

	res, err := u.reload(ctx, p.PaystackReference)
	if err != nil {
		return SettlementResult{}, err
	}
	res.Transitioned = won
	if won {
		log.InfoContext(ctx, "payment failed", "order_id", p.OrderID, "gateway_status", v.Status)
	}
	u.remember(ctx, res)
	return res, nil
}

type VerifyPaymentOutput struct {
	Success bool              `json:"success"`
	Data    VerifyPaymentData `json:"data"`
}

type VerifyPaymentData struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel"`
	OrderID   string          `json:"order_id"`
}

// VerifyForBuyer はチェックアウト直後にブラウザから呼ばれる。
func (u *SettlementUsecase) VerifyForBuyer(ctx context.Context, userID string, reference string) (VerifyPaymentOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return VerifyPaymentOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return VerifyPaymentOutput{}, newError(ErrInvalidRequest, "reference required")
	}

	p, err := u.repos.Payments().FindByReference(ctx, reference)
	if err == repo.ErrNotFound {
		return VerifyPaymentOutput{}, newError(ErrNotFound, "payment not found")
	}
	if err != nil {
		return VerifyPaymentOutput{}, dbError()
	}
	if p.UserID != userID {
		return VerifyPaymentOutput{}, newError(ErrNotFound, "payment not found")
	}

	res, err := u.Reconcile(ctx, reference, TriggerVerify)
	if err != nil {
		return VerifyPaymentOutput{}, err
	}
	if res.Status != model.PaymentStatusSuccess {
		msg := "payment verification failed"
		if res.GatewayResponse != "" {
			msg += ": " + res.GatewayResponse
		}
		return VerifyPaymentOutput{}, newError(ErrGatewayRejected, msg)
	}

	return VerifyPaymentOutput{
		Success: true,
		Data: VerifyPaymentData{
			Reference: res.Reference,
			Amount:    res.Amount,
			Channel:   res.Channel,
			OrderID:   res.OrderID,
		},
	}, nil
}

// HandleWebhook は署名確認のあと charge.success を照合する。
// nil を返したら200で受理、エラーなら非2xx（ゲートウェイが再送する）。
func (u *SettlementUsecase) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !paystack.VerifySignature(rawBody, signature, u.cfg.WebhookSecret) {
		u.log.WarnContext(ctx, "webhook signature invalid",
			"event", "webhook.signature_invalid",
			"body_bytes", len(rawBody),
			"has_signature", signature != "",
		)
		return newError(ErrUnauthenticated, "invalid signature")
	}

	ev, err := paystack.ParseEvent(rawBody)
	if err != nil {
		//再送しても直らない
		u.log.ErrorContext(ctx, "webhook payload malformed", "error", err)
		return nil
	}
	if ev.Event != paystack.EventChargeSuccess {
		u.log.DebugContext(ctx, "webhook event ignored", "event", ev.Event)
		return nil
	}
	if ev.Data.Reference == "" {
		u.log.WarnContext(ctx, "webhook without reference", "event", ev.Event)
		return nil
	}

	res, err := u.Reconcile(ctx, ev.Data.Reference, TriggerWebhook)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		u.log.WarnContext(ctx, "webhook for unknown reference", "reference", ev.Data.Reference)
		return nil
	case errors.Is(err, ErrInconsistentState):
		//記録済み。再送されても結果は変わらない
		return nil
	default:
		return err
	}

	switch res.Status {
	case model.PaymentStatusFailed:
		u.log.ErrorContext(ctx, "charge.success received for failed payment", "reference", res.Reference, "order_id", res.OrderID)
		if p, err := u.repos.Payments().FindByReference(ctx, res.Reference); err == nil {
			u.recordConflict(ctx, p, "success_after_failed", "charge.success webhook for a payment already marked failed", TriggerWebhook)
		}
	case model.PaymentStatusPending:
		u.log.WarnContext(ctx, "charge.success not confirmed by verify", "reference", res.Reference, "gateway_response", res.GatewayResponse)
	}
	return nil
}

type SweepReport struct {
	Checked   int `json:"checked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// SweepPending は古いpending決済をまとめて照合し直す。
func (u *SettlementUsecase) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (SweepReport, error) {
	before := u.clock.Now().Add(-olderThan)
	payments, err := u.repos.Payments().ListPendingBefore(ctx, before, limit)
	if err != nil {
		return SweepReport{}, dbError()
	}

	var rep SweepReport
	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++

		res, err := u.Reconcile(ctx, p.PaystackReference, TriggerSweep)
		if err != nil {
			rep.Errors++
			u.log.WarnContext(ctx, "sweep reconcile failed", "reference", p.PaystackReference, "error", err)
			continue
		}
		switch res.Status {
		case model.PaymentStatusSuccess:
			rep.Succeeded++
		case model.PaymentStatusFailed:
			rep.Failed++
		default:
			rep.Pending++
		}
	}

	u.log.InfoContext(ctx, "sweep finished",
		"checked", rep.Checked, "succeeded", rep.Succeeded, "failed", rep.Failed, "pending", rep.Pending, "errors", rep.Errors)
	return rep, nil
}

func (u *SettlementUsecase) reload(ctx context.Context, reference string) (SettlementResult, error) {
	p, err := u.repos.Payments().FindByReference(ctx, reference)
	if err != nil {
		return SettlementResult{}, dbError()
	}
	return resultFromPayment(p), nil
}

// 終端状態だけキャッシュする
func (u *SettlementUsecase) remember(ctx context.Context, res SettlementResult) {
	if !res.Status.IsTerminal() {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	key := u.cache.GenerateKey(settlementCacheOp, res.Reference)
	if err := u.cache.Set(ctx, key, string(b), u.cfg.CacheTTL); err != nil {
		u.log.WarnContext(ctx, "settlement cache set failed", "reference", res.Reference, "error", err)
	}
}

func (u *SettlementUsecase) cached(ctx context.Context, reference string) (SettlementResult, bool) {
	raw, err := u.cache.Get(ctx, u.cache.GenerateKey(settlementCacheOp, reference))
	if err != nil {
		u.log.WarnContext(ctx, "settlement cache get failed", "reference", reference, "error", err)
		return SettlementResult{}, false
	}
	if raw == "" {
		return SettlementResult{}, false
	}
	var res SettlementResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil || !res.Status.IsTerminal() {
		return SettlementResult{}, false
	}
	return res, true
}

// 自動では直さず、決済行に印を付けて監査ログに残す（1決済につき1回）
func (u *SettlementUsecase) recordConflict(ctx context.Context, p model.Payment, kind, detail string, trigger ReconcileTrigger) {
	flagged, err := u.repos.Payments().FlagConflict(ctx, p.PaystackReference, kind, u.clock.Now())
	if err != nil {
		u.log.ErrorContext(ctx, "conflict flag write failed", "reference", p.PaystackReference, "error", err)
		return
	}
	if !flagged {
		u.log.DebugContext(ctx, "conflict already recorded", "reference", p.PaystackReference, "conflict", kind)
		return
	}

	err = u.repos.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  model.SystemActor,
		Action:       model.AuditActionPaymentConflict,
		ResourceType: model.AuditResourcePayment,
		ResourceID:   p.PaystackReference,
		BeforeJSON:   mustJSON(map[string]string{"payment": string(p.Status), "order_id": p.OrderID}),
		AfterJSON:    mustJSON(map[string]string{"conflict": kind, "detail": detail, "trigger": string(trigger)}),
		CreatedAt:    u.clock.Now(),
	})
	if err != nil {
		u.log.ErrorContext(ctx, "conflict audit write failed", "reference", p.PaystackReference, "error", err)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
