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

type CheckoutConfig struct {
	Currency        string
	CallbackURL     string
	ReferencePrefix string
	TaxRate         decimal.Decimal
}

// 注文作成から決済開始まで
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	repos     repo.TxRepos
	gateway   PaymentGateway
	validator CheckoutValidator
	ids       IDGenerator
	clock     Clock
	cfg       CheckoutConfig
	log       *slog.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	repos repo.TxRepos,
	gateway PaymentGateway,
	validator CheckoutValidator,
	ids IDGenerator,
	clock Clock,
	cfg CheckoutConfig,
	log *slog.Logger,
) *CheckoutUsecase {
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = "itha"
	}
	return &CheckoutUsecase{
		tx:        tx,
		repos:     repos,
		gateway:   gateway,
		validator: validator,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		log:       log.With("component", "checkout"),
	}
}

type CartLineInput struct {
	ProductID string `json:"product_id" validate:"required,max=36"`
	Quantity  int64  `json:"quantity" validate:"gt=0,lte=1000"`

	// カート追加時の単価（任意）。現在価格と違えば弾く。
	Price *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gt=0"`
}

type CheckoutInput struct {
	Email           string          `json:"email" validate:"required,email,max=255"`
	Phone           string          `json:"phone" validate:"required,max=30"`
	ShippingAddress string          `json:"shipping_address" validate:"required,max=255"`
	ShippingCity    string          `json:"shipping_city" validate:"required,max=100"`
	ShippingState   string          `json:"shipping_state" validate:"required,max=100"`
	Items           []CartLineInput `json:"items" validate:"required,min=1,max=100,dive"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

type CheckoutOutput struct {
	OrderID          string          `json:"order_id"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	AmountMinor      int64           `json:"amount_minor"`
	Currency         string          `json:"currency"`
}

// Checkout は注文と明細を1トランザクションで作り、決済を開始する。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID string, in CheckoutInput) (CheckoutOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return CheckoutOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	//永続化より前に弾く
	if len(in.Items) == 0 {
		return CheckoutOutput{}, newError(ErrInvalidRequest, "cart empty")
	}
	if err := u.validator.ValidateCheckout(in); err != nil {
		return CheckoutOutput{}, newError(ErrInvalidRequest, err.Error())
	}
	contact, err := model.NewContact(in.Email, in.Phone, in.ShippingAddress, in.ShippingCity, in.ShippingState)
	if err != nil {
		return CheckoutOutput{}, newError(ErrInvalidRequest, "invalid contact details")
	}

	var (
		order     model.Order
		totals    model.Totals
		splitCode string
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		products, err := loadProducts(ctx, r, in.Items)
		if err != nil {
			return err
		}

		lines := make([]model.CartLine, 0, len(in.Items))
		for _, it := range in.Items {
			p := products[strings.TrimSpace(it.ProductID)]
			if it.Price != nil && !it.Price.Equal(p.Price) {
				return newError(ErrInvalidRequest, fmt.Sprintf("price changed for product %s", p.ID))
			}
			line, err := model.NewCartLine(p.ID, it.Quantity, p.Price)
			if err != nil {
				return newError(ErrInvalidRequest, "invalid cart line")
			}
			lines = append(lines, line)
		}
		totals = model.ComputeTotals(lines, u.cfg.TaxRate)

		now := u.clock.Now()
		order = model.Order{
			ID:              u.ids.NewID(),
			UserID:          userID,
			Email:           contact.Email,
			Phone:           contact.Phone,
			ShippingAddress: contact.ShippingAddress,
			ShippingCity:    contact.ShippingCity,
			ShippingState:   contact.ShippingState,
			Total:           totals.GrandTotal,
			Status:          model.OrderStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := r.Orders().Create(ctx, order); err != nil {
			return newError(ErrPersistence, "could not create order")
		}

		//単価は購入時点のスナップショット
		items := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			items = append(items, model.OrderItem{
				ID:        u.ids.NewID(),
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.UnitPrice,
				CreatedAt: now,
			})
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return newError(ErrPersistence, "could not create order items")
		}

		splitCode, err = resolveSplitCode(ctx, r, productList(products))
		return err
	})
	if err != nil {
		u.log.ErrorContext(ctx, "checkout failed before payment", "user_id", userID, "error", err)
		return CheckoutOutput{}, err
	}

	started, err := u.startPayment(ctx, order, contact.Email, splitCode, in.Metadata)
	if err != nil {
		return CheckoutOutput{}, err
	}

	return CheckoutOutput{
		OrderID:          order.ID,
		Reference:        started.Reference,
		AuthorizationURL: started.AuthorizationURL,
		AccessCode:       started.AccessCode,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		Total:            totals.GrandTotal,
		AmountMinor:      model.ToMinorUnits(totals.GrandTotal),
		Currency:         u.cfg.Currency,
	}, nil
}

type InitializePaymentInput struct {
	Email    string          `json:"email" validate:"required,email,max=255"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	OrderID  string          `json:"orderId" validate:"required,max=36"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type InitializePaymentOutput struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializePayment は未払い注文に対して新しい決済を開始する（再試行用）。
func (u *CheckoutUsecase) InitializePayment(ctx context.Context, userID string, in InitializePaymentInput) (InitializePaymentOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return InitializePaymentOutput{}, newError(ErrUnauthenticated, "unauthorized")
	}
	if err := u.validator.ValidateInitializePayment(in); err != nil {
		return InitializePaymentOutput{}, newError(ErrInvalidRequest, err.Error())
	}

	var (
		order     model.Order
		splitCode string
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, in.OrderID)
		if err == repo.ErrNotFound {
			return newError(ErrNotFound, "order not found")
		}
		if err != nil {
			return dbError()
		}
		if o.UserID != userID {
			return newError(ErrNotFound, "order not found")
		}
		if o.Status != model.OrderStatusPending {
			return newError(ErrInconsistentState, "order is not awaiting payment")
		}
		if !in.Amount.Round(2).Equal(o.Total.Round(2)) {
			return newError(ErrInvalidRequest, "amount does not match order total")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError()
		}
		if len(items) == 0 {
			return newError(ErrInconsistentState, "order has no items")
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		products, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return dbError()
		}
		splitCode, err = resolveSplitCode(ctx, r, products)
		if err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return InitializePaymentOutput{}, err
	}

	started, err := u.startPayment(ctx, order, strings.TrimSpace(in.Email), splitCode, in.Metadata)
	if err != nil {
		return InitializePaymentOutput{}, err
	}
	return InitializePaymentOutput{
		AuthorizationURL: started.AuthorizationURL,
		AccessCode:       started.AccessCode,
		Reference:        started.Reference,
	}, nil
}

// startPayment はpendingの決済行を先に作ってからゲートウェイを呼ぶ。
// Webhookが先に届いても行が見つかるようにするため。
func (u *CheckoutUsecase) startPayment(ctx context.Context, order model.Order, email string, splitCode string, clientMeta map[string]any) (paystack.InitializeResult, error) {
	var (
		reference string
		err       error
	)
	for attempt := 0; attempt < 3; attempt++ {
		reference = u.newReference()
		now := u.clock.Now()
		err = u.repos.Payments().Create(ctx, model.Payment{
			ID:                   u.ids.NewID(),
			OrderID:              order.ID,
			UserID:               order.UserID,
			Amount:               order.Total,
			Currency:             u.cfg.Currency,
			Status:               model.PaymentStatusPending,
			PaystackReference:    reference,
			TransactionReference: reference,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if !errors.Is(err, repo.ErrDuplicateReference) {
			break
		}
	}
	if err != nil {
		u.log.ErrorContext(ctx, "payment row insert failed", "order_id", order.ID, "error", err)
		return paystack.InitializeResult{}, newError(ErrPersistence, "could not record payment")
	}

	//order_id/user_id はクライアント指定より優先
	meta := make(map[string]any, len(clientMeta)+2)
	for k, v := range clientMeta {
		meta[k] = v
	}
	meta["order_id"] = order.ID
	meta["user_id"] = order.UserID

	res, err := u.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       email,
		AmountMinor: model.ToMinorUnits(order.Total),
		Currency:    u.cfg.Currency,
		Reference:   reference,
		CallbackURL: u.cfg.CallbackURL,
		Metadata:    meta,
		Subaccount:  splitCode,
	})
	switch {
	case err == nil:
	case errors.Is(err, paystack.ErrRejected):
		if _, ferr := u.repos.Payments().MarkFailed(ctx, reference, truncate(err.Error(), 255)); ferr != nil {
			u.log.ErrorContext(ctx, "mark rejected payment failed", "reference", reference, "error", ferr)
		}
		u.log.WarnContext(ctx, "gateway rejected initialize", "order_id", order.ID, "reference", reference, "error", err)
		return paystack.InitializeResult{}, newError(ErrGatewayRejected, gatewayMessage(err))
	default:
		//ゲートウェイに届いたかわからないのでpendingのまま（照合で確定させる）
		u.log.WarnContext(ctx, "gateway unavailable on initialize", "order_id", order.ID, "reference", reference, "error", err)
		return paystack.InitializeResult{}, newError(ErrGatewayUnavailable, "payment gateway unavailable, please try again")
	}

	if res.Reference == "" {
		res.Reference = reference
	}
	u.log.InfoContext(ctx, "payment initialized",
		"order_id", order.ID,
		"reference", res.Reference,
		"amount_minor", model.ToMinorUnits(order.Total),
		"split", splitCode != "",
	)
	return res, nil
}

// prefix_<unix ms>_<ランダム8文字>
func (u *CheckoutUsecase) newReference() string {
	short := strings.ReplaceAll(u.ids.NewID(), "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%d_%s", u.cfg.ReferencePrefix, u.clock.Now().UnixMilli(), short)
}

func loadProducts(ctx context.Context, r repo.TxRepos, lines []CartLineInput) (map[string]model.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, strings.TrimSpace(l.ProductID))
	}
	found, err := r.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, dbError()
	}

	byID := make(map[string]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.IsActive {
			return nil, newError(ErrInvalidRequest, fmt.Sprintf("product %s is not available", id))
		}
	}
	return byID, nil
}

func productList(m map[string]model.Product) []model.Product {
	out := make([]model.Product, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// 全商品が1ベンダーで、そのベンダーが承認済み＆サブアカウントありなら分割先を返す。
func resolveSplitCode(ctx context.Context, r repo.TxRepos, products []model.Product) (string, error) {
	vendorID := ""
	for _, p := range products {
		if vendorID != "" && p.VendorID != vendorID {
			return "", nil
		}
		vendorID = p.VendorID
	}
	if vendorID == "" {
		return "", nil
	}

	v, err := r.Vendors().FindByID(ctx, vendorID)
	if err == repo.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", dbError()
	}
	if !v.IsApproved || !v.HasSubaccount() {
		return "", nil
	}
	return v.SubaccountCode(), nil
}

// "payment gateway rejected request: Invalid Email" → "Invalid Email"
func gatewayMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return msg[i+2:]
	}
	return msg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
