package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Subash-08/iTech-compters-sub001/internal/cart"
	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/coupon"
	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

const uniqueViolation = "23505"

// Querier captures the database methods required by the checkout service.
type Querier interface {
	GetAddress(ctx context.Context, id, userID pgtype.UUID) (store.Address, error)
	InsertOrder(ctx context.Context, arg store.InsertOrderParams) error
	InsertOrderItem(ctx context.Context, arg store.InsertOrderItemParams) error
	ClearCart(ctx context.Context, cartID pgtype.UUID) error
	SetCartCoupon(ctx context.Context, cartID pgtype.UUID, code pgtype.Text) error
}

// Quote is the priced view of the current cart, shown before order creation.
type Quote struct {
	Breakdown    pricing.Breakdown `json:"pricing"`
	Lines        []pricing.Line    `json:"lines"`
	CouponCode   string            `json:"couponCode,omitempty"`
	CouponError  string            `json:"couponError,omitempty"`
	FreeShipping bool              `json:"freeShipping"`
	TotalSavings float64           `json:"totalSavings"`
}

// CreateInput is the payload for assembling an order from the cart.
type CreateInput struct {
	ShippingAddressID string `json:"shippingAddressId"`
	BillingAddressID  string `json:"billingAddressId"`
	CouponCode        string `json:"couponCode"`
	PaymentMethod     string `json:"paymentMethod"`
}

// CreateOutput identifies the pending order handed to the payment flow.
type CreateOutput struct {
	OrderID     string  `json:"orderId"`
	OrderNumber string  `json:"orderNumber"`
	Status      string  `json:"status"`
	AmountDue   float64 `json:"amountDue"`
	Currency    string  `json:"currency"`
}

// Service assembles orders from cart snapshots.
type Service struct {
	Q          Querier
	Pool       *pgxpool.Pool
	WithTx     func(tx pgx.Tx) Querier
	Cart       *cart.Service
	Coupons    *coupon.Service
	Events     *events.Bus
	Currency   string
	FreeShipAt float64
	FlatRate   float64
	MaxRetries int
	Now        func() time.Time
}

// Quote prices the cart without mutating anything. codeOverride, when set,
// replaces the coupon stored on the cart for this evaluation only.
func (s *Service) Quote(ctx context.Context, userID pgtype.UUID, codeOverride string) (Quote, error) {
	snap, err := s.Cart.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrEmpty) {
			return Quote{}, common.ValidationError("cart is empty", nil)
		}
		return Quote{}, err
	}
	return s.price(ctx, userID, snap, codeOverride)
}

// ApplyCoupon validates the code against the current cart and stores it on
// the cart, so later quotes and order creation pick it up automatically.
func (s *Service) ApplyCoupon(ctx context.Context, userID pgtype.UUID, code string) (Quote, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Quote{}, common.ValidationError("coupon code is required", nil)
	}
	snap, err := s.Cart.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrEmpty) {
			return Quote{}, common.ValidationError("cart is empty", nil)
		}
		return Quote{}, err
	}
	q, err := s.price(ctx, userID, snap, trimmed)
	if err != nil {
		return Quote{}, err
	}
	if q.CouponError != "" {
		return Quote{}, common.ValidationError("coupon rejected", map[string]any{"reason": q.CouponError})
	}
	if err := s.Q.SetCartCoupon(ctx, snap.CartID, pgtype.Text{String: trimmed, Valid: true}); err != nil {
		return Quote{}, fmt.Errorf("store coupon on cart: %w", err)
	}
	return q, nil
}

// RemoveCoupon clears the stored coupon and reprices the cart without it.
func (s *Service) RemoveCoupon(ctx context.Context, userID pgtype.UUID) (Quote, error) {
	snap, err := s.Cart.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrEmpty) {
			return Quote{}, common.ValidationError("cart is empty", nil)
		}
		return Quote{}, err
	}
	if err := s.Q.SetCartCoupon(ctx, snap.CartID, pgtype.Text{}); err != nil {
		return Quote{}, fmt.Errorf("clear coupon on cart: %w", err)
	}
	snap.CouponCode = ""
	return s.price(ctx, userID, snap, "")
}

func (s *Service) price(ctx context.Context, userID pgtype.UUID, snap cart.Snapshot, codeOverride string) (Quote, error) {
	code := strings.TrimSpace(codeOverride)
	if code == "" {
		code = snap.CouponCode
	}

	// First pass without a discount gives the pre-discount total the coupon
	// floor and shipping threshold are checked against.
	base := pricing.Compute(snap.Lines, 0, 0)
	shipping := s.FlatRate
	if base.Subtotal >= s.FreeShipAt {
		shipping = 0
	}

	q := Quote{CouponCode: code}
	var discount float64
	if code != "" {
		eval, err := s.Coupons.Evaluate(ctx, code, userID, base.Total+shipping, base.Lines)
		if err != nil {
			if common.IsAppError(err) {
				return Quote{}, err
			}
			q.CouponError = err.Error()
			q.CouponCode = ""
			code = ""
		} else {
			discount = eval.Discount
			if eval.FreeShipping {
				shipping = 0
				q.FreeShipping = true
			}
		}
	}
	if shipping == 0 && s.FlatRate > 0 && base.Subtotal >= s.FreeShipAt {
		q.FreeShipping = true
	}

	q.Breakdown = pricing.Compute(snap.Lines, discount, shipping)
	q.Breakdown.Currency = s.Currency
	q.Lines = q.Breakdown.Lines
	q.TotalSavings = pricing.TotalSavings(q.Breakdown.Lines, discount)
	return q, nil
}

// Create assembles a pending order from the cart: it re-derives pricing,
// re-validates the coupon, freezes the addresses, writes the order and its
// items in one transaction, and records the coupon redemption once the order
// is durable. The cart survives until payment captures.
func (s *Service) Create(ctx context.Context, userID pgtype.UUID, in CreateInput) (CreateOutput, error) {
	if s == nil || s.Q == nil {
		return CreateOutput{}, errors.New("checkout service not configured")
	}
	snap, err := s.Cart.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrEmpty) {
			return CreateOutput{}, common.ValidationError("cart is empty", nil)
		}
		return CreateOutput{}, err
	}
	if err := cart.CheckStock(snap); err != nil {
		return CreateOutput{}, err
	}

	quote, err := s.price(ctx, userID, snap, in.CouponCode)
	if err != nil {
		return CreateOutput{}, err
	}
	if quote.CouponError != "" && strings.TrimSpace(in.CouponCode) != "" {
		return CreateOutput{}, common.ValidationError("coupon rejected", map[string]any{"reason": quote.CouponError})
	}

	shipAddr, err := s.frozenAddress(ctx, in.ShippingAddressID, userID)
	if err != nil {
		return CreateOutput{}, err
	}
	billAddr := shipAddr
	if strings.TrimSpace(in.BillingAddressID) != "" && in.BillingAddressID != in.ShippingAddressID {
		billAddr, err = s.frozenAddress(ctx, in.BillingAddressID, userID)
		if err != nil {
			return CreateOutput{}, err
		}
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = "razorpay"
	}

	orderID := store.NewUUID()
	bd := quote.Breakdown

	var orderNumber string
	for attempt := 0; ; attempt++ {
		orderNumber, err = NewOrderNumber(s.now())
		if err != nil {
			return CreateOutput{}, err
		}
		err = s.writeOrder(ctx, orderID, orderNumber, userID, snap, quote, bd, method, shipAddr, billAddr, in)
		if err == nil {
			break
		}
		if isUniqueViolation(err) && attempt+1 < s.maxRetries() {
			continue
		}
		return CreateOutput{}, err
	}

	// Usage is counted the moment the order durably holds the coupon, not at
	// payment time; a usage-limited code cannot be parked on pending orders
	// past its limit. Redemption is idempotent per order.
	if s.Coupons != nil && quote.CouponCode != "" {
		if err := s.Coupons.Redeem(ctx, quote.CouponCode, orderID, userID, bd.Discount); err != nil {
			return CreateOutput{}, fmt.Errorf("coupon redemption: %w", err)
		}
	}

	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, orderID, map[string]any{
			"orderId":     store.UUIDString(orderID),
			"orderNumber": orderNumber,
			"userId":      store.UUIDString(userID),
			"amountDue":   bd.AmountDue,
			"currency":    s.Currency,
		})
	}

	return CreateOutput{
		OrderID:     store.UUIDString(orderID),
		OrderNumber: orderNumber,
		Status:      store.OrderStatusPending,
		AmountDue:   bd.AmountDue,
		Currency:    s.Currency,
	}, nil
}

func (s *Service) writeOrder(ctx context.Context, orderID pgtype.UUID, orderNumber string, userID pgtype.UUID, snap cart.Snapshot, quote Quote, bd pricing.Breakdown, method string, shipAddr, billAddr []byte, in CreateInput) error {
	q := s.Q
	var commit func(context.Context) error
	if s.Pool != nil {
		tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if s.WithTx != nil {
			q = s.WithTx(tx)
		}
		commit = tx.Commit
	}

	couponCode := pgtype.Text{}
	if quote.CouponCode != "" {
		couponCode = pgtype.Text{String: quote.CouponCode, Valid: true}
	}
	if err := q.InsertOrder(ctx, store.InsertOrderParams{
		ID:              orderID,
		OrderNumber:     orderNumber,
		UserID:          userID,
		Status:          store.OrderStatusPending,
		PaymentStatus:   store.PaymentStatusCreated,
		Currency:        s.Currency,
		Subtotal:        bd.Subtotal,
		Tax:             bd.Tax,
		Shipping:        bd.Shipping,
		Discount:        bd.Discount,
		Total:           bd.Total,
		AmountDue:       bd.AmountDue,
		TotalSavings:    quote.TotalSavings,
		CouponCode:      couponCode,
		PaymentMethod:   method,
		ShippingAddress: shipAddr,
		BillingAddress:  billAddr,
	}); err != nil {
		return err
	}

	for _, ln := range bd.Lines {
		productID, err := store.ToUUID(ln.ProductID)
		if err != nil {
			return fmt.Errorf("invalid product id on cart line: %w", err)
		}
		variantID := pgtype.UUID{}
		if ln.VariantID != "" {
			variantID, err = store.ToUUID(ln.VariantID)
			if err != nil {
				return fmt.Errorf("invalid variant id on cart line: %w", err)
			}
		}
		ret := snap.Returns[cart.LineKey(ln)]
		if err := q.InsertOrderItem(ctx, store.InsertOrderItemParams{
			ID:               store.NewUUID(),
			OrderID:          orderID,
			ProductID:        productID,
			VariantID:        variantID,
			Name:             ln.Name,
			UnitPrice:        ln.UnitPrice,
			OriginalPrice:    ln.OriginalPrice,
			Quantity:         int32(ln.Quantity),
			TaxRate:          ln.TaxRate,
			LineTotal:        ln.LineTotal,
			LineTax:          ln.LineTax,
			Returnable:       ret.Returnable,
			ReturnWindowDays: ret.WindowDays,
		}); err != nil {
			return err
		}
	}

	if commit != nil {
		return commit(ctx)
	}
	return nil
}

func (s *Service) frozenAddress(ctx context.Context, rawID string, userID pgtype.UUID) ([]byte, error) {
	id, err := store.ToUUID(rawID)
	if err != nil {
		return nil, common.ValidationError("invalid address id", nil)
	}
	a, err := s.Q.GetAddress(ctx, id, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NotFoundError("address not found")
		}
		return nil, err
	}
	frozen := map[string]any{
		"receiverName": a.ReceiverName,
		"phone":        a.Phone,
		"addressLine1": a.AddressLine1,
		"city":         a.City,
		"state":        a.State,
		"country":      a.Country,
		"postalCode":   a.PostalCode,
	}
	if a.AddressLine2.Valid {
		frozen["addressLine2"] = a.AddressLine2.String
	}
	return json.Marshal(frozen)
}

func (s *Service) maxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return 3
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
