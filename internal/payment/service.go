package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/obs"
	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// Querier captures the database methods required by the payment service.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	GetOrderByIDForUser(ctx context.Context, id, userID pgtype.UUID) (store.Order, error)
	GetLatestAttemptForOrder(ctx context.Context, orderID pgtype.UUID) (store.PaymentAttempt, error)
	GetAttemptByGatewayOrderID(ctx context.Context, gatewayOrderID string) (store.PaymentAttempt, error)
	CountAttemptsForOrder(ctx context.Context, orderID pgtype.UUID) (int64, error)
	InsertPaymentAttempt(ctx context.Context, arg store.InsertPaymentAttemptParams) error
	UpdateAttemptStatus(ctx context.Context, id pgtype.UUID, status string, reason pgtype.Text) error
	MarkAttemptCaptured(ctx context.Context, arg store.MarkAttemptCapturedParams) (int64, error)
	MarkOrderPaid(ctx context.Context, id pgtype.UUID, amountPaid float64, paidAt time.Time) (int64, error)
	SetOrderPaymentStatus(ctx context.Context, id pgtype.UUID, status string) error
}

// Redeemer records coupon usage. Redemption is idempotent per order; the
// capture-time call backstops the one made at order creation.
type Redeemer interface {
	Redeem(ctx context.Context, code string, orderID, userID pgtype.UUID, amount float64) error
}

// Reserver decrements stock for a paid order.
type Reserver interface {
	Reserve(ctx context.Context, orderID pgtype.UUID) error
}

// Intent is the client-facing response for opening a payment.
type Intent struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
	Reused         bool   `json:"reused"`
	AlreadyPaid    bool   `json:"alreadyPaid"`
}

// VerifyInput carries the gateway confirmation returned to the client.
type VerifyInput struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// VerifyOutput reports the settled order state.
type VerifyOutput struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	AlreadyPaid bool   `json:"alreadyPaid"`
}

// StatusOutput is the polling view of an order's payment progress.
type StatusOutput struct {
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	OrderStatus   string          `json:"orderStatus"`
	PaymentStatus string          `json:"paymentStatus"`
	AmountDue     float64         `json:"amountDue"`
	AmountPaid    float64         `json:"amountPaid"`
	Timeline      []TimelineEntry `json:"timeline,omitempty"`
}

// TimelineEntry is one recorded domain event on the order.
type TimelineEntry struct {
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Service coordinates payment intents, confirmation, and settlement.
type Service struct {
	Q           Querier
	Pool        *pgxpool.Pool
	WithTx      func(tx pgx.Tx) Querier
	Gateway     Gateway
	KeyID       string
	KeySecret   string
	Coupons     Redeemer
	Inventory   Reserver
	Events      *events.Bus
	Logger      zerolog.Logger
	MaxAttempts int
	AttemptTTL  time.Duration
	Now         func() time.Time
}

// CreateIntent opens (or reuses) a gateway order for the given order. Calling
// it on a paid order is an idempotent no-op.
func (s *Service) CreateIntent(ctx context.Context, userID pgtype.UUID, orderID string) (Intent, error) {
	if s == nil || s.Q == nil || s.Gateway == nil {
		return Intent{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateIntent")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.intent.result", result))
		if obs.PaymentIntentTotal != nil {
			obs.PaymentIntentTotal.WithLabelValues(result).Inc()
		}
	}()

	oid, err := store.ToUUID(orderID)
	if err != nil {
		return Intent{}, common.ValidationError("invalid order id", nil)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.Q.GetOrderByIDForUser(ctx, oid, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intent{}, common.NotFoundError("order not found")
		}
		return Intent{}, err
	}
	if order.IsPaid {
		result = "already_paid"
		return Intent{OrderID: orderID, AlreadyPaid: true, Currency: order.Currency}, nil
	}
	if order.Status != store.OrderStatusPending {
		return Intent{}, common.ValidationError(fmt.Sprintf("order status %s does not allow payment", order.Status), nil)
	}

	amount := pricing.MinorUnits(order.AmountDue)
	if amount <= 0 {
		return Intent{}, common.ValidationError("order amount must be positive", nil)
	}

	// Reuse a live gateway order rather than opening a new one per click.
	if existing, err := s.Q.GetLatestAttemptForOrder(ctx, oid); err == nil {
		if existing.Status == store.AttemptStatusCreated && existing.Amount == amount && s.attemptFresh(existing) {
			result = "reused"
			return Intent{
				OrderID:        orderID,
				GatewayOrderID: existing.GatewayOrderID,
				Amount:         existing.Amount,
				Currency:       existing.Currency,
				KeyID:          s.KeyID,
				Reused:         true,
			}, nil
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Intent{}, err
	}

	// The budget is per order, over its whole life. Exhausting it means
	// support has to step in.
	if s.MaxAttempts > 0 {
		n, err := s.Q.CountAttemptsForOrder(ctx, oid)
		if err != nil {
			return Intent{}, err
		}
		if n >= int64(s.MaxAttempts) {
			result = "throttled"
			return Intent{}, common.NewAppError("TOO_MANY_ATTEMPTS", "payment attempt limit reached, contact support", 429, nil)
		}
	}

	gw, err := s.Gateway.CreateOrder(ctx, CreateOrderInput{
		Amount:   amount,
		Currency: order.Currency,
		Receipt:  order.OrderNumber,
		Notes:    map[string]string{"orderId": orderID},
	})
	if err != nil {
		span.RecordError(err)
		return Intent{}, err
	}

	if err := s.Q.InsertPaymentAttempt(ctx, store.InsertPaymentAttemptParams{
		ID:              store.NewUUID(),
		OrderID:         oid,
		GatewayOrderID:  gw.ID,
		Amount:          amount,
		Currency:        order.Currency,
		Status:          store.AttemptStatusCreated,
		GatewayResponse: gw.Raw,
	}); err != nil {
		return Intent{}, err
	}
	if err := s.Q.SetOrderPaymentStatus(ctx, oid, store.PaymentStatusAttempted); err != nil {
		s.Logger.Warn().Err(err).Str("orderId", orderID).Msg("set order payment status attempted")
	}

	result = "success"
	return Intent{
		OrderID:        orderID,
		GatewayOrderID: gw.ID,
		Amount:         amount,
		Currency:       order.Currency,
		KeyID:          s.KeyID,
	}, nil
}

// Verify settles a client-reported payment confirmation. It authenticates the
// signature, re-reads the payment from the gateway, and captures the order
// exactly once; replays and webhook races converge to the same paid state.
func (s *Service) Verify(ctx context.Context, userID pgtype.UUID, in VerifyInput) (VerifyOutput, error) {
	if s == nil || s.Q == nil || s.Gateway == nil {
		return VerifyOutput{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Verify")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.verify.result", result))
		if obs.PaymentVerifyTotal != nil {
			obs.PaymentVerifyTotal.WithLabelValues(result).Inc()
		}
	}()

	attempt, err := s.Q.GetAttemptByGatewayOrderID(ctx, strings.TrimSpace(in.GatewayOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyOutput{}, common.NotFoundError("payment attempt not found")
		}
		return VerifyOutput{}, err
	}
	order, err := s.Q.GetOrderByIDForUser(ctx, attempt.OrderID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyOutput{}, common.NotFoundError("order not found")
		}
		return VerifyOutput{}, err
	}
	orderID := store.UUIDString(order.ID)
	span.SetAttributes(attribute.String("order.id", orderID))

	if order.IsPaid {
		result = "already_paid"
		return VerifyOutput{OrderID: orderID, Status: store.PaymentStatusCaptured, AlreadyPaid: true}, nil
	}

	// A bad signature leaves the attempt retryable: the client may resubmit
	// the correct confirmation for the same gateway order.
	if !VerifyCaptureSignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature, s.KeySecret) {
		s.failAttempt(ctx, attempt, store.AttemptStatusAttempted, "signature mismatch")
		result = "signature_mismatch"
		return VerifyOutput{}, common.PaymentSecurityError("payment signature verification failed", nil)
	}

	// Never trust the client's amount or status: the gateway record is the
	// source of truth. What the gateway reports is final for this attempt.
	gw, err := s.Gateway.FetchPayment(ctx, in.GatewayPaymentID)
	if err != nil {
		span.RecordError(err)
		return VerifyOutput{}, err
	}
	if gw.OrderID != attempt.GatewayOrderID {
		s.failAttempt(ctx, attempt, store.AttemptStatusFailed, "gateway order mismatch")
		result = "order_mismatch"
		return VerifyOutput{}, common.PaymentSecurityError("payment does not belong to this order", nil)
	}
	if gw.Amount != attempt.Amount {
		s.failAttempt(ctx, attempt, store.AttemptStatusFailed, fmt.Sprintf("amount mismatch: gateway %d expected %d", gw.Amount, attempt.Amount))
		result = "amount_mismatch"
		return VerifyOutput{}, common.PaymentSecurityError("payment amount does not match order", nil)
	}
	if !gw.Captured && !strings.EqualFold(gw.Status, "captured") {
		s.failAttempt(ctx, attempt, store.AttemptStatusFailed, "payment not captured at gateway")
		result = "not_captured"
		return VerifyOutput{}, common.PaymentSecurityError("payment is not captured", nil)
	}

	settled, err := s.settle(ctx, order, attempt, gw.ID, gw.Raw, true)
	if err != nil {
		return VerifyOutput{}, err
	}
	if !settled {
		// Lost the race to the webhook; the order is already paid.
		result = "already_paid"
		return VerifyOutput{OrderID: orderID, Status: store.PaymentStatusCaptured, AlreadyPaid: true}, nil
	}
	result = "success"
	return VerifyOutput{OrderID: orderID, Status: store.PaymentStatusCaptured}, nil
}

// settle performs the exactly-once capture. gatewayResponse is the raw
// payload the capture decision was based on, preserved on the attempt. It
// returns false when another writer captured first.
func (s *Service) settle(ctx context.Context, order store.Order, attempt store.PaymentAttempt, gatewayPaymentID string, gatewayResponse []byte, sigVerified bool) (bool, error) {
	now := s.now()
	amountPaid := float64(attempt.Amount) / 100

	q := s.Q
	var commit func(context.Context) error
	if s.Pool != nil {
		tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return false, err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if s.WithTx != nil {
			q = s.WithTx(tx)
		}
		commit = tx.Commit
	}

	rows, err := q.MarkOrderPaid(ctx, order.ID, amountPaid, now)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	if _, err := q.MarkAttemptCaptured(ctx, store.MarkAttemptCapturedParams{
		ID:               attempt.ID,
		GatewayPaymentID: gatewayPaymentID,
		SigVerified:      sigVerified,
		CapturedAt:       now,
		GatewayResponse:  gatewayResponse,
	}); err != nil {
		return false, err
	}
	if commit != nil {
		if err := commit(ctx); err != nil {
			return false, err
		}
	}

	if obs.PaymentCapturedTotal != nil {
		obs.PaymentCapturedTotal.Inc()
	}
	if s.Coupons != nil && order.CouponCode.Valid {
		code := strings.TrimSpace(order.CouponCode.String)
		if code != "" {
			if err := s.Coupons.Redeem(ctx, code, order.ID, order.UserID, order.Discount); err != nil {
				return true, fmt.Errorf("coupon redemption: %w", err)
			}
		}
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderPaid, order.ID, map[string]any{
			"orderId":          store.UUIDString(order.ID),
			"orderNumber":      order.OrderNumber,
			"gatewayPaymentId": gatewayPaymentID,
			"amountPaid":       amountPaid,
		})
	}
	if s.Inventory != nil {
		if err := s.Inventory.Reserve(ctx, order.ID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Status reports the consolidated payment state of an order.
func (s *Service) Status(ctx context.Context, userID pgtype.UUID, orderID string) (StatusOutput, error) {
	if s == nil || s.Q == nil {
		return StatusOutput{}, errors.New("payment service not configured")
	}
	oid, err := store.ToUUID(orderID)
	if err != nil {
		return StatusOutput{}, common.ValidationError("invalid order id", nil)
	}
	order, err := s.Q.GetOrderByIDForUser(ctx, oid, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusOutput{}, common.NotFoundError("order not found")
		}
		return StatusOutput{}, err
	}

	paymentStatus := order.PaymentStatus
	if order.IsPaid {
		paymentStatus = store.PaymentStatusCaptured
	} else if attempt, err := s.Q.GetLatestAttemptForOrder(ctx, oid); err == nil {
		switch attempt.Status {
		case store.AttemptStatusCaptured:
			paymentStatus = store.PaymentStatusCaptured
		case store.AttemptStatusFailed:
			paymentStatus = store.PaymentStatusFailed
		case store.AttemptStatusAttempted:
			paymentStatus = store.PaymentStatusAttempted
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return StatusOutput{}, err
	}

	out := StatusOutput{
		OrderID:       orderID,
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.Status,
		PaymentStatus: paymentStatus,
		AmountDue:     order.AmountDue,
		AmountPaid:    order.AmountPaid,
	}
	// Timeline is best effort; polling should not fail on a history read.
	if s.Events != nil {
		if history, err := s.Events.History(ctx, oid); err == nil {
			for _, ev := range history {
				out.Timeline = append(out.Timeline, TimelineEntry{Topic: ev.Topic, OccurredAt: ev.OccurredAt})
			}
		}
	}
	return out, nil
}

// failAttempt moves the attempt to the given status. ATTEMPTED keeps it
// retryable; FAILED is terminal for the attempt.
func (s *Service) failAttempt(ctx context.Context, attempt store.PaymentAttempt, status, reason string) {
	if !CanTransition(attempt.Status, status) {
		return
	}
	_ = s.Q.UpdateAttemptStatus(ctx, attempt.ID, status,
		pgtype.Text{String: reason, Valid: true})
}

func (s *Service) attemptFresh(attempt store.PaymentAttempt) bool {
	ttl := s.attemptTTL()
	return s.now().Sub(attempt.CreatedAt) < ttl
}

func (s *Service) attemptTTL() time.Duration {
	if s.AttemptTTL > 0 {
		return s.AttemptTTL
	}
	return 30 * time.Minute
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
