package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

const testKeySecret = "rzp_test_secret"

func pg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

type stubQuerier struct {
	order         store.Order
	attempts      []store.PaymentAttempt
	priorAttempts int64
	paidRows      int64
	markPaidCalls int
	captured      []string
	statusUpdates []string
}

func (s *stubQuerier) GetOrderByID(_ context.Context, _ pgtype.UUID) (store.Order, error) {
	if !s.order.ID.Valid {
		return store.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *stubQuerier) GetOrderByIDForUser(_ context.Context, _, _ pgtype.UUID) (store.Order, error) {
	if !s.order.ID.Valid {
		return store.Order{}, pgx.ErrNoRows
	}
	return s.order, nil
}

func (s *stubQuerier) GetLatestAttemptForOrder(_ context.Context, _ pgtype.UUID) (store.PaymentAttempt, error) {
	if len(s.attempts) == 0 {
		return store.PaymentAttempt{}, pgx.ErrNoRows
	}
	return s.attempts[len(s.attempts)-1], nil
}

func (s *stubQuerier) GetAttemptByGatewayOrderID(_ context.Context, gatewayOrderID string) (store.PaymentAttempt, error) {
	for _, a := range s.attempts {
		if a.GatewayOrderID == gatewayOrderID {
			return a, nil
		}
	}
	return store.PaymentAttempt{}, pgx.ErrNoRows
}

func (s *stubQuerier) CountAttemptsForOrder(_ context.Context, _ pgtype.UUID) (int64, error) {
	return s.priorAttempts + int64(len(s.attempts)), nil
}

func (s *stubQuerier) InsertPaymentAttempt(_ context.Context, arg store.InsertPaymentAttemptParams) error {
	s.attempts = append(s.attempts, store.PaymentAttempt{
		ID:              arg.ID,
		OrderID:         arg.OrderID,
		GatewayOrderID:  arg.GatewayOrderID,
		Amount:          arg.Amount,
		Currency:        arg.Currency,
		Status:          arg.Status,
		GatewayResponse: arg.GatewayResponse,
		CreatedAt:       time.Now(),
	})
	return nil
}

func (s *stubQuerier) UpdateAttemptStatus(_ context.Context, id pgtype.UUID, status string, reason pgtype.Text) error {
	for i := range s.attempts {
		if s.attempts[i].ID == id {
			s.attempts[i].Status = status
			s.attempts[i].ErrorReason = reason
		}
	}
	return nil
}

func (s *stubQuerier) MarkAttemptCaptured(_ context.Context, arg store.MarkAttemptCapturedParams) (int64, error) {
	s.captured = append(s.captured, arg.GatewayPaymentID)
	for i := range s.attempts {
		if s.attempts[i].ID == arg.ID {
			s.attempts[i].Status = store.AttemptStatusCaptured
			if arg.GatewayResponse != nil {
				s.attempts[i].GatewayResponse = arg.GatewayResponse
			}
		}
	}
	return 1, nil
}

func (s *stubQuerier) MarkOrderPaid(_ context.Context, _ pgtype.UUID, _ float64, _ time.Time) (int64, error) {
	s.markPaidCalls++
	if s.paidRows == 1 {
		s.order.IsPaid = true
	}
	return s.paidRows, nil
}

func (s *stubQuerier) SetOrderPaymentStatus(_ context.Context, _ pgtype.UUID, status string) error {
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

type stubGateway struct {
	order      GatewayOrder
	orderErr   error
	payment    GatewayPayment
	paymentErr error
	created    int
}

func (g *stubGateway) CreateOrder(_ context.Context, in CreateOrderInput) (GatewayOrder, error) {
	g.created++
	if g.orderErr != nil {
		return GatewayOrder{}, g.orderErr
	}
	out := g.order
	if out.ID == "" {
		out = GatewayOrder{ID: "order_stub", Amount: in.Amount, Currency: in.Currency, Status: "created"}
	}
	return out, nil
}

func (g *stubGateway) FetchPayment(_ context.Context, _ string) (GatewayPayment, error) {
	if g.paymentErr != nil {
		return GatewayPayment{}, g.paymentErr
	}
	return g.payment, nil
}

type stubReserver struct {
	calls int
	err   error
}

func (r *stubReserver) Reserve(_ context.Context, _ pgtype.UUID) error {
	r.calls++
	return r.err
}

type stubRedeemer struct {
	calls int
}

func (r *stubRedeemer) Redeem(_ context.Context, _ string, _, _ pgtype.UUID, _ float64) error {
	r.calls++
	return nil
}

func pendingOrder() store.Order {
	return store.Order{
		ID:            pg(uuid.New()),
		OrderNumber:   "ORD-20250601-A1B2C",
		UserID:        pg(uuid.New()),
		Status:        store.OrderStatusPending,
		PaymentStatus: store.PaymentStatusCreated,
		Currency:      "INR",
		AmountDue:     1062,
	}
}

func newService(q *stubQuerier, gw *stubGateway) *Service {
	return &Service{
		Q:           q,
		Gateway:     gw,
		KeyID:       "rzp_test_key",
		KeySecret:   testKeySecret,
		MaxAttempts: 5,
		AttemptTTL:  30 * time.Minute,
	}
}

func signCapture(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateIntent(t *testing.T) {
	q := &stubQuerier{order: pendingOrder(), paidRows: 1}
	gw := &stubGateway{}
	svc := newService(q, gw)

	out, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	require.Equal(t, int64(106200), out.Amount)
	require.Equal(t, "order_stub", out.GatewayOrderID)
	require.Equal(t, "rzp_test_key", out.KeyID)
	require.Len(t, q.attempts, 1)
	require.Equal(t, store.AttemptStatusCreated, q.attempts[0].Status)
	require.Contains(t, q.statusUpdates, store.PaymentStatusAttempted)
}

func TestCreateIntentPaidOrderIsNoop(t *testing.T) {
	q := &stubQuerier{order: pendingOrder()}
	q.order.IsPaid = true
	gw := &stubGateway{}
	svc := newService(q, gw)

	out, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	require.True(t, out.AlreadyPaid)
	require.Zero(t, gw.created)
	require.Empty(t, q.attempts)
}

func TestCreateIntentReusesLiveAttempt(t *testing.T) {
	q := &stubQuerier{order: pendingOrder(), paidRows: 1}
	gw := &stubGateway{}
	svc := newService(q, gw)

	first, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	second, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Equal(t, first.GatewayOrderID, second.GatewayOrderID)
	require.Equal(t, 1, gw.created)
}

func TestCreateIntentThrottlesAttempts(t *testing.T) {
	q := &stubQuerier{order: pendingOrder(), priorAttempts: 5}
	svc := newService(q, &stubGateway{})

	_, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "TOO_MANY_ATTEMPTS", appErr.Code)
}

func TestCreateIntentBudgetCountsStaleAttempts(t *testing.T) {
	q := &stubQuerier{order: pendingOrder()}
	for i := 0; i < 5; i++ {
		q.attempts = append(q.attempts, store.PaymentAttempt{
			ID:             pg(uuid.New()),
			OrderID:        q.order.ID,
			GatewayOrderID: fmt.Sprintf("order_old_%d", i),
			Status:         store.AttemptStatusFailed,
			CreatedAt:      time.Now().Add(-24 * time.Hour),
		})
	}
	gw := &stubGateway{}
	svc := newService(q, gw)

	// The budget never resets: old failed attempts still count against it.
	_, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "TOO_MANY_ATTEMPTS", appErr.Code)
	require.Zero(t, gw.created)
}

func capturedFixture(t *testing.T) (*stubQuerier, *stubGateway, *Service, VerifyInput) {
	t.Helper()
	q := &stubQuerier{order: pendingOrder(), paidRows: 1}
	gw := &stubGateway{}
	svc := newService(q, gw)

	intent, err := svc.CreateIntent(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)

	gw.payment = GatewayPayment{
		ID:       "pay_123",
		OrderID:  intent.GatewayOrderID,
		Amount:   intent.Amount,
		Currency: "INR",
		Status:   "captured",
		Captured: true,
		Raw:      []byte(`{"id":"pay_123","status":"captured"}`),
	}
	in := VerifyInput{
		GatewayOrderID:   intent.GatewayOrderID,
		GatewayPaymentID: "pay_123",
		Signature:        signCapture(intent.GatewayOrderID, "pay_123"),
	}
	return q, gw, svc, in
}

func TestVerifyCaptures(t *testing.T) {
	q, _, svc, in := capturedFixture(t)
	reserver := &stubReserver{}
	redeemer := &stubRedeemer{}
	svc.Inventory = reserver
	svc.Coupons = redeemer
	q.order.CouponCode = pgtype.Text{String: "SAVE10", Valid: true}
	q.order.Discount = 118

	out, err := svc.Verify(context.Background(), q.order.UserID, in)
	require.NoError(t, err)
	require.Equal(t, store.PaymentStatusCaptured, out.Status)
	require.False(t, out.AlreadyPaid)
	require.Equal(t, 1, q.markPaidCalls)
	require.Equal(t, []string{"pay_123"}, q.captured)
	// The fetched payment record replaces the order-creation payload.
	require.JSONEq(t, `{"id":"pay_123","status":"captured"}`, string(q.attempts[0].GatewayResponse))
	require.Equal(t, 1, reserver.calls)
	require.Equal(t, 1, redeemer.calls)
}

func TestVerifyReplayIsIdempotent(t *testing.T) {
	q, _, svc, in := capturedFixture(t)
	reserver := &stubReserver{}
	svc.Inventory = reserver

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	require.NoError(t, err)

	out, err := svc.Verify(context.Background(), q.order.UserID, in)
	require.NoError(t, err)
	require.True(t, out.AlreadyPaid)
	require.Equal(t, 1, q.markPaidCalls)
	require.Equal(t, 1, reserver.calls)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	q, _, svc, in := capturedFixture(t)
	in.Signature = signCapture(in.GatewayOrderID, "pay_other")

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PAYMENT_SECURITY", appErr.Code)
	require.Equal(t, store.AttemptStatusAttempted, q.attempts[0].Status)
	require.Zero(t, q.markPaidCalls)
}

func TestVerifyRejectsAmountMismatch(t *testing.T) {
	q, gw, svc, in := capturedFixture(t)
	gw.payment.Amount = 100

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PAYMENT_SECURITY", appErr.Code)
	require.Equal(t, store.AttemptStatusFailed, q.attempts[0].Status)
	require.Zero(t, q.markPaidCalls)
}

func TestVerifyRejectsForeignPayment(t *testing.T) {
	q, gw, svc, in := capturedFixture(t)
	gw.payment.OrderID = "order_someone_else"

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PAYMENT_SECURITY", appErr.Code)
	require.Equal(t, store.AttemptStatusFailed, q.attempts[0].Status)
}

func TestVerifyRejectsUncapturedPayment(t *testing.T) {
	q, gw, svc, in := capturedFixture(t)
	gw.payment.Captured = false
	gw.payment.Status = "authorized"

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "PAYMENT_SECURITY", appErr.Code)
	// The gateway said this payment never captured; the attempt is spent.
	require.Equal(t, store.AttemptStatusFailed, q.attempts[0].Status)
}

func TestVerifyLosesRaceToWebhook(t *testing.T) {
	q, _, svc, in := capturedFixture(t)
	// Another writer captured between the read and the conditional update.
	q.paidRows = 0

	out, err := svc.Verify(context.Background(), q.order.UserID, in)
	require.NoError(t, err)
	require.True(t, out.AlreadyPaid)
}

func TestStatusPrecedence(t *testing.T) {
	q := &stubQuerier{order: pendingOrder()}
	svc := newService(q, &stubGateway{})

	status, err := svc.Status(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	require.Equal(t, store.PaymentStatusCreated, status.PaymentStatus)

	q.order.IsPaid = true
	status, err = svc.Status(context.Background(), q.order.UserID, store.UUIDString(q.order.ID))
	require.NoError(t, err)
	require.Equal(t, store.PaymentStatusCaptured, status.PaymentStatus)
}

func TestStateTransitions(t *testing.T) {
	require.True(t, CanTransition(store.AttemptStatusCreated, store.AttemptStatusCaptured))
	require.True(t, CanTransition(store.AttemptStatusAttempted, store.AttemptStatusCaptured))
	require.False(t, CanTransition(store.AttemptStatusCaptured, store.AttemptStatusFailed))
	require.False(t, CanTransition(store.AttemptStatusFailed, store.AttemptStatusCaptured))
	require.True(t, IsTerminal(store.AttemptStatusCaptured))
	require.True(t, IsTerminal(store.AttemptStatusFailed))
	require.False(t, IsTerminal(store.AttemptStatusCreated))
}

func TestVerifyGatewayFetchFailure(t *testing.T) {
	q, gw, svc, in := capturedFixture(t)
	gw.paymentErr = errors.New("gateway down")

	_, err := svc.Verify(context.Background(), q.order.UserID, in)
	require.Error(t, err)
	require.Zero(t, q.markPaidCalls)
}
