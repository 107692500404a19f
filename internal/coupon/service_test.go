package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

type stubQueries struct {
	coupon          store.Coupon
	redemptionCount int64
	insertRows      int64
	inserted        []store.InsertRedemptionParams
	usageBumps      int
}

func (s *stubQueries) GetCouponByCode(_ context.Context, code string) (store.Coupon, error) {
	if s.coupon.Code == "" {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubQueries) CountRedemptionsByUser(_ context.Context, _, _ pgtype.UUID) (int64, error) {
	return s.redemptionCount, nil
}

func (s *stubQueries) GetRedemptionByOrder(_ context.Context, _ pgtype.UUID) (store.CouponRedemption, error) {
	return store.CouponRedemption{}, pgx.ErrNoRows
}

func (s *stubQueries) InsertRedemption(_ context.Context, arg store.InsertRedemptionParams) (int64, error) {
	s.inserted = append(s.inserted, arg)
	return s.insertRows, nil
}

func (s *stubQueries) IncrementCouponUsage(_ context.Context, _ pgtype.UUID) error {
	s.usageBumps++
	return nil
}

func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func newCoupon() store.Coupon {
	return store.Coupon{
		ID:            uuidToPg(uuid.New()),
		Code:          "SAVE10",
		DiscountType:  store.DiscountTypePercentage,
		DiscountValue: 10,
		MinOrderValue: 100,
		ApplicableTo:  store.ScopeAllProducts,
		ValidFrom:     pgtype.Timestamptz{Time: time.Now().Add(-time.Hour), Valid: true},
		ValidUntil:    pgtype.Timestamptz{Time: time.Now().Add(time.Hour), Valid: true},
		Active:        true,
	}
}

func TestEvaluateUnknownCode(t *testing.T) {
	svc := &Service{Q: &stubQueries{}}
	_, err := svc.Evaluate(context.Background(), "NOPE", pgtype.UUID{}, 1000, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvaluateMinOrderUnmet(t *testing.T) {
	c := newCoupon()
	c.MinOrderValue = 5000
	svc := &Service{Q: &stubQueries{coupon: c}}
	_, err := svc.Evaluate(context.Background(), "SAVE10", pgtype.UUID{}, 1180, []pricing.Line{{LineTotal: 1000, LineTax: 180}})
	if !errors.Is(err, ErrMinOrderUnmet) {
		t.Fatalf("expected ErrMinOrderUnmet, got %v", err)
	}
}

func TestEvaluatePercentage(t *testing.T) {
	svc := &Service{Q: &stubQueries{coupon: newCoupon()}}
	eval, err := svc.Evaluate(context.Background(), "SAVE10", pgtype.UUID{}, 1180, []pricing.Line{{LineTotal: 1000, LineTax: 180}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Discount != 118 {
		t.Fatalf("expected discount 118, got %v", eval.Discount)
	}
	if eval.FreeShipping {
		t.Fatal("percentage coupon should not grant free shipping")
	}
}

func TestEvaluatePerUserLimit(t *testing.T) {
	c := newCoupon()
	c.PerUserLimit = pgtype.Int4{Int32: 1, Valid: true}
	svc := &Service{Q: &stubQueries{coupon: c, redemptionCount: 1}}
	_, err := svc.Evaluate(context.Background(), "SAVE10", uuidToPg(uuid.New()), 1180, []pricing.Line{{LineTotal: 1000, LineTax: 180}})
	if !errors.Is(err, ErrPerUserLimitReached) {
		t.Fatalf("expected ErrPerUserLimitReached, got %v", err)
	}
}

func TestEvaluateFreeShipping(t *testing.T) {
	c := newCoupon()
	c.DiscountType = store.DiscountTypeFreeShipping
	c.DiscountValue = 0
	svc := &Service{Q: &stubQueries{coupon: c}}
	eval, err := svc.Evaluate(context.Background(), "SAVE10", pgtype.UUID{}, 1180, []pricing.Line{{LineTotal: 1000, LineTax: 180}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eval.FreeShipping || eval.Discount != 0 {
		t.Fatalf("expected free shipping with zero discount, got %+v", eval)
	}
}

func TestRedeemBumpsUsageOnce(t *testing.T) {
	stub := &stubQueries{coupon: newCoupon(), insertRows: 1}
	svc := &Service{Q: stub}
	orderID := uuidToPg(uuid.New())
	if err := svc.Redeem(context.Background(), "SAVE10", orderID, uuidToPg(uuid.New()), 118); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.usageBumps != 1 {
		t.Fatalf("expected one usage bump, got %d", stub.usageBumps)
	}

	// A replay hits the unique order row and leaves the counter alone.
	stub.insertRows = 0
	if err := svc.Redeem(context.Background(), "SAVE10", orderID, uuidToPg(uuid.New()), 118); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.usageBumps != 1 {
		t.Fatalf("expected usage bump to stay at 1, got %d", stub.usageBumps)
	}
}
