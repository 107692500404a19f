package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// Querier captures the database methods required by the coupon service.
type Querier interface {
	GetCouponByCode(ctx context.Context, code string) (store.Coupon, error)
	CountRedemptionsByUser(ctx context.Context, couponID, userID pgtype.UUID) (int64, error)
	GetRedemptionByOrder(ctx context.Context, orderID pgtype.UUID) (store.CouponRedemption, error)
	InsertRedemption(ctx context.Context, arg store.InsertRedemptionParams) (int64, error)
	IncrementCouponUsage(ctx context.Context, id pgtype.UUID) error
}

// Evaluation describes the outcome of applying a coupon to a cart without
// mutating state.
type Evaluation struct {
	Code             string  `json:"code"`
	Discount         float64 `json:"discount"`
	ApplicableAmount float64 `json:"applicableAmount"`
	FreeShipping     bool    `json:"freeShipping"`
}

// Service evaluates coupon rules and records redemptions.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Evaluate performs a dry-run evaluation of the code against the priced cart.
// orderTotal is the pre-discount total the minimum-order floor is checked
// against.
func (s *Service) Evaluate(ctx context.Context, code string, userID pgtype.UUID, orderTotal float64, lines []pricing.Line) (Evaluation, error) {
	if s == nil || s.Q == nil {
		return Evaluation{}, errors.New("coupon service not configured")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Evaluation{}, fmt.Errorf("code is required: %w", ErrNotFound)
	}
	c, err := s.Q.GetCouponByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evaluation{}, ErrNotFound
		}
		return Evaluation{}, err
	}
	rule := RuleFromModel(c)

	if userID.Valid && rule.PerUserLimit != nil && *rule.PerUserLimit > 0 {
		used, err := s.Q.CountRedemptionsByUser(ctx, c.ID, userID)
		if err != nil {
			return Evaluation{}, err
		}
		rule.PerUserUsed = int32(used)
	}

	if err := rule.Validate(s.now(), orderTotal); err != nil {
		return Evaluation{}, err
	}
	applicable := ApplicableTotal(lines, rule)
	if applicable <= 0 {
		return Evaluation{}, ErrNotApplicable
	}
	free := strings.EqualFold(rule.DiscountType, store.DiscountTypeFreeShipping)
	discount := Discount(applicable, rule)
	if discount <= 0 && !free {
		return Evaluation{}, ErrNotApplicable
	}
	return Evaluation{
		Code:             c.Code,
		Discount:         discount,
		ApplicableAmount: applicable,
		FreeShipping:     free,
	}, nil
}

// Redeem records the coupon use for an order. It is idempotent per order:
// replays hit the unique redemption row and leave the usage counter alone.
func (s *Service) Redeem(ctx context.Context, code string, orderID, userID pgtype.UUID, amount float64) error {
	if s == nil || s.Q == nil {
		return errors.New("coupon service not configured")
	}
	if strings.TrimSpace(code) == "" || !orderID.Valid {
		return nil
	}
	c, err := s.Q.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if amount < 0 {
		amount = 0
	}
	inserted, err := s.Q.InsertRedemption(ctx, store.InsertRedemptionParams{
		ID:       store.NewUUID(),
		CouponID: c.ID,
		OrderID:  orderID,
		UserID:   userID,
		Amount:   amount,
	})
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}
	return s.Q.IncrementCouponUsage(ctx, c.ID)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
