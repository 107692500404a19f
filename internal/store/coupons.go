package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getCouponByCode = `
SELECT id, code, name, discount_type, discount_value, max_discount, min_order_value,
       valid_from, valid_until, usage_limit, used_count, per_user_limit,
       applicable_to, product_ids, category_ids, active
FROM coupons WHERE upper(code) = upper($1)
`

func (q *Queries) GetCouponByCode(ctx context.Context, code string) (Coupon, error) {
	var c Coupon
	err := q.db.QueryRow(ctx, getCouponByCode, code).Scan(
		&c.ID, &c.Code, &c.Name, &c.DiscountType, &c.DiscountValue, &c.MaxDiscount,
		&c.MinOrderValue, &c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsedCount,
		&c.PerUserLimit, &c.ApplicableTo, &c.ProductIDs, &c.CategoryIDs, &c.Active,
	)
	return c, err
}

const countRedemptionsByUser = `
SELECT count(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2
`

func (q *Queries) CountRedemptionsByUser(ctx context.Context, couponID, userID pgtype.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countRedemptionsByUser, couponID, userID).Scan(&n)
	return n, err
}

const getRedemptionByOrder = `
SELECT id, coupon_id, order_id, user_id, amount
FROM coupon_redemptions WHERE order_id = $1
`

func (q *Queries) GetRedemptionByOrder(ctx context.Context, orderID pgtype.UUID) (CouponRedemption, error) {
	var r CouponRedemption
	err := q.db.QueryRow(ctx, getRedemptionByOrder, orderID).Scan(
		&r.ID, &r.CouponID, &r.OrderID, &r.UserID, &r.Amount,
	)
	return r, err
}

// InsertRedemption relies on the unique index on order_id to make redemption
// idempotent per order.
const insertRedemption = `
INSERT INTO coupon_redemptions (id, coupon_id, order_id, user_id, amount)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id) DO NOTHING
`

type InsertRedemptionParams struct {
	ID       pgtype.UUID
	CouponID pgtype.UUID
	OrderID  pgtype.UUID
	UserID   pgtype.UUID
	Amount   float64
}

func (q *Queries) InsertRedemption(ctx context.Context, arg InsertRedemptionParams) (int64, error) {
	tag, err := q.db.Exec(ctx, insertRedemption,
		arg.ID, arg.CouponID, arg.OrderID, arg.UserID, arg.Amount)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const incrementCouponUsage = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`

func (q *Queries) IncrementCouponUsage(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, incrementCouponUsage, id)
	return err
}
