package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getCartByUser = `SELECT id, user_id, coupon_code FROM carts WHERE user_id = $1`

func (q *Queries) GetCartByUser(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	var c Cart
	err := q.db.QueryRow(ctx, getCartByUser, userID).Scan(&c.ID, &c.UserID, &c.CouponCode)
	return c, err
}

// ListCartLines joins cart items with current product and variant pricing.
// Variant fields win over product fields when the line carries a variant.
const listCartLines = `
SELECT
    ci.product_id,
    ci.variant_id,
    p.category_id,
    p.name,
    COALESCE(v.price, p.price)                   AS unit_price,
    COALESCE(v.original_price, p.original_price) AS original_price,
    ci.quantity,
    p.tax_rate,
    COALESCE(v.stock_quantity, p.stock_quantity) AS stock_quantity,
    p.returnable,
    p.return_window_days
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
LEFT JOIN product_variants v ON v.id = ci.variant_id
WHERE ci.cart_id = $1
ORDER BY ci.created_at
`

func (q *Queries) ListCartLines(ctx context.Context, cartID pgtype.UUID) ([]CartLine, error) {
	rows, err := q.db.Query(ctx, listCartLines, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []CartLine
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(
			&l.ProductID, &l.VariantID, &l.CategoryID, &l.Name, &l.UnitPrice,
			&l.OriginalPrice, &l.Quantity, &l.TaxRate, &l.StockQuantity,
			&l.Returnable, &l.ReturnWindowDays,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const clearCart = `DELETE FROM cart_items WHERE cart_id = $1`

func (q *Queries) ClearCart(ctx context.Context, cartID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, clearCart, cartID)
	return err
}

const setCartCoupon = `UPDATE carts SET coupon_code = $2 WHERE id = $1`

func (q *Queries) SetCartCoupon(ctx context.Context, cartID pgtype.UUID, code pgtype.Text) error {
	_, err := q.db.Exec(ctx, setCartCoupon, cartID, code)
	return err
}
