package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertOrder = `
INSERT INTO orders (
    id, order_number, user_id, status, payment_status, is_paid, currency,
    subtotal, tax, shipping, discount, total, amount_due, amount_paid,
    total_savings, coupon_code, payment_method, shipping_address, billing_address
) VALUES (
    $1, $2, $3, $4, $5, false, $6,
    $7, $8, $9, $10, $11, $12, 0,
    $13, $14, $15, $16, $17
)
`

type InsertOrderParams struct {
	ID              pgtype.UUID
	OrderNumber     string
	UserID          pgtype.UUID
	Status          string
	PaymentStatus   string
	Currency        string
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Discount        float64
	Total           float64
	AmountDue       float64
	TotalSavings    float64
	CouponCode      pgtype.Text
	PaymentMethod   string
	ShippingAddress []byte
	BillingAddress  []byte
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) error {
	_, err := q.db.Exec(ctx, insertOrder,
		arg.ID, arg.OrderNumber, arg.UserID, arg.Status, arg.PaymentStatus, arg.Currency,
		arg.Subtotal, arg.Tax, arg.Shipping, arg.Discount, arg.Total, arg.AmountDue,
		arg.TotalSavings, arg.CouponCode, arg.PaymentMethod, arg.ShippingAddress, arg.BillingAddress,
	)
	return err
}

const insertOrderItem = `
INSERT INTO order_items (
    id, order_id, product_id, variant_id, name, unit_price, original_price,
    quantity, tax_rate, line_total, line_tax, returnable, return_window_days
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

type InsertOrderItemParams struct {
	ID               pgtype.UUID
	OrderID          pgtype.UUID
	ProductID        pgtype.UUID
	VariantID        pgtype.UUID
	Name             string
	UnitPrice        float64
	OriginalPrice    float64
	Quantity         int32
	TaxRate          float64
	LineTotal        float64
	LineTax          float64
	Returnable       bool
	ReturnWindowDays int32
}

func (q *Queries) InsertOrderItem(ctx context.Context, arg InsertOrderItemParams) error {
	_, err := q.db.Exec(ctx, insertOrderItem,
		arg.ID, arg.OrderID, arg.ProductID, arg.VariantID, arg.Name, arg.UnitPrice,
		arg.OriginalPrice, arg.Quantity, arg.TaxRate, arg.LineTotal, arg.LineTax,
		arg.Returnable, arg.ReturnWindowDays,
	)
	return err
}

const orderColumns = `
    id, order_number, user_id, status, payment_status, is_paid, currency,
    subtotal, tax, shipping, discount, total, amount_due, amount_paid,
    total_savings, coupon_code, payment_method, shipping_address, billing_address,
    created_at, paid_at
`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &o.IsPaid, &o.Currency,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total, &o.AmountDue, &o.AmountPaid,
		&o.TotalSavings, &o.CouponCode, &o.PaymentMethod, &o.ShippingAddress, &o.BillingAddress,
		&o.CreatedAt, &o.PaidAt,
	)
	return o, err
}

const getOrderByID = `SELECT` + orderColumns + `FROM orders WHERE id = $1`

func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const getOrderByIDForUser = `SELECT` + orderColumns + `FROM orders WHERE id = $1 AND user_id = $2`

func (q *Queries) GetOrderByIDForUser(ctx context.Context, id, userID pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByIDForUser, id, userID))
}

const listOrderItems = `
SELECT id, order_id, product_id, variant_id, name, unit_price, original_price,
       quantity, tax_rate, line_total, line_tax, returnable, return_window_days
FROM order_items WHERE order_id = $1 ORDER BY id
`

func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Name, &it.UnitPrice,
			&it.OriginalPrice, &it.Quantity, &it.TaxRate, &it.LineTotal, &it.LineTax,
			&it.Returnable, &it.ReturnWindowDays,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const setOrderPaymentStatus = `UPDATE orders SET payment_status = $2 WHERE id = $1`

func (q *Queries) SetOrderPaymentStatus(ctx context.Context, id pgtype.UUID, status string) error {
	_, err := q.db.Exec(ctx, setOrderPaymentStatus, id, status)
	return err
}

// MarkOrderPaid flips an order to paid only if it is not already paid. The
// returned count is zero when another writer captured first.
const markOrderPaid = `
UPDATE orders
SET is_paid = true, payment_status = 'captured', amount_paid = $2, paid_at = $3
WHERE id = $1 AND is_paid = false
`

func (q *Queries) MarkOrderPaid(ctx context.Context, id pgtype.UUID, amountPaid float64, paidAt time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, markOrderPaid, id, amountPaid, paidAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const confirmOrder = `UPDATE orders SET status = 'confirmed' WHERE id = $1`

func (q *Queries) ConfirmOrder(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, confirmOrder, id)
	return err
}

// RevertOrderAfterStockConflict walks a paid order back to a retryable state
// after reservation failed. The payment itself stays captured on the gateway;
// resolution is manual.
const revertOrderAfterStockConflict = `
UPDATE orders SET status = 'pending', payment_status = 'failed' WHERE id = $1
`

func (q *Queries) RevertOrderAfterStockConflict(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, revertOrderAfterStockConflict, id)
	return err
}
