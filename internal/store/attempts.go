package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertPaymentAttempt = `
INSERT INTO payment_attempts (
    id, order_id, gateway_order_id, amount, currency, status, gateway_response
) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertPaymentAttemptParams struct {
	ID              pgtype.UUID
	OrderID         pgtype.UUID
	GatewayOrderID  string
	Amount          int64
	Currency        string
	Status          string
	GatewayResponse []byte
}

func (q *Queries) InsertPaymentAttempt(ctx context.Context, arg InsertPaymentAttemptParams) error {
	_, err := q.db.Exec(ctx, insertPaymentAttempt,
		arg.ID, arg.OrderID, arg.GatewayOrderID, arg.Amount, arg.Currency,
		arg.Status, arg.GatewayResponse,
	)
	return err
}

const attemptColumns = `
    id, order_id, gateway_order_id, amount, currency, status, gateway_payment_id,
    signature_verified, gateway_response, error_reason, created_at, captured_at
`

func scanAttempt(row interface{ Scan(dest ...any) error }) (PaymentAttempt, error) {
	var a PaymentAttempt
	err := row.Scan(
		&a.ID, &a.OrderID, &a.GatewayOrderID, &a.Amount, &a.Currency, &a.Status,
		&a.GatewayPaymentID, &a.SignatureVerified, &a.GatewayResponse, &a.ErrorReason,
		&a.CreatedAt, &a.CapturedAt,
	)
	return a, err
}

const getAttemptByGatewayOrderID = `SELECT` + attemptColumns + `FROM payment_attempts WHERE gateway_order_id = $1`

func (q *Queries) GetAttemptByGatewayOrderID(ctx context.Context, gatewayOrderID string) (PaymentAttempt, error) {
	return scanAttempt(q.db.QueryRow(ctx, getAttemptByGatewayOrderID, gatewayOrderID))
}

const getLatestAttemptForOrder = `
SELECT` + attemptColumns + `FROM payment_attempts
WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1
`

func (q *Queries) GetLatestAttemptForOrder(ctx context.Context, orderID pgtype.UUID) (PaymentAttempt, error) {
	return scanAttempt(q.db.QueryRow(ctx, getLatestAttemptForOrder, orderID))
}

const countAttemptsForOrder = `
SELECT count(*) FROM payment_attempts WHERE order_id = $1
`

func (q *Queries) CountAttemptsForOrder(ctx context.Context, orderID pgtype.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countAttemptsForOrder, orderID).Scan(&n)
	return n, err
}

const updateAttemptStatus = `
UPDATE payment_attempts SET status = $2, error_reason = $3 WHERE id = $1
`

func (q *Queries) UpdateAttemptStatus(ctx context.Context, id pgtype.UUID, status string, reason pgtype.Text) error {
	_, err := q.db.Exec(ctx, updateAttemptStatus, id, status, reason)
	return err
}

// MarkAttemptCaptured promotes an attempt only out of a non-terminal state.
// A partial unique index on (order_id) WHERE status = 'CAPTURED' backs this
// up at the schema level. The gateway response that proved the capture
// replaces the order-creation payload; a nil response keeps the old one.
const markAttemptCaptured = `
UPDATE payment_attempts
SET status = 'CAPTURED', gateway_payment_id = $2, signature_verified = $3, captured_at = $4,
    gateway_response = COALESCE($5, gateway_response)
WHERE id = $1 AND status IN ('CREATED', 'ATTEMPTED')
`

type MarkAttemptCapturedParams struct {
	ID               pgtype.UUID
	GatewayPaymentID string
	SigVerified      bool
	CapturedAt       time.Time
	GatewayResponse  []byte
}

func (q *Queries) MarkAttemptCaptured(ctx context.Context, arg MarkAttemptCapturedParams) (int64, error) {
	tag, err := q.db.Exec(ctx, markAttemptCaptured, arg.ID,
		pgtype.Text{String: arg.GatewayPaymentID, Valid: true}, arg.SigVerified,
		arg.CapturedAt, arg.GatewayResponse)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExpireStaleAttempts fails CREATED attempts older than the cutoff. Run by
// the background worker.
const expireStaleAttempts = `
UPDATE payment_attempts
SET status = 'FAILED', error_reason = 'expired'
WHERE status = 'CREATED' AND created_at < $1
`

func (q *Queries) ExpireStaleAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, expireStaleAttempts, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
