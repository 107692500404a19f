package payment

import "context"

// CreateOrderInput is the request to open a gateway order. Amount is in the
// smallest currency unit.
type CreateOrderInput struct {
	Amount  int64
	Currency string
	Receipt string
	Notes   map[string]string
}

// GatewayOrder is the normalised gateway order returned on creation.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Raw      []byte
}

// GatewayPayment is the normalised view of a gateway payment record.
type GatewayPayment struct {
	ID       string
	OrderID  string
	Amount   int64
	Currency string
	Status   string
	Captured bool
	Method   string
	Raw      []byte
}

// Gateway abstracts the upstream payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
}
