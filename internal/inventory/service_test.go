package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

func pg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

type stubQuerier struct {
	order     store.Order
	items     []store.OrderItem
	stock     map[[16]byte]int32
	confirmed int
	reverted  int
	cleared   int
}

func (s *stubQuerier) GetOrderByID(_ context.Context, _ pgtype.UUID) (store.Order, error) {
	return s.order, nil
}

func (s *stubQuerier) ListOrderItems(_ context.Context, _ pgtype.UUID) ([]store.OrderItem, error) {
	return s.items, nil
}

func (s *stubQuerier) decrement(id pgtype.UUID, qty int32) (int64, error) {
	avail := s.stock[id.Bytes]
	if avail < qty {
		return 0, nil
	}
	s.stock[id.Bytes] = avail - qty
	return 1, nil
}

func (s *stubQuerier) DecrementProductStock(_ context.Context, id pgtype.UUID, qty int32) (int64, error) {
	return s.decrement(id, qty)
}

func (s *stubQuerier) DecrementVariantStock(_ context.Context, id pgtype.UUID, qty int32) (int64, error) {
	return s.decrement(id, qty)
}

func (s *stubQuerier) ConfirmOrder(_ context.Context, _ pgtype.UUID) error {
	s.confirmed++
	return nil
}

func (s *stubQuerier) RevertOrderAfterStockConflict(_ context.Context, _ pgtype.UUID) error {
	s.reverted++
	return nil
}

func (s *stubQuerier) GetCartByUser(_ context.Context, _ pgtype.UUID) (store.Cart, error) {
	return store.Cart{ID: pg(uuid.New())}, nil
}

func (s *stubQuerier) ClearCart(_ context.Context, _ pgtype.UUID) error {
	s.cleared++
	return nil
}

func newStub(stock int32, qty int32) *stubQuerier {
	productID := pg(uuid.New())
	orderID := pg(uuid.New())
	return &stubQuerier{
		order: store.Order{ID: orderID, UserID: pg(uuid.New()), Status: store.OrderStatusPending, IsPaid: true},
		items: []store.OrderItem{{OrderID: orderID, ProductID: productID, Name: "SSD", Quantity: qty}},
		stock: map[[16]byte]int32{productID.Bytes: stock},
	}
}

func TestReserveDecrementsAndConfirms(t *testing.T) {
	stub := newStub(5, 2)
	svc := &Service{Q: stub, Logger: zerolog.Nop()}

	err := svc.Reserve(context.Background(), stub.order.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stub.confirmed)
	require.Equal(t, 0, stub.reverted)
	require.Equal(t, 1, stub.cleared)
	require.Equal(t, int32(3), stub.stock[stub.items[0].ProductID.Bytes])
}

func TestReserveConflictReverts(t *testing.T) {
	stub := newStub(1, 2)
	svc := &Service{Q: stub, Logger: zerolog.Nop()}

	err := svc.Reserve(context.Background(), stub.order.ID)
	require.True(t, errors.Is(err, ErrConflict))
	require.Equal(t, 0, stub.confirmed)
	require.Equal(t, 1, stub.reverted)
	require.Equal(t, 0, stub.cleared)
	require.Equal(t, int32(1), stub.stock[stub.items[0].ProductID.Bytes])
}

func TestReserveNoopWhenConfirmed(t *testing.T) {
	stub := newStub(5, 2)
	stub.order.Status = store.OrderStatusConfirmed
	svc := &Service{Q: stub, Logger: zerolog.Nop()}

	err := svc.Reserve(context.Background(), stub.order.ID)
	require.NoError(t, err)
	require.Equal(t, 0, stub.confirmed)
	require.Equal(t, int32(5), stub.stock[stub.items[0].ProductID.Bytes])
}

// Two orders race for the last unit: exactly one confirms, the other is
// reverted.
func TestReserveLastUnitRace(t *testing.T) {
	productID := pg(uuid.New())
	stock := map[[16]byte]int32{productID.Bytes: 1}

	first := &stubQuerier{
		order: store.Order{ID: pg(uuid.New()), UserID: pg(uuid.New()), Status: store.OrderStatusPending, IsPaid: true},
		items: []store.OrderItem{{ProductID: productID, Name: "GPU", Quantity: 1}},
		stock: stock,
	}
	second := &stubQuerier{
		order: store.Order{ID: pg(uuid.New()), UserID: pg(uuid.New()), Status: store.OrderStatusPending, IsPaid: true},
		items: []store.OrderItem{{ProductID: productID, Name: "GPU", Quantity: 1}},
		stock: stock,
	}

	svc1 := &Service{Q: first, Logger: zerolog.Nop()}
	svc2 := &Service{Q: second, Logger: zerolog.Nop()}

	err1 := svc1.Reserve(context.Background(), first.order.ID)
	err2 := svc2.Reserve(context.Background(), second.order.ID)

	require.NoError(t, err1)
	require.True(t, errors.Is(err2, ErrConflict))
	require.Equal(t, int32(0), stock[productID.Bytes])
	require.Equal(t, 1, first.confirmed)
	require.Equal(t, 1, second.reverted)
}
