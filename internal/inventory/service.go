package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Subash-08/iTech-compters-sub001/internal/events"
	"github.com/Subash-08/iTech-compters-sub001/internal/obs"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// ErrConflict is returned when a paid order loses the stock race and has
// been reverted for manual follow-up.
var ErrConflict = errors.New("inventory: insufficient stock for paid order")

// Querier captures the database methods required by the reservation service.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	DecrementProductStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error)
	DecrementVariantStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error)
	ConfirmOrder(ctx context.Context, id pgtype.UUID) error
	RevertOrderAfterStockConflict(ctx context.Context, id pgtype.UUID) error
	GetCartByUser(ctx context.Context, userID pgtype.UUID) (store.Cart, error)
	ClearCart(ctx context.Context, cartID pgtype.UUID) error
}

// Service reserves stock for paid orders. Reservation happens at capture
// time, not at order creation, so two buyers can both reach payment for the
// last unit; the conditional decrement decides the winner.
type Service struct {
	Q      Querier
	Pool   *pgxpool.Pool
	WithTx func(tx pgx.Tx) Querier
	Events *events.Bus
	Logger zerolog.Logger
}

// Reserve decrements stock for every line of the order and confirms it, all
// in one transaction. If any line lacks stock the transaction aborts, the
// order is reverted to a retryable state, and ErrConflict is returned.
func (s *Service) Reserve(ctx context.Context, orderID pgtype.UUID) error {
	if s == nil || s.Q == nil {
		return errors.New("inventory service not configured")
	}
	order, err := s.Q.GetOrderByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("inventory: load order: %w", err)
	}
	if order.Status == store.OrderStatusConfirmed {
		return nil
	}
	items, err := s.Q.ListOrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("inventory: load order items: %w", err)
	}

	conflict, err := s.reserveTx(ctx, orderID, items)
	if err != nil {
		return err
	}
	if conflict != "" {
		s.revert(ctx, order, conflict)
		return ErrConflict
	}

	s.clearCart(ctx, order.UserID)
	return nil
}

// reserveTx runs the decrements and the order confirmation atomically. It
// returns the name of the first out-of-stock item, or empty on success.
func (s *Service) reserveTx(ctx context.Context, orderID pgtype.UUID, items []store.OrderItem) (string, error) {
	q := s.Q
	var commit func(context.Context) error
	if s.Pool != nil {
		tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return "", err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if s.WithTx != nil {
			q = s.WithTx(tx)
		}
		commit = tx.Commit
	}

	for _, it := range items {
		var rows int64
		var err error
		if it.VariantID.Valid {
			rows, err = q.DecrementVariantStock(ctx, it.VariantID, it.Quantity)
		} else {
			rows, err = q.DecrementProductStock(ctx, it.ProductID, it.Quantity)
		}
		if err != nil {
			return "", fmt.Errorf("inventory: decrement stock: %w", err)
		}
		if rows == 0 {
			// Rollback via the deferred call; nothing committed.
			return it.Name, nil
		}
	}
	if err := q.ConfirmOrder(ctx, orderID); err != nil {
		return "", fmt.Errorf("inventory: confirm order: %w", err)
	}
	if commit != nil {
		if err := commit(ctx); err != nil {
			return "", err
		}
	}
	return "", nil
}

// revert walks the paid order back to a retryable state and raises the alarm.
// The money is already captured; this path needs an operator.
func (s *Service) revert(ctx context.Context, order store.Order, itemName string) {
	if err := s.Q.RevertOrderAfterStockConflict(ctx, order.ID); err != nil {
		s.Logger.Error().Err(err).
			Str("order_id", store.UUIDString(order.ID)).
			Msg("revert after stock conflict failed")
	}
	if obs.InventoryConflictTotal != nil {
		obs.InventoryConflictTotal.Inc()
	}
	s.Logger.Warn().
		Str("order_id", store.UUIDString(order.ID)).
		Str("order_number", order.OrderNumber).
		Str("item", itemName).
		Msg("paid order lost stock race")
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicInventoryConflict, order.ID, map[string]any{
			"orderId":     store.UUIDString(order.ID),
			"orderNumber": order.OrderNumber,
			"item":        itemName,
		})
		_, _ = s.Events.Emit(ctx, events.TopicOrderReverted, order.ID, map[string]any{
			"orderId": store.UUIDString(order.ID),
			"reason":  "insufficient stock after capture",
		})
	}
}

func (s *Service) clearCart(ctx context.Context, userID pgtype.UUID) {
	c, err := s.Q.GetCartByUser(ctx, userID)
	if err != nil {
		return
	}
	if err := s.Q.ClearCart(ctx, c.ID); err != nil {
		s.Logger.Warn().Err(err).Msg("clear cart after capture failed")
	}
}
