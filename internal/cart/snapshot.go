package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// ErrEmpty is returned when the user's cart has no purchasable lines.
var ErrEmpty = errors.New("cart is empty")

// Querier captures the database methods required to snapshot a cart.
type Querier interface {
	GetCartByUser(ctx context.Context, userID pgtype.UUID) (store.Cart, error)
	ListCartLines(ctx context.Context, cartID pgtype.UUID) ([]store.CartLine, error)
}

// Snapshot is a point-in-time read of a cart with current catalog pricing.
type Snapshot struct {
	CartID     pgtype.UUID
	CouponCode string
	Lines      []pricing.Line
	Stock      map[string]int32
	Returns    map[string]ReturnInfo
}

// ReturnInfo carries the catalog's return policy for a line, frozen onto
// order items at checkout.
type ReturnInfo struct {
	Returnable bool
	WindowDays int32
}

// Service loads cart snapshots for checkout and payment flows.
type Service struct {
	Q Querier
}

// Load reads the user's cart and converts each line to a pricing line using
// the catalog's current unit prices and tax rates. Stock maps the line key
// (variant id when present, else product id) to available quantity so callers
// can pre-check availability.
func (s *Service) Load(ctx context.Context, userID pgtype.UUID) (Snapshot, error) {
	if s == nil || s.Q == nil {
		return Snapshot{}, errors.New("cart service not configured")
	}
	c, err := s.Q.GetCartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrEmpty
		}
		return Snapshot{}, fmt.Errorf("load cart: %w", err)
	}
	rows, err := s.Q.ListCartLines(ctx, c.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list cart lines: %w", err)
	}
	if len(rows) == 0 {
		return Snapshot{}, ErrEmpty
	}
	snap := Snapshot{
		CartID:  c.ID,
		Stock:   make(map[string]int32, len(rows)),
		Returns: make(map[string]ReturnInfo, len(rows)),
	}
	if c.CouponCode.Valid {
		snap.CouponCode = c.CouponCode.String
	}
	for _, row := range rows {
		line := pricing.Line{
			ProductID:     store.UUIDString(row.ProductID),
			CategoryID:    store.UUIDString(row.CategoryID),
			Name:          row.Name,
			UnitPrice:     row.UnitPrice,
			OriginalPrice: row.OriginalPrice,
			Quantity:      int(row.Quantity),
			TaxRate:       pricing.NormalizeTaxRate(row.TaxRate),
		}
		if row.VariantID.Valid {
			line.VariantID = store.UUIDString(row.VariantID)
		}
		snap.Lines = append(snap.Lines, line)
		snap.Stock[LineKey(line)] = row.StockQuantity
		snap.Returns[LineKey(line)] = ReturnInfo{Returnable: row.Returnable, WindowDays: row.ReturnWindowDays}
	}
	return snap, nil
}

// LineKey identifies the stock row a line draws from.
func LineKey(l pricing.Line) string {
	if l.VariantID != "" {
		return l.VariantID
	}
	return l.ProductID
}

// CheckStock returns a validation error naming every line whose quantity
// exceeds available stock.
func CheckStock(snap Snapshot) error {
	var short []map[string]any
	for _, l := range snap.Lines {
		avail, ok := snap.Stock[LineKey(l)]
		if !ok {
			continue
		}
		if int32(l.Quantity) > avail {
			short = append(short, map[string]any{
				"productId": l.ProductID,
				"name":      l.Name,
				"requested": l.Quantity,
				"available": avail,
			})
		}
	}
	if len(short) > 0 {
		return common.ValidationError("insufficient stock", map[string]any{"lines": short})
	}
	return nil
}
