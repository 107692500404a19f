package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// DecrementProductStock takes stock only when enough remains. Zero rows
// affected means the reservation lost the race.
const decrementProductStock = `
UPDATE products
SET stock_quantity = stock_quantity - $2
WHERE id = $1 AND stock_quantity >= $2
`

func (q *Queries) DecrementProductStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementProductStock, id, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const decrementVariantStock = `
UPDATE product_variants
SET stock_quantity = stock_quantity - $2
WHERE id = $1 AND stock_quantity >= $2
`

func (q *Queries) DecrementVariantStock(ctx context.Context, id pgtype.UUID, qty int32) (int64, error) {
	tag, err := q.db.Exec(ctx, decrementVariantStock, id, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
