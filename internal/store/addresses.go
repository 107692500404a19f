package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const addressColumns = `
    id, user_id, label, receiver_name, phone, address_line1, address_line2,
    city, state, country, postal_code, is_default, created_at, updated_at
`

func scanAddress(row interface{ Scan(dest ...any) error }) (Address, error) {
	var a Address
	err := row.Scan(
		&a.ID, &a.UserID, &a.Label, &a.ReceiverName, &a.Phone, &a.AddressLine1,
		&a.AddressLine2, &a.City, &a.State, &a.Country, &a.PostalCode,
		&a.IsDefault, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

const getAddress = `SELECT` + addressColumns + `FROM addresses WHERE id = $1 AND user_id = $2`

func (q *Queries) GetAddress(ctx context.Context, id, userID pgtype.UUID) (Address, error) {
	return scanAddress(q.db.QueryRow(ctx, getAddress, id, userID))
}

const listAddresses = `
SELECT` + addressColumns + `FROM addresses
WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC
`

func (q *Queries) ListAddresses(ctx context.Context, userID pgtype.UUID) ([]Address, error) {
	rows, err := q.db.Query(ctx, listAddresses, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const insertAddress = `
INSERT INTO addresses (
    id, user_id, label, receiver_name, phone, address_line1, address_line2,
    city, state, country, postal_code, is_default
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

type InsertAddressParams struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	Label        pgtype.Text
	ReceiverName string
	Phone        string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	State        string
	Country      string
	PostalCode   string
	IsDefault    bool
}

func (q *Queries) InsertAddress(ctx context.Context, arg InsertAddressParams) error {
	_, err := q.db.Exec(ctx, insertAddress,
		arg.ID, arg.UserID, arg.Label, arg.ReceiverName, arg.Phone, arg.AddressLine1,
		arg.AddressLine2, arg.City, arg.State, arg.Country, arg.PostalCode, arg.IsDefault,
	)
	return err
}

const updateAddress = `
UPDATE addresses SET
    label = $3, receiver_name = $4, phone = $5, address_line1 = $6,
    address_line2 = $7, city = $8, state = $9, country = $10,
    postal_code = $11, is_default = $12, updated_at = now()
WHERE id = $1 AND user_id = $2
`

type UpdateAddressParams struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	Label        pgtype.Text
	ReceiverName string
	Phone        string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	State        string
	Country      string
	PostalCode   string
	IsDefault    bool
}

func (q *Queries) UpdateAddress(ctx context.Context, arg UpdateAddressParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateAddress,
		arg.ID, arg.UserID, arg.Label, arg.ReceiverName, arg.Phone, arg.AddressLine1,
		arg.AddressLine2, arg.City, arg.State, arg.Country, arg.PostalCode, arg.IsDefault,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteAddress = `DELETE FROM addresses WHERE id = $1 AND user_id = $2`

func (q *Queries) DeleteAddress(ctx context.Context, id, userID pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteAddress, id, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const clearDefaultAddress = `UPDATE addresses SET is_default = false WHERE user_id = $1 AND is_default = true`

func (q *Queries) ClearDefaultAddress(ctx context.Context, userID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, clearDefaultAddress, userID)
	return err
}
