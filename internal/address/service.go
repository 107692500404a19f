package address

import (
	"context"
	"errors"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// Querier captures the database methods required by the address service.
type Querier interface {
	GetAddress(ctx context.Context, id, userID pgtype.UUID) (store.Address, error)
	ListAddresses(ctx context.Context, userID pgtype.UUID) ([]store.Address, error)
	InsertAddress(ctx context.Context, arg store.InsertAddressParams) error
	UpdateAddress(ctx context.Context, arg store.UpdateAddressParams) (int64, error)
	DeleteAddress(ctx context.Context, id, userID pgtype.UUID) (int64, error)
	ClearDefaultAddress(ctx context.Context, userID pgtype.UUID) error
}

// Input is the write payload for creating or updating an address.
type Input struct {
	Label        string `json:"label"`
	ReceiverName string `json:"receiverName" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"addressLine1" validate:"required"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	Country      string `json:"country" validate:"required"`
	PostalCode   string `json:"postalCode" validate:"required"`
	IsDefault    bool   `json:"isDefault"`
}

// Service manages the user's address book.
type Service struct {
	Q        Querier
	Validate *validator.Validate
}

func (s *Service) List(ctx context.Context, userID pgtype.UUID) ([]store.Address, error) {
	return s.Q.ListAddresses(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id, userID pgtype.UUID) (store.Address, error) {
	a, err := s.Q.GetAddress(ctx, id, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Address{}, common.NotFoundError("address not found")
	}
	return a, err
}

func (s *Service) Create(ctx context.Context, userID pgtype.UUID, in Input) (store.Address, error) {
	if err := s.validate(in); err != nil {
		return store.Address{}, err
	}
	if in.IsDefault {
		if err := s.Q.ClearDefaultAddress(ctx, userID); err != nil {
			return store.Address{}, err
		}
	}
	id := store.NewUUID()
	if err := s.Q.InsertAddress(ctx, store.InsertAddressParams{
		ID:           id,
		UserID:       userID,
		Label:        toNullableText(in.Label),
		ReceiverName: in.ReceiverName,
		Phone:        in.Phone,
		AddressLine1: in.AddressLine1,
		AddressLine2: toNullableText(in.AddressLine2),
		City:         in.City,
		State:        in.State,
		Country:      in.Country,
		PostalCode:   in.PostalCode,
		IsDefault:    in.IsDefault,
	}); err != nil {
		return store.Address{}, err
	}
	return s.Q.GetAddress(ctx, id, userID)
}

func (s *Service) Update(ctx context.Context, id, userID pgtype.UUID, in Input) (store.Address, error) {
	if err := s.validate(in); err != nil {
		return store.Address{}, err
	}
	if in.IsDefault {
		if err := s.Q.ClearDefaultAddress(ctx, userID); err != nil {
			return store.Address{}, err
		}
	}
	n, err := s.Q.UpdateAddress(ctx, store.UpdateAddressParams{
		ID:           id,
		UserID:       userID,
		Label:        toNullableText(in.Label),
		ReceiverName: in.ReceiverName,
		Phone:        in.Phone,
		AddressLine1: in.AddressLine1,
		AddressLine2: toNullableText(in.AddressLine2),
		City:         in.City,
		State:        in.State,
		Country:      in.Country,
		PostalCode:   in.PostalCode,
		IsDefault:    in.IsDefault,
	})
	if err != nil {
		return store.Address{}, err
	}
	if n == 0 {
		return store.Address{}, common.NotFoundError("address not found")
	}
	return s.Q.GetAddress(ctx, id, userID)
}

func (s *Service) Delete(ctx context.Context, id, userID pgtype.UUID) error {
	n, err := s.Q.DeleteAddress(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NotFoundError("address not found")
	}
	return nil
}

func (s *Service) validate(in Input) error {
	v := s.Validate
	if v == nil {
		v = validator.New()
	}
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := map[string]any{}
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		return common.ValidationError("invalid address", details)
	}
	return common.ValidationError("invalid address", nil)
}

func toNullableText(v string) pgtype.Text {
	if strings.TrimSpace(v) == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
