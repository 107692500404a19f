package checkout

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

// AddressLister supplies the address book shown on the checkout page.
type AddressLister interface {
	List(ctx context.Context, userID pgtype.UUID) ([]store.Address, error)
}

type Handler struct {
	Svc       *Service
	Addresses AddressLister
}

// GetQuote prices the cart with its stored coupon and returns the user's
// addresses alongside, so a single call renders the checkout page.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Quote(r.Context(), userID, "")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	resp := map[string]any{"quote": out}
	if h.Addresses != nil {
		addrs, err := h.Addresses.List(r.Context(), userID)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		resp["addresses"] = addrs
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

type applyCouponInput struct {
	Code string `json:"code"`
}

// ApplyCoupon validates and stores a coupon on the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in applyCouponInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.ApplyCoupon(r.Context(), userID, in.Code)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// RemoveCoupon clears the stored coupon from the cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.RemoveCoupon(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

type calculateInput struct {
	CouponCode string `json:"couponCode"`
}

// Calculate prices the cart with an explicit coupon code, without touching
// the stored cart state.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in calculateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Quote(r.Context(), userID, in.CouponCode)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// CreateOrder assembles a pending order from the cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Create(r.Context(), userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func requireUser(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok || raw == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return pgtype.UUID{}, false
	}
	id, err := store.ToUUID(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid user id", nil)
		return pgtype.UUID{}, false
	}
	return id, true
}
