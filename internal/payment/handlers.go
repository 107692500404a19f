package payment

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

type Handler struct {
	Svc *Service
}

type intentInput struct {
	OrderID string `json:"orderId"`
}

// CreateIntent opens a gateway order for an existing pending order.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in intentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(in.OrderID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	out, err := h.Svc.CreateIntent(r.Context(), userID, in.OrderID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// Verify settles a client-reported payment confirmation.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in VerifyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(in.GatewayOrderID) == "" || strings.TrimSpace(in.GatewayPaymentID) == "" || strings.TrimSpace(in.Signature) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order id, payment id, and signature are required", nil)
		return
	}
	out, err := h.Svc.Verify(r.Context(), userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Status reports the consolidated payment state of an order.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderID")
	out, err := h.Svc.Status(r.Context(), userID, orderID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
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
