package address

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/common"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

type Handler struct {
	Svc *Service
}

// Routes mounts the address book under the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{addressID}", h.Get)
	r.Put("/{addressID}", h.Update)
	r.Delete("/{addressID}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.List(r.Context(), userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewList(out)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := store.ToUUID(chi.URLParam(r, "addressID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid address id", nil)
		return
	}
	a, err := h.Svc.Get(r.Context(), id, userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view(a)})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	a, err := h.Svc.Create(r.Context(), userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": view(a)})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := store.ToUUID(chi.URLParam(r, "addressID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid address id", nil)
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	a, err := h.Svc.Update(r.Context(), id, userID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view(a)})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := store.ToUUID(chi.URLParam(r, "addressID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid address id", nil)
		return
	}
	if err := h.Svc.Delete(r.Context(), id, userID); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
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

type View struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	ReceiverName string `json:"receiverName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PostalCode   string `json:"postalCode"`
	IsDefault    bool   `json:"isDefault"`
}

func view(a store.Address) View {
	v := View{
		ID:           store.UUIDString(a.ID),
		ReceiverName: a.ReceiverName,
		Phone:        a.Phone,
		AddressLine1: a.AddressLine1,
		City:         a.City,
		State:        a.State,
		Country:      a.Country,
		PostalCode:   a.PostalCode,
		IsDefault:    a.IsDefault,
	}
	if a.Label.Valid {
		v.Label = a.Label.String
	}
	if a.AddressLine2.Valid {
		v.AddressLine2 = a.AddressLine2.String
	}
	return v
}

func viewList(items []store.Address) []View {
	out := make([]View, 0, len(items))
	for _, a := range items {
		out = append(out, view(a))
	}
	return out
}
