package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// InventoryService is what InventoryHandler needs from the service layer.
type InventoryService interface {
	CreateEvent(ctx context.Context, organizerID string, req model.CreateEventRequest) (*model.Event, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error)
	AddTicketTypes(ctx context.Context, eventID, organizerID string, items []model.TicketTypeInput) ([]model.TicketType, error)
	UpdateTicketType(ctx context.Context, id, organizerID string, req model.UpdateTicketTypeRequest) (*model.TicketType, error)
	DeleteTicketType(ctx context.Context, id, organizerID string) error
}

// InventoryHandler serves events and their ticket types.
type InventoryHandler struct {
	svc InventoryService
}

// NewInventoryHandler constructs an InventoryHandler.
func NewInventoryHandler(svc InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// CreateEvent handles POST /events
// Creates an event together with its Regular ticket type.
func (h *InventoryHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		badRequest(w, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), principal(r).UserID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListTicketTypes handles GET /events/{id}/ticket-types
func (h *InventoryHandler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.ListTicketTypes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if types == nil {
		types = []model.TicketType{}
	}

	writeJSON(w, http.StatusOK, types)
}

// AddTicketTypes handles POST /events/{id}/ticket-types
// Returns every ticket type of the event after the Regular rebalance.
func (h *InventoryHandler) AddTicketTypes(w http.ResponseWriter, r *http.Request) {
	var req model.AddTicketTypesRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		badRequest(w, err)
		return
	}

	types, err := h.svc.AddTicketTypes(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req.Items)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types)
}

// UpdateTicketType handles PATCH /ticket-types/{id}
func (h *InventoryHandler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateTicketTypeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		badRequest(w, err)
		return
	}

	tt, err := h.svc.UpdateTicketType(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tt)
}

// DeleteTicketType handles DELETE /ticket-types/{id}
func (h *InventoryHandler) DeleteTicketType(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTicketType(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
