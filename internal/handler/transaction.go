package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// TransactionService is what TransactionHandler needs from the service layer.
type TransactionService interface {
	Checkout(ctx context.Context, userID string, req model.CheckoutRequest) (*model.Transaction, error)
	Accept(ctx context.Context, transactionID, organizerID string) (*model.Transaction, error)
	Reject(ctx context.Context, transactionID, organizerID, reason string) (*model.Transaction, error)
	Cancel(ctx context.Context, transactionID string, caller model.Principal) (*model.Transaction, error)
	GetByID(ctx context.Context, transactionID, organizerID string) (*model.Transaction, error)
	ListOrganizerTransactions(ctx context.Context, organizerID string) ([]model.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
}

// TransactionHandler serves checkout and the transaction lifecycle.
type TransactionHandler struct {
	svc TransactionService
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// Checkout handles POST /transactions/checkout
// Reserves tickets and creates a transaction awaiting confirmation.
func (h *TransactionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		badRequest(w, err)
		return
	}

	txn, err := h.svc.Checkout(r.Context(), principal(r).UserID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// ListMine handles GET /transactions/me
func (h *TransactionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListUserTransactions)
}

// ListOrganizer handles GET /transactions/organizer
func (h *TransactionHandler) ListOrganizer(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, h.svc.ListOrganizerTransactions)
}

func (h *TransactionHandler) writeList(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]model.Transaction, error)) {
	txs, err := list(r.Context(), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// Get handles GET /transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// Accept handles PATCH /transactions/{id}/accept
func (h *TransactionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Accept(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// Reject handles PATCH /transactions/{id}/reject
// The body is optional and may carry a reason shown to the purchaser.
func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req model.RejectRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		badRequest(w, err)
		return
	}

	txn, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// Cancel handles PATCH /transactions/{id}/cancel
func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	txn, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}
