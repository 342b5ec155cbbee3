// Package model defines the core domain types for the ticket marketplace.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RegularTicketName is the reserved name of the ticket type every event gets
// on creation. Its quota absorbs whatever capacity the other types leave.
const RegularTicketName = "Regular"

// IsRegularName reports whether name collides with the reserved default type.
func IsRegularName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), RegularTicketName)
}

// Event is the capacity-bounded unit that owns ticket types.
type Event struct {
	ID          string          `json:"id"`
	OrganizerID string          `json:"organizer_id"`
	Title       string          `json:"title"`
	Capacity    int             `json:"capacity"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`

	TicketTypes []TicketType `json:"ticket_types,omitempty"`
}

// TicketType is a priced, quota-bounded category of admission for one event.
type TicketType struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Quota          int             `json:"quota"`
	AvailableQuota int             `json:"available_quota"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Sold returns the number of units currently held by reservations.
func (t *TicketType) Sold() int {
	return t.Quota - t.AvailableQuota
}

// IsRegular reports whether t is the event's default type.
func (t *TicketType) IsRegular() bool {
	return IsRegularName(t.Name)
}

// Transaction is a customer's reservation against one event's inventory.
type Transaction struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	EventID    string            `json:"event_id"`
	Status     TransactionStatus `json:"status"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`

	Items []TransactionItem `json:"items"`

	// Populated on reads; used for ownership checks and display.
	EventTitle       string `json:"event_title,omitempty"`
	EventOrganizerID string `json:"-"`
}

// TransactionItem is one ticket-type line of a transaction. UnitPrice is a
// snapshot taken at checkout and never follows later price changes.
type TransactionItem struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	TicketTypeID   *string         `json:"ticket_type_id"`
	TicketTypeName string          `json:"ticket_type_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// NewTransactionItem builds an item with its subtotal computed from the
// snapshot price.
func NewTransactionItem(tt *TicketType, quantity int) TransactionItem {
	id := tt.ID
	return TransactionItem{
		TicketTypeID:   &id,
		TicketTypeName: tt.Name,
		Quantity:       quantity,
		UnitPrice:      tt.Price,
		Subtotal:       tt.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// SumSubtotals returns the total a transaction must carry for its items.
func SumSubtotals(items []TransactionItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// NotificationType classifies a notification for the consumer.
type NotificationType string

const (
	NotificationTransaction NotificationType = "TRANSACTION"
	NotificationEvent       NotificationType = "EVENT"
)

// Notification is a fire-and-forget message addressed to a user.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}

// ─── Request payloads ─────────────────────────────────────────────────────────

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title    string          `json:"title"`
	Capacity int             `json:"capacity"`
	Price    decimal.Decimal `json:"price"`
}

// TicketTypeInput describes one ticket type to add to an event.
type TicketTypeInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quota       int             `json:"quota"`
}

// AddTicketTypesRequest is the payload for adding ticket types to an event.
type AddTicketTypesRequest struct {
	Items []TicketTypeInput `json:"items"`
}

// UpdateTicketTypeRequest is a partial update; nil fields are left untouched.
type UpdateTicketTypeRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quota       *int             `json:"quota"`
}

// CheckoutRequest is the payload for reserving tickets.
type CheckoutRequest struct {
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// RejectRequest carries the optional reason shown to the purchaser.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is a standard JSON error envelope. Code is stable and
// machine-readable; Error is human-readable and names the violated
// precondition.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
