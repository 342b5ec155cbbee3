package model

import (
	"fmt"
	"strings"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusWaitingPayment      TransactionStatus = "WAITING_PAYMENT"
	StatusWaitingConfirmation TransactionStatus = "WAITING_CONFIRMATION"
	StatusDone                TransactionStatus = "DONE"
	StatusRejected            TransactionStatus = "REJECTED"
	StatusExpired             TransactionStatus = "EXPIRED"
	StatusCanceled            TransactionStatus = "CANCELED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []TransactionStatus{
	StatusWaitingPayment,
	StatusWaitingConfirmation,
	StatusDone,
	StatusRejected,
	StatusExpired,
	StatusCanceled,
}

// transitions is the complete set of legal moves. Terminal states have no
// entry.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusWaitingPayment:      {StatusWaitingConfirmation, StatusExpired, StatusCanceled},
	StatusWaitingConfirmation: {StatusDone, StatusRejected, StatusExpired, StatusCanceled},
}

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusWaitingPayment, StatusWaitingConfirmation,
		StatusDone, StatusRejected, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition out of s is permitted.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusRejected, StatusExpired, StatusCanceled:
		return true
	case StatusWaitingPayment, StatusWaitingConfirmation:
		return false
	}
	return true
}

// CanTransitionTo reports whether s → next is a legal move.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ReleasesQuota reports whether entering s hands reserved units back to
// inventory.
func (s TransactionStatus) ReleasesQuota() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// SourcesOf returns every status that may legally move to target, in
// lifecycle order. It is the expected-predecessor set for a status
// compare-and-swap.
func SourcesOf(target TransactionStatus) []TransactionStatus {
	var from []TransactionStatus
	for _, s := range AllStatuses {
		if s.CanTransitionTo(target) {
			from = append(from, s)
		}
	}
	return from
}

// NonTerminalStatuses returns the statuses a transaction can still leave.
func NonTerminalStatuses() []TransactionStatus {
	var out []TransactionStatus
	for _, s := range AllStatuses {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

// ParseTransactionStatus converts a stored value into a status.
func ParseTransactionStatus(v string) (TransactionStatus, error) {
	s := TransactionStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", v)
	}
	return s, nil
}

// Role is the caller's marketplace role as asserted by the auth token.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleCustomer  Role = "CUSTOMER"
)

// ParseRole normalises a role claim. Unknown values are rejected.
func ParseRole(v string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(v))); r {
	case RoleAdmin, RoleOrganizer, RoleCustomer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", v)
}

// Principal is the verified identity of the caller.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
