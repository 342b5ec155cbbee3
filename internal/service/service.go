// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/repository"
)

// ErrForbidden is returned when the caller does not own the resource.
var ErrForbidden = errors.New("forbidden")

// ErrCapacityExceeded is returned when ticket type quota would exceed the
// event's capacity.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrRegularQuotaUnderflow is returned when rebalancing would shrink the
// Regular type below what it has already sold.
var ErrRegularQuotaUnderflow = errors.New("regular quota underflow")

// ErrNameReserved is returned for operations that would create, rename or
// resize the Regular ticket type by hand.
var ErrNameReserved = errors.New("name reserved")

// ErrInvalidInput is returned for malformed requests.
var ErrInvalidInput = errors.New("invalid input")

// Store is the persistence the services run against: plain reads on the
// pool, and InTx for writes that must land together.
type Store interface {
	repository.Querier
	InTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// Notifier accepts fire-and-forget messages for users. A failing Notifier
// never undoes the state change that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Stable, machine-readable error codes.
const (
	CodeOK                    = "OK"
	CodeNotFound              = "NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeInsufficientQuota     = "INSUFFICIENT_QUOTA"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeRegularQuotaUnderflow = "REGULAR_QUOTA_UNDERFLOW"
	CodeNameReserved          = "NAME_RESERVED"
	CodeDuplicateName         = "DUPLICATE_NAME"
	CodeQuotaBelowSold        = "QUOTA_BELOW_SOLD"
	CodeTicketsSold           = "TICKETS_SOLD"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInternal              = "INTERNAL"
)

// Code classifies err into the service's error taxonomy. Anything it does not
// recognise is CodeInternal.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, repository.ErrInsufficientQuota):
		return CodeInsufficientQuota
	case errors.Is(err, repository.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrRegularQuotaUnderflow):
		return CodeRegularQuotaUnderflow
	case errors.Is(err, ErrNameReserved):
		return CodeNameReserved
	case errors.Is(err, repository.ErrDuplicateName):
		return CodeDuplicateName
	case errors.Is(err, repository.ErrQuotaBelowSold):
		return CodeQuotaBelowSold
	case errors.Is(err, repository.ErrTicketsSold):
		return CodeTicketsSold
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	}
	return CodeInternal
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func requireEventOwner(ev *model.Event, organizerID string) error {
	if ev.OrganizerID != organizerID {
		return fmt.Errorf("%w: you are not the organizer of this event", ErrForbidden)
	}
	return nil
}
