package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/repository"
)

// TransactionService drives a transaction through its lifecycle and keeps
// inventory in step with it: a reservation is taken at checkout and handed
// back exactly once when the transaction is rejected, canceled or expired.
type TransactionService struct {
	store     Store
	inventory *InventoryService
	notifier  Notifier
	now       func() time.Time
}

// NewTransactionService constructs a TransactionService. notifier may be nil.
func NewTransactionService(store Store, inventory *InventoryService, notifier Notifier) *TransactionService {
	return &TransactionService{
		store:     store,
		inventory: inventory,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Checkout reserves quantity units of one ticket type and records a
// transaction awaiting the organizer's confirmation. The reservation and the
// transaction rows commit together or not at all.
func (s *TransactionService) Checkout(ctx context.Context, userID string, req model.CheckoutRequest) (*model.Transaction, error) {
	req.EventID = strings.TrimSpace(req.EventID)
	req.TicketTypeID = strings.TrimSpace(req.TicketTypeID)
	switch {
	case req.EventID == "":
		return nil, invalidInput("event_id is required")
	case req.TicketTypeID == "":
		return nil, invalidInput("ticket_type_id is required")
	case req.Quantity < 1:
		return nil, invalidInput("quantity must be at least 1")
	}

	var txn *model.Transaction
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		tt, err := q.GetTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return err
		}
		if tt.EventID != req.EventID {
			return fmt.Errorf("%w: ticket type %s does not belong to event %s",
				repository.ErrNotFound, req.TicketTypeID, req.EventID)
		}

		reserved, err := s.inventory.reserve(ctx, q, req.TicketTypeID, req.Quantity)
		if err != nil {
			return err
		}

		items := []model.TransactionItem{model.NewTransactionItem(reserved, req.Quantity)}
		created := &model.Transaction{
			UserID:     userID,
			EventID:    req.EventID,
			Status:     model.StatusWaitingConfirmation,
			TotalPrice: model.SumSubtotals(items),
			Items:      items,
		}
		if err := q.CreateTransaction(ctx, created); err != nil {
			return err
		}
		txn, err = q.GetTransaction(ctx, created.ID)
		return err
	})
	metrics.RecordOperation("checkout", Code(err))
	if err != nil {
		return nil, err
	}
	metrics.RecordQuota("reserved", req.Quantity)

	log.WithFields(log.Fields{
		"transaction_id": txn.ID,
		"user_id":        userID,
		"event_id":       txn.EventID,
		"quantity":       req.Quantity,
		"total_price":    txn.TotalPrice.String(),
	}).Info("Checkout completed")

	s.notify(ctx, model.Notification{
		UserID:  txn.EventOrganizerID,
		Title:   "New Transaction",
		Message: fmt.Sprintf("A new order for %q is waiting for your confirmation.", txn.EventTitle),
		Type:    model.NotificationTransaction,
	})
	return txn, nil
}

// Accept confirms a transaction. Only the organizer of its event may do so,
// and only while it waits for confirmation.
func (s *TransactionService) Accept(ctx context.Context, transactionID, organizerID string) (*model.Transaction, error) {
	txn, err := s.transition(ctx, "accept", transactionID, model.StatusDone, organizerOwns(organizerID))
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.Notification{
		UserID:  txn.UserID,
		Title:   "Payment Accepted",
		Message: fmt.Sprintf("Your payment for %q has been accepted. Your tickets are confirmed.", txn.EventTitle),
		Type:    model.NotificationTransaction,
	})
	return txn, nil
}

// Reject declines a transaction and restores every item's quantity to its
// ticket type. The status change and the restoration form one atomic unit.
func (s *TransactionService) Reject(ctx context.Context, transactionID, organizerID, reason string) (*model.Transaction, error) {
	txn, err := s.transition(ctx, "reject", transactionID, model.StatusRejected, organizerOwns(organizerID))
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Your payment for %q has been rejected.", txn.EventTitle)
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += " Reason: " + reason
	} else {
		msg += " Please contact support for more information."
	}
	s.notify(ctx, model.Notification{
		UserID:  txn.UserID,
		Title:   "Payment Rejected",
		Message: msg,
		Type:    model.NotificationTransaction,
	})
	return txn, nil
}

// Cancel withdraws a transaction that is not yet final and restores its
// quantity. The purchaser and admins may cancel.
func (s *TransactionService) Cancel(ctx context.Context, transactionID string, caller model.Principal) (*model.Transaction, error) {
	authorize := func(t *model.Transaction) error {
		if t.UserID != caller.UserID && !caller.IsAdmin() {
			return fmt.Errorf("%w: only the purchaser can cancel this transaction", ErrForbidden)
		}
		return nil
	}
	txn, err := s.transition(ctx, "cancel", transactionID, model.StatusCanceled, authorize)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.Notification{
		UserID:  txn.UserID,
		Title:   "Transaction Canceled",
		Message: fmt.Sprintf("Your order for %q has been canceled.", txn.EventTitle),
		Type:    model.NotificationTransaction,
	})
	return txn, nil
}

// Expire moves a transaction that is not yet final to EXPIRED and restores
// its quantity. It is driven by the sweeper, not by users.
func (s *TransactionService) Expire(ctx context.Context, transactionID string) (*model.Transaction, error) {
	txn, err := s.transition(ctx, "expire", transactionID, model.StatusExpired, func(*model.Transaction) error { return nil })
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.Notification{
		UserID:  txn.UserID,
		Title:   "Transaction Expired",
		Message: fmt.Sprintf("Your order for %q expired before it was confirmed.", txn.EventTitle),
		Type:    model.NotificationTransaction,
	})
	return txn, nil
}

// ExpireStale expires up to limit transactions that have waited longer than
// olderThan. Transactions that were decided while the batch ran are skipped.
func (s *TransactionService) ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.now().Add(-olderThan)
	ids, err := s.store.ListStaleTransactions(ctx, cutoff, model.NonTerminalStatuses(), limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if _, err := s.Expire(ctx, id); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
				log.WithField("transaction_id", id).Debug("Transaction left the waiting states before it could expire")
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// GetByID returns a transaction to the organizer of its event.
func (s *TransactionService) GetByID(ctx context.Context, transactionID, organizerID string) (*model.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.EventOrganizerID != organizerID {
		return nil, fmt.Errorf("%w: you can only view transactions for your own events", ErrForbidden)
	}
	return txn, nil
}

// ListOrganizerTransactions returns transactions across every event the
// organizer owns.
func (s *TransactionService) ListOrganizerTransactions(ctx context.Context, organizerID string) ([]model.Transaction, error) {
	return s.store.ListTransactionsByOrganizer(ctx, organizerID)
}

// ListUserTransactions returns the caller's own purchases.
func (s *TransactionService) ListUserTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, userID)
}

type authorizer func(t *model.Transaction) error

func organizerOwns(organizerID string) authorizer {
	return func(t *model.Transaction) error {
		if t.EventOrganizerID != organizerID {
			return fmt.Errorf("%w: you are not the organizer of this event", ErrForbidden)
		}
		return nil
	}
}

// transition checks existence, then authorization, then moves the status by
// compare-and-swap from any legal predecessor of `to`. Only the caller whose
// swap succeeds restores quota, so a release happens at most once per
// transaction.
func (s *TransactionService) transition(ctx context.Context, op, id string, to model.TransactionStatus, authorize authorizer) (*model.Transaction, error) {
	var (
		txn      *model.Transaction
		from     model.TransactionStatus
		restored int
	)
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		current, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(current); err != nil {
			return err
		}
		from = current.Status

		if err := q.TransitionStatus(ctx, id, model.SourcesOf(to), to); err != nil {
			return err
		}

		restored = 0
		if to.ReleasesQuota() {
			for _, it := range current.Items {
				// The ticket type was deleted; its units have nowhere to go.
				if it.TicketTypeID == nil {
					continue
				}
				if err := s.inventory.restore(ctx, q, *it.TicketTypeID, it.Quantity); err != nil {
					return err
				}
				restored += it.Quantity
			}
		}

		txn, err = q.GetTransaction(ctx, id)
		return err
	})
	metrics.RecordOperation(op, Code(err))
	if err != nil {
		return nil, err
	}
	if restored > 0 {
		metrics.RecordQuota("restored", restored)
	}

	log.WithFields(log.Fields{
		"transaction_id": id,
		"from":           from,
		"to":             to,
		"restored":       restored,
	}).Info("Transaction status changed")
	return txn, nil
}

func (s *TransactionService) notify(ctx context.Context, n model.Notification) {
	if s.notifier == nil || n.UserID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"user_id": n.UserID,
			"title":   n.Title,
		}).Warn("Failed to deliver notification")
	}
}
