// Package repository implements all database queries for the ticket
// marketplace. It uses pgx directly (no ORM); every mutation of a shared
// counter or status column is a single conditional statement so correctness
// never depends on an earlier read.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientQuota is returned when a reservation cannot be satisfied.
var ErrInsufficientQuota = errors.New("insufficient quota")

// ErrInvalidTransition is returned when a status compare-and-swap finds the
// row in an unexpected state.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrQuotaBelowSold is returned when a resize would drop quota under the
// number of units already sold.
var ErrQuotaBelowSold = errors.New("quota below sold")

// ErrTicketsSold is returned when deleting a ticket type that has sales.
var ErrTicketsSold = errors.New("ticket type has sold tickets")

// ErrDuplicateName is returned when a ticket type name is already used by
// another type of the same event.
var ErrDuplicateName = errors.New("ticket type name already exists for this event")

// TransitionError reports the status a transaction actually had when a
// compare-and-swap on its status affected no rows.
type TransitionError struct {
	ID      string
	Current model.TransactionStatus
	Target  model.TransactionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move transaction from %s to %s", ErrInvalidTransition, e.Current, e.Target)
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the full set of persistence operations the services use. It is
// satisfied by *Queries, whether bound to the pool or to a transaction.
type Querier interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	LockEvent(ctx context.Context, id string) (*model.Event, error)

	CreateTicketType(ctx context.Context, tt *model.TicketType) error
	GetTicketType(ctx context.Context, id string) (*model.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error)
	ReserveQuota(ctx context.Context, id string, quantity int) (*model.TicketType, error)
	RestoreQuota(ctx context.Context, id string, quantity int) (*model.TicketType, bool, error)
	ResizeTicketType(ctx context.Context, id string, quota int) (*model.TicketType, error)
	UpdateTicketTypeDetails(ctx context.Context, tt *model.TicketType) (*model.TicketType, error)
	DeleteUnsoldTicketType(ctx context.Context, id string) error

	CreateTransaction(ctx context.Context, t *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	TransitionStatus(ctx context.Context, id string, from []model.TransactionStatus, to model.TransactionStatus) error
	ListTransactionsByOrganizer(ctx context.Context, organizerID string) ([]model.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
	ListStaleTransactions(ctx context.Context, before time.Time, statuses []model.TransactionStatus, limit int) ([]string, error)
}

// Queries runs statements against a pool or a transaction.
type Queries struct {
	db DBTX
}

// New binds Queries to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Store owns the pool and groups related writes into one transaction.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// InTx runs fn inside a single database transaction. Every write fn performs
// commits together or not at all.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(New(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func statusStrings(statuses []model.TransactionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
