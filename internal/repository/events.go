package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

const eventColumns = `id, organizer_id, title, capacity, price, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Capacity, &e.Price, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts a new event, assigning its ID and creation time.
func (q *Queries) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := q.db.Exec(ctx,
		`INSERT INTO events (id, organizer_id, title, capacity, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.OrganizerID, e.Title, e.Capacity, e.Price, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ErrNotFound.
func (q *Queries) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(q.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// LockEvent reads an event with SELECT … FOR UPDATE. Inside a transaction it
// serialises configuration changes to the event's ticket types: two
// organizers editing the same event queue on this row lock instead of both
// computing capacity from the same stale snapshot. Checkouts never take this
// lock; they rely on the conditional decrement alone.
func (q *Queries) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(q.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}
