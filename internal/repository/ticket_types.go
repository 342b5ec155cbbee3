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

const ticketTypeColumns = `id, event_id, name, description, price, quota, available_quota, created_at, updated_at`

func scanTicketType(row pgx.Row, extra ...any) (*model.TicketType, error) {
	var t model.TicketType
	dest := append([]any{
		&t.ID, &t.EventID, &t.Name, &t.Description, &t.Price,
		&t.Quota, &t.AvailableQuota, &t.CreatedAt, &t.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicketType inserts a ticket type. AvailableQuota is taken as given;
// callers creating fresh types set it equal to Quota.
func (q *Queries) CreateTicketType(ctx context.Context, tt *model.TicketType) error {
	if tt.ID == "" {
		tt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tt.CreatedAt, tt.UpdatedAt = now, now

	_, err := q.db.Exec(ctx,
		`INSERT INTO ticket_types (`+ticketTypeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tt.ID, tt.EventID, tt.Name, tt.Description, tt.Price,
		tt.Quota, tt.AvailableQuota, tt.CreatedAt, tt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", ErrDuplicateName, tt.Name)
		}
		return fmt.Errorf("insert ticket type: %w", err)
	}
	return nil
}

// GetTicketType returns a single ticket type or ErrNotFound.
func (q *Queries) GetTicketType(ctx context.Context, id string) (*model.TicketType, error) {
	tt, err := scanTicketType(q.db.QueryRow(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

// ListTicketTypes returns every ticket type of an event, oldest first.
func (q *Queries) ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ticketTypeColumns+`
		 FROM ticket_types
		 WHERE event_id = $1
		 ORDER BY created_at ASC, name ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	var types []model.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, *tt)
	}
	return types, rows.Err()
}

// ReserveQuota decrements available quota by quantity in one conditional
// statement and returns the updated row, whose price is the snapshot the
// caller should charge.
//
// A read-then-write version of this is broken under concurrency:
//
//	A: SELECT available_quota → 1
//	B: SELECT available_quota → 1
//	A: 1 >= 1, UPDATE available_quota = 0
//	B: 1 >= 1, UPDATE available_quota = -1   (oversold)
//
// Folding the check into the WHERE clause makes Postgres re-evaluate it
// against the latest committed row after acquiring the row lock, so of two
// racing checkouts for the last unit exactly one matches.
func (q *Queries) ReserveQuota(ctx context.Context, id string, quantity int) (*model.TicketType, error) {
	tt, err := scanTicketType(q.db.QueryRow(ctx,
		`UPDATE ticket_types
		 SET available_quota = available_quota - $2, updated_at = now()
		 WHERE id = $1 AND available_quota >= $2
		 RETURNING `+ticketTypeColumns,
		id, quantity,
	))
	if err == nil {
		return tt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}

	// Nothing matched: tell apart a missing row from a short one. This read
	// only shapes the error message.
	var available int
	err = q.db.QueryRow(ctx,
		`SELECT available_quota FROM ticket_types WHERE id = $1`, id,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reserve quota: %w", err)
	}
	return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuota, quantity, available)
}

// RestoreQuota increments available quota by quantity, clamped to quota.
// The boolean reports whether clamping occurred, which means more units were
// returned than were ever reserved.
func (q *Queries) RestoreQuota(ctx context.Context, id string, quantity int) (*model.TicketType, bool, error) {
	var clamped bool
	tt, err := scanTicketType(q.db.QueryRow(ctx,
		`WITH prev AS (
		     SELECT id, quota, available_quota
		     FROM ticket_types
		     WHERE id = $1
		     FOR UPDATE
		 )
		 UPDATE ticket_types t
		 SET available_quota = LEAST(prev.quota, prev.available_quota + $2), updated_at = now()
		 FROM prev
		 WHERE t.id = prev.id
		 RETURNING t.id, t.event_id, t.name, t.description, t.price, t.quota,
		           t.available_quota, t.created_at, t.updated_at,
		           prev.available_quota + $2 > prev.quota`,
		id, quantity,
	), &clamped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("restore quota: %w", err)
	}
	return tt, clamped, nil
}

// ResizeTicketType sets quota and shifts available quota by the same delta,
// preserving the sold count. It fails with ErrQuotaBelowSold rather than let
// quota drop under what is already sold.
func (q *Queries) ResizeTicketType(ctx context.Context, id string, quota int) (*model.TicketType, error) {
	tt, err := scanTicketType(q.db.QueryRow(ctx,
		`UPDATE ticket_types
		 SET available_quota = $2 - (quota - available_quota), quota = $2, updated_at = now()
		 WHERE id = $1 AND $2 >= quota - available_quota
		 RETURNING `+ticketTypeColumns,
		id, quota,
	))
	if err == nil {
		return tt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resize ticket type: %w", err)
	}

	current, err := q.GetTicketType(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: quota %d is below %d already sold for %q",
		ErrQuotaBelowSold, quota, current.Sold(), current.Name)
}

// UpdateTicketTypeDetails writes name, description and price. Quota is
// changed only through ResizeTicketType.
func (q *Queries) UpdateTicketTypeDetails(ctx context.Context, tt *model.TicketType) (*model.TicketType, error) {
	updated, err := scanTicketType(q.db.QueryRow(ctx,
		`UPDATE ticket_types
		 SET name = $2, description = $3, price = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+ticketTypeColumns,
		tt.ID, tt.Name, tt.Description, tt.Price,
	))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrNotFound
		case isUniqueViolation(err):
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, tt.Name)
		}
		return nil, fmt.Errorf("update ticket type: %w", err)
	}
	return updated, nil
}

// DeleteUnsoldTicketType removes a ticket type only while nothing of it is
// sold.
func (q *Queries) DeleteUnsoldTicketType(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM ticket_types WHERE id = $1 AND available_quota = quota`, id)
	if err != nil {
		return fmt.Errorf("delete ticket type: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := q.GetTicketType(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %d of %q sold", ErrTicketsSold, current.Sold(), current.Name)
}
