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

const transactionSelect = `
	SELECT t.id, t.user_id, t.event_id, t.status, t.total_price, t.created_at, t.updated_at,
	       e.title, e.organizer_id
	FROM transactions t
	JOIN events e ON e.id = t.event_id`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t      model.Transaction
		status string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.EventID, &status, &t.TotalPrice,
		&t.CreatedAt, &t.UpdatedAt, &t.EventTitle, &t.EventOrganizerID)
	if err != nil {
		return nil, err
	}
	if t.Status, err = model.ParseTransactionStatus(status); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransaction inserts a transaction and all of its items. Run it
// inside Store.InTx so the rows land together with the quota decrement.
func (q *Queries) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := q.db.Exec(ctx,
		`INSERT INTO transactions (id, user_id, event_id, status, total_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.EventID, string(t.Status), t.TotalPrice, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for i := range t.Items {
		it := &t.Items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.TransactionID = t.ID
		_, err = q.db.Exec(ctx,
			`INSERT INTO transaction_items
			     (id, transaction_id, ticket_type_id, ticket_type_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.TransactionID, it.TicketTypeID, it.TicketTypeName,
			it.Quantity, it.UnitPrice, it.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert transaction item: %w", err)
		}
	}
	return nil
}

// GetTransaction returns a transaction with its items and owning event's
// organizer, or ErrNotFound.
func (q *Queries) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, transactionSelect+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	txs := []model.Transaction{*t}
	if err := q.attachItems(ctx, txs); err != nil {
		return nil, err
	}
	return &txs[0], nil
}

// TransitionStatus moves a transaction to `to` only if its current status is
// one of `from`, as a single compare-and-swap. When no row matches, the
// returned error is ErrNotFound or a *TransitionError carrying the status
// that was found.
func (q *Queries) TransitionStatus(ctx context.Context, id string, from []model.TransactionStatus, to model.TransactionStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE transactions
		 SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($2)`,
		id, statusStrings(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = q.db.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read transaction status: %w", err)
	}
	return &TransitionError{ID: id, Current: model.TransactionStatus(current), Target: to}
}

// ListTransactionsByOrganizer returns transactions for every event owned by
// organizerID, newest first.
func (q *Queries) ListTransactionsByOrganizer(ctx context.Context, organizerID string) ([]model.Transaction, error) {
	return q.listTransactions(ctx, ` WHERE e.organizer_id = $1 ORDER BY t.created_at DESC`, organizerID)
}

// ListTransactionsByUser returns the purchases of userID, newest first.
func (q *Queries) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return q.listTransactions(ctx, ` WHERE t.user_id = $1 ORDER BY t.created_at DESC`, userID)
}

func (q *Queries) listTransactions(ctx context.Context, where string, args ...any) ([]model.Transaction, error) {
	rows, err := q.db.Query(ctx, transactionSelect+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attachItems(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// ListStaleTransactions returns IDs of transactions in one of statuses that
// were created before the cutoff, oldest first.
func (q *Queries) ListStaleTransactions(ctx context.Context, before time.Time, statuses []model.TransactionStatus, limit int) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id FROM transactions
		 WHERE status = ANY($1) AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		statusStrings(statuses), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) attachItems(ctx context.Context, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	ids := make([]string, len(txs))
	index := make(map[string]int, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID
		index[txs[i].ID] = i
		txs[i].Items = []model.TransactionItem{}
	}

	rows, err := q.db.Query(ctx,
		`SELECT id, transaction_id, ticket_type_id, ticket_type_name, quantity, unit_price, subtotal
		 FROM transaction_items
		 WHERE transaction_id = ANY($1)
		 ORDER BY transaction_id, id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("list transaction items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.TransactionItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.TicketTypeID, &it.TicketTypeName,
			&it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return fmt.Errorf("scan transaction item: %w", err)
		}
		i, ok := index[it.TransactionID]
		if !ok {
			return fmt.Errorf("transaction item %s for unknown transaction %s", it.ID, it.TransactionID)
		}
		txs[i].Items = append(txs[i].Items, it)
	}
	return rows.Err()
}
