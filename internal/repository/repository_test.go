package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/config"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/database"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
)

// newTestStore connects to TEST_DATABASE_URL, applies the schema and empties
// every table. Tests are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{URL: url, MaxConns: 20, ConnectAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	truncate(t, pool)
	return NewStore(pool)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE notifications, transaction_items, transactions, ticket_types, events`)
	require.NoError(t, err)
}

func seedTicketType(t *testing.T, s *Store, name string, quota int) (*model.Event, *model.TicketType) {
	t.Helper()
	ctx := context.Background()
	ev := &model.Event{OrganizerID: "org-1", Title: "Jazz Night", Capacity: 1000, Price: decimal.NewFromInt(100)}
	require.NoError(t, s.CreateEvent(ctx, ev))
	tt := &model.TicketType{
		EventID:        ev.ID,
		Name:           name,
		Price:          decimal.RequireFromString("49.50"),
		Quota:          quota,
		AvailableQuota: quota,
	}
	require.NoError(t, s.CreateTicketType(ctx, tt))
	return ev, tt
}

func TestReserveQuota_ConcurrentNeverOversells(t *testing.T) {
	s := newTestStore(t)
	_, tt := seedTicketType(t, s, "VIP", 20)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ReserveQuota(context.Background(), tt.ID, 1)
			if err == nil {
				success.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientQuota)
		}()
	}
	wg.Wait()

	got, err := s.GetTicketType(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(20), success.Load())
	assert.Equal(t, 0, got.AvailableQuota)
}

func TestReserveQuota_Errors(t *testing.T) {
	s := newTestStore(t)
	_, tt := seedTicketType(t, s, "VIP", 1)

	_, err := s.ReserveQuota(context.Background(), tt.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientQuota)
	assert.Contains(t, err.Error(), "available 1")

	_, err = s.ReserveQuota(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestoreQuota_ClampsAtQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, tt := seedTicketType(t, s, "VIP", 10)

	_, err := s.ReserveQuota(ctx, tt.ID, 3)
	require.NoError(t, err)

	got, clamped, err := s.RestoreQuota(ctx, tt.ID, 3)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, 10, got.AvailableQuota)

	got, clamped, err = s.RestoreQuota(ctx, tt.ID, 1)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, 10, got.AvailableQuota)
}

func TestResizeTicketType_KeepsSold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, tt := seedTicketType(t, s, "Regular", 150)

	_, err := s.ReserveQuota(ctx, tt.ID, 10)
	require.NoError(t, err)

	got, err := s.ResizeTicketType(ctx, tt.ID, 130)
	require.NoError(t, err)
	assert.Equal(t, 130, got.Quota)
	assert.Equal(t, 120, got.AvailableQuota)

	_, err = s.ResizeTicketType(ctx, tt.ID, 9)
	assert.ErrorIs(t, err, ErrQuotaBelowSold)
}

func TestCreateTicketType_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ev, _ := seedTicketType(t, s, "VIP", 5)

	err := s.CreateTicketType(context.Background(), &model.TicketType{
		EventID: ev.ID, Name: "vip", Quota: 1, AvailableQuota: 1,
	})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func newTransaction(ev *model.Event, tt *model.TicketType, qty int) *model.Transaction {
	items := []model.TransactionItem{model.NewTransactionItem(tt, qty)}
	return &model.Transaction{
		UserID:     "customer-1",
		EventID:    ev.ID,
		Status:     model.StatusWaitingConfirmation,
		TotalPrice: model.SumSubtotals(items),
		Items:      items,
	}
}

func TestTransitionStatus_ConcurrentExactlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, tt := seedTicketType(t, s, "VIP", 5)
	txn := newTransaction(ev, tt, 1)
	require.NoError(t, s.CreateTransaction(ctx, txn))

	targets := []model.TransactionStatus{model.StatusDone, model.StatusRejected}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		i, to := i, to
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.TransitionStatus(ctx, txn.ID, model.SourcesOf(to), to)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			var terr *TransitionError
			require.True(t, errors.As(err, &terr))
			assert.True(t, terr.Current.IsTerminal())
		}
	}
	assert.Equal(t, 1, failures)

	err := s.TransitionStatus(ctx, "missing", model.SourcesOf(model.StatusDone), model.StatusDone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, tt := seedTicketType(t, s, "VIP", 5)
	txn := newTransaction(ev, tt, 2)
	require.NoError(t, s.CreateTransaction(ctx, txn))

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", got.EventTitle)
	assert.Equal(t, "org-1", got.EventOrganizerID)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Subtotal.Equal(decimal.NewFromInt(99)))
	assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(99)))

	byOrg, err := s.ListTransactionsByOrganizer(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, byOrg, 1)

	byUser, err := s.ListTransactionsByUser(ctx, "customer-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	stale, err := s.ListStaleTransactions(ctx, time.Now().Add(time.Minute), model.NonTerminalStatuses(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{txn.ID}, stale)

	stale, err = s.ListStaleTransactions(ctx, time.Now().Add(-time.Hour), model.NonTerminalStatuses(), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDeleteUnsoldTicketType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, tt := seedTicketType(t, s, "VIP", 5)

	txn := newTransaction(ev, tt, 1)
	_, err := s.ReserveQuota(ctx, tt.ID, 1)
	require.NoError(t, err)
	require.NoError(t, s.CreateTransaction(ctx, txn))

	assert.ErrorIs(t, s.DeleteUnsoldTicketType(ctx, tt.ID), ErrTicketsSold)

	_, _, err = s.RestoreQuota(ctx, tt.ID, 1)
	require.NoError(t, err)
	require.NoError(t, s.DeleteUnsoldTicketType(ctx, tt.ID))

	got, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Items[0].TicketTypeID)
	assert.Equal(t, "VIP", got.Items[0].TicketTypeName)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, tt := seedTicketType(t, s, "VIP", 5)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(q Querier) error {
		if _, err := q.ReserveQuota(ctx, tt.ID, 3); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTicketType(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableQuota)
}

func TestCreateNotification(t *testing.T) {
	s := newTestStore(t)
	n := &model.Notification{UserID: "customer-1", Title: "Hi", Message: "m", Type: model.NotificationTransaction}
	require.NoError(t, s.CreateNotification(context.Background(), n))
	assert.NotEmpty(t, n.ID)
}
