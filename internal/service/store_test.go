package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/repository"
)

// memStore is an in-memory Store. InTx serialises transactions behind one
// mutex and commits a copy of the state only when fn succeeds, which gives
// the same all-or-nothing behaviour as the Postgres store.
type memStore struct {
	*memQuerier
	mu sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{memQuerier: &memQuerier{st: newMemState()}}
}

func (s *memStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memQuerier{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type memState struct {
	events     map[string]model.Event
	types      map[string]model.TicketType
	typeOrder  []string
	txns       map[string]model.Transaction
	txnOrder   []string
	clockTicks int
}

func newMemState() *memState {
	return &memState{
		events: map[string]model.Event{},
		types:  map[string]model.TicketType{},
		txns:   map[string]model.Transaction{},
	}
}

func (st *memState) clone() *memState {
	out := newMemState()
	for k, v := range st.events {
		out.events[k] = v
	}
	for k, v := range st.types {
		out.types[k] = v
	}
	for k, v := range st.txns {
		v.Items = append([]model.TransactionItem(nil), v.Items...)
		out.txns[k] = v
	}
	out.typeOrder = append([]string(nil), st.typeOrder...)
	out.txnOrder = append([]string(nil), st.txnOrder...)
	out.clockTicks = st.clockTicks
	return out
}

// now returns strictly increasing timestamps so ordering is deterministic.
func (st *memState) now() time.Time {
	st.clockTicks++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(st.clockTicks) * time.Millisecond)
}

type memQuerier struct {
	st *memState
}

func (q *memQuerier) CreateEvent(_ context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = q.st.now()
	stored := *e
	stored.TicketTypes = nil
	q.st.events[e.ID] = stored
	return nil
}

func (q *memQuerier) GetEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := q.st.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (q *memQuerier) LockEvent(ctx context.Context, id string) (*model.Event, error) {
	return q.GetEvent(ctx, id)
}

func (q *memQuerier) nameTaken(eventID, name, exceptID string) bool {
	for _, tt := range q.st.types {
		if tt.EventID == eventID && tt.ID != exceptID && strings.EqualFold(tt.Name, name) {
			return true
		}
	}
	return false
}

func (q *memQuerier) CreateTicketType(_ context.Context, tt *model.TicketType) error {
	if q.nameTaken(tt.EventID, tt.Name, "") {
		return fmt.Errorf("%w: %q", repository.ErrDuplicateName, tt.Name)
	}
	if tt.ID == "" {
		tt.ID = uuid.New().String()
	}
	tt.CreatedAt = q.st.now()
	tt.UpdatedAt = tt.CreatedAt
	q.st.types[tt.ID] = *tt
	q.st.typeOrder = append(q.st.typeOrder, tt.ID)
	return nil
}

func (q *memQuerier) GetTicketType(_ context.Context, id string) (*model.TicketType, error) {
	tt, ok := q.st.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tt, nil
}

func (q *memQuerier) ListTicketTypes(_ context.Context, eventID string) ([]model.TicketType, error) {
	var out []model.TicketType
	for _, id := range q.st.typeOrder {
		if tt := q.st.types[id]; tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (q *memQuerier) ReserveQuota(_ context.Context, id string, quantity int) (*model.TicketType, error) {
	tt, ok := q.st.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if tt.AvailableQuota < quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", repository.ErrInsufficientQuota, quantity, tt.AvailableQuota)
	}
	tt.AvailableQuota -= quantity
	q.st.types[id] = tt
	return &tt, nil
}

func (q *memQuerier) RestoreQuota(_ context.Context, id string, quantity int) (*model.TicketType, bool, error) {
	tt, ok := q.st.types[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	clamped := tt.AvailableQuota+quantity > tt.Quota
	tt.AvailableQuota = min(tt.Quota, tt.AvailableQuota+quantity)
	q.st.types[id] = tt
	return &tt, clamped, nil
}

func (q *memQuerier) ResizeTicketType(_ context.Context, id string, quota int) (*model.TicketType, error) {
	tt, ok := q.st.types[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	sold := tt.Sold()
	if quota < sold {
		return nil, fmt.Errorf("%w: quota %d is below %d already sold for %q", repository.ErrQuotaBelowSold, quota, sold, tt.Name)
	}
	tt.Quota = quota
	tt.AvailableQuota = quota - sold
	q.st.types[id] = tt
	return &tt, nil
}

func (q *memQuerier) UpdateTicketTypeDetails(_ context.Context, in *model.TicketType) (*model.TicketType, error) {
	tt, ok := q.st.types[in.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if q.nameTaken(tt.EventID, in.Name, tt.ID) {
		return nil, fmt.Errorf("%w: %q", repository.ErrDuplicateName, in.Name)
	}
	tt.Name, tt.Description, tt.Price = in.Name, in.Description, in.Price
	q.st.types[tt.ID] = tt
	return &tt, nil
}

func (q *memQuerier) DeleteUnsoldTicketType(_ context.Context, id string) error {
	tt, ok := q.st.types[id]
	if !ok {
		return repository.ErrNotFound
	}
	if tt.Sold() > 0 {
		return fmt.Errorf("%w: %d of %q sold", repository.ErrTicketsSold, tt.Sold(), tt.Name)
	}
	delete(q.st.types, id)
	for i, v := range q.st.typeOrder {
		if v == id {
			q.st.typeOrder = append(q.st.typeOrder[:i:i], q.st.typeOrder[i+1:]...)
			break
		}
	}
	for k, txn := range q.st.txns {
		for i := range txn.Items {
			if txn.Items[i].TicketTypeID != nil && *txn.Items[i].TicketTypeID == id {
				txn.Items[i].TicketTypeID = nil
			}
		}
		q.st.txns[k] = txn
	}
	return nil
}

func (q *memQuerier) CreateTransaction(_ context.Context, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = q.st.now()
	t.UpdatedAt = t.CreatedAt
	for i := range t.Items {
		if t.Items[i].ID == "" {
			t.Items[i].ID = uuid.New().String()
		}
		t.Items[i].TransactionID = t.ID
	}
	stored := *t
	stored.Items = append([]model.TransactionItem(nil), t.Items...)
	q.st.txns[t.ID] = stored
	q.st.txnOrder = append(q.st.txnOrder, t.ID)
	return nil
}

func (q *memQuerier) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	t, ok := q.st.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return q.decorate(t), nil
}

func (q *memQuerier) decorate(t model.Transaction) *model.Transaction {
	t.Items = append([]model.TransactionItem{}, t.Items...)
	if ev, ok := q.st.events[t.EventID]; ok {
		t.EventTitle = ev.Title
		t.EventOrganizerID = ev.OrganizerID
	}
	return &t
}

func (q *memQuerier) TransitionStatus(_ context.Context, id string, from []model.TransactionStatus, to model.TransactionStatus) error {
	t, ok := q.st.txns[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, s := range from {
		if t.Status == s {
			t.Status = to
			t.UpdatedAt = q.st.now()
			q.st.txns[id] = t
			return nil
		}
	}
	return &repository.TransitionError{ID: id, Current: t.Status, Target: to}
}

func (q *memQuerier) ListTransactionsByOrganizer(_ context.Context, organizerID string) ([]model.Transaction, error) {
	return q.listTransactions(func(t *model.Transaction) bool { return t.EventOrganizerID == organizerID }), nil
}

func (q *memQuerier) ListTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	return q.listTransactions(func(t *model.Transaction) bool { return t.UserID == userID }), nil
}

func (q *memQuerier) listTransactions(keep func(*model.Transaction) bool) []model.Transaction {
	var out []model.Transaction
	for i := len(q.st.txnOrder) - 1; i >= 0; i-- {
		t := q.decorate(q.st.txns[q.st.txnOrder[i]])
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (q *memQuerier) ListStaleTransactions(_ context.Context, before time.Time, statuses []model.TransactionStatus, limit int) ([]string, error) {
	var stale []model.Transaction
	for _, t := range q.st.txns {
		if !t.CreatedAt.Before(before) {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				stale = append(stale, t)
				break
			}
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })

	var ids []string
	for _, t := range stale {
		if len(ids) == limit {
			break
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// ticketType reads a ticket type outside any transaction.
func (s *memStore) ticketType(id string) model.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.types[id]
}

// seedTransaction stores a transaction with arbitrary items and status,
// bypassing checkout, and takes the items' quantity out of inventory.
func (s *memStore) seedTransaction(userID, eventID string, status model.TransactionStatus, items ...model.TransactionItem) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := &memQuerier{st: s.st}
	for _, it := range items {
		if _, err := q.ReserveQuota(context.Background(), *it.TicketTypeID, it.Quantity); err != nil {
			panic(err)
		}
	}
	t := &model.Transaction{
		UserID:     userID,
		EventID:    eventID,
		Status:     status,
		Items:      items,
		TotalPrice: model.SumSubtotals(items),
	}
	if err := q.CreateTransaction(context.Background(), t); err != nil {
		panic(err)
	}
	return t.ID
}

// faultyStore wraps memStore and fails selected calls made inside InTx.
type faultyStore struct {
	*memStore
	failRestoreOn int
	restoreErr    error
	failCreateTxn error
	restoreCalls  int
}

func (s *faultyStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.memStore.InTx(ctx, func(q repository.Querier) error {
		return fn(&faultyQuerier{Querier: q, s: s})
	})
}

type faultyQuerier struct {
	repository.Querier
	s *faultyStore
}

func (q *faultyQuerier) RestoreQuota(ctx context.Context, id string, quantity int) (*model.TicketType, bool, error) {
	q.s.restoreCalls++
	if q.s.restoreCalls == q.s.failRestoreOn {
		return nil, false, q.s.restoreErr
	}
	return q.Querier.RestoreQuota(ctx, id, quantity)
}

func (q *faultyQuerier) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if q.s.failCreateTxn != nil {
		return q.s.failCreateTxn
	}
	return q.Querier.CreateTransaction(ctx, t)
}
