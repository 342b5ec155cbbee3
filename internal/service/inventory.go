package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/repository"
)

const maxCapacity = 100_000

// priceScale matches the NUMERIC(14, 2) price columns.
const priceScale = 2

// InventoryService owns ticket types and guarantees that an event never
// sells more than its capacity and that no ticket type's available quota
// goes negative.
type InventoryService struct {
	store Store
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(store Store) *InventoryService {
	return &InventoryService{store: store}
}

// CreateEvent creates an event together with its default Regular ticket
// type, which starts with the whole capacity.
func (s *InventoryService) CreateEvent(ctx context.Context, organizerID string, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, invalidInput("event title is required")
	}
	if req.Capacity <= 0 {
		return nil, invalidInput("capacity must be a positive integer")
	}
	if req.Capacity > maxCapacity {
		return nil, invalidInput("capacity cannot exceed %d", maxCapacity)
	}
	if req.Price.IsNegative() {
		return nil, invalidInput("price must not be negative")
	}
	req.Price = req.Price.Round(priceScale)

	ev := &model.Event{
		OrganizerID: organizerID,
		Title:       req.Title,
		Capacity:    req.Capacity,
		Price:       req.Price,
	}
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		if err := q.CreateEvent(ctx, ev); err != nil {
			return err
		}
		regular := &model.TicketType{
			EventID:        ev.ID,
			Name:           model.RegularTicketName,
			Description:    "Standard ticket",
			Price:          ev.Price,
			Quota:          ev.Capacity,
			AvailableQuota: ev.Capacity,
		}
		if err := q.CreateTicketType(ctx, regular); err != nil {
			return err
		}
		ev.TicketTypes = []model.TicketType{*regular}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"event_id":     ev.ID,
		"organizer_id": organizerID,
		"capacity":     ev.Capacity,
	}).Info("Event created")
	return ev, nil
}

// ListTicketTypes returns every ticket type of an event.
func (s *InventoryService) ListTicketTypes(ctx context.Context, eventID string) ([]model.TicketType, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListTicketTypes(ctx, eventID)
}

// Reserve takes quantity units of a ticket type out of inventory.
func (s *InventoryService) Reserve(ctx context.Context, ticketTypeID string, quantity int) (*model.TicketType, error) {
	var tt *model.TicketType
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		tt, err = s.reserve(ctx, q, ticketTypeID, quantity)
		return err
	})
	metrics.RecordOperation("reserve", Code(err))
	if err != nil {
		return nil, err
	}
	metrics.RecordQuota("reserved", quantity)
	return tt, nil
}

// Restore hands quantity units of a ticket type back to inventory.
func (s *InventoryService) Restore(ctx context.Context, ticketTypeID string, quantity int) error {
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		return s.restore(ctx, q, ticketTypeID, quantity)
	})
	metrics.RecordOperation("restore", Code(err))
	if err != nil {
		return err
	}
	metrics.RecordQuota("restored", quantity)
	return nil
}

func (s *InventoryService) reserve(ctx context.Context, q repository.Querier, ticketTypeID string, quantity int) (*model.TicketType, error) {
	if quantity < 1 {
		return nil, invalidInput("quantity must be at least 1")
	}
	return q.ReserveQuota(ctx, ticketTypeID, quantity)
}

func (s *InventoryService) restore(ctx context.Context, q repository.Querier, ticketTypeID string, quantity int) error {
	if quantity < 1 {
		return invalidInput("quantity must be at least 1")
	}
	tt, clamped, err := q.RestoreQuota(ctx, ticketTypeID, quantity)
	if err != nil {
		return err
	}
	if clamped {
		metrics.QuotaRestoreClamped.Inc()
		log.WithFields(log.Fields{
			"ticket_type_id":  tt.ID,
			"event_id":        tt.EventID,
			"quantity":        quantity,
			"quota":           tt.Quota,
			"available_quota": tt.AvailableQuota,
		}).Error("Quota restore clamped: more units returned than were reserved")
	}
	return nil
}

// AddTicketTypes creates new ticket types for an event and shrinks the
// Regular type so that all quota still sums to the event's capacity. Either
// every change applies or none does.
func (s *InventoryService) AddTicketTypes(ctx context.Context, eventID, organizerID string, items []model.TicketTypeInput) ([]model.TicketType, error) {
	inputs, err := normaliseInputs(items)
	if err != nil {
		return nil, err
	}

	var result []model.TicketType
	err = s.store.InTx(ctx, func(q repository.Querier) error {
		ev, err := q.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := requireEventOwner(ev, organizerID); err != nil {
			return err
		}

		existing, err := q.ListTicketTypes(ctx, eventID)
		if err != nil {
			return err
		}
		taken := make(map[string]bool, len(existing))
		for _, tt := range existing {
			taken[strings.ToLower(tt.Name)] = true
		}

		added := 0
		for _, in := range inputs {
			if taken[strings.ToLower(in.Name)] {
				return fmt.Errorf("%w: %q", repository.ErrDuplicateName, in.Name)
			}
			added += in.Quota
		}

		special := specialQuota(existing)
		if special+added > ev.Capacity {
			return fmt.Errorf("%w: event capacity is %d, existing ticket types hold %d, requested %d",
				ErrCapacityExceeded, ev.Capacity, special, added)
		}

		for _, in := range inputs {
			tt := &model.TicketType{
				EventID:        eventID,
				Name:           in.Name,
				Description:    in.Description,
				Price:          in.Price,
				Quota:          in.Quota,
				AvailableQuota: in.Quota,
			}
			if err := q.CreateTicketType(ctx, tt); err != nil {
				return err
			}
		}

		if err := rebalanceRegular(ctx, q, ev, existing, special+added); err != nil {
			return err
		}

		result, err = q.ListTicketTypes(ctx, eventID)
		return err
	})
	metrics.RecordOperation("add_ticket_types", Code(err))
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"event_id": eventID,
		"added":    len(inputs),
	}).Info("Ticket types added")
	return result, nil
}

// UpdateTicketType applies a partial update. Quota may not drop below what
// is sold, and a quota change re-runs the capacity check and Regular
// rebalance.
func (s *InventoryService) UpdateTicketType(ctx context.Context, id, organizerID string, req model.UpdateTicketTypeRequest) (*model.TicketType, error) {
	var result *model.TicketType
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		current, err := q.GetTicketType(ctx, id)
		if err != nil {
			return err
		}
		ev, err := q.LockEvent(ctx, current.EventID)
		if err != nil {
			return err
		}
		if err := requireEventOwner(ev, organizerID); err != nil {
			return err
		}
		// Re-read under the event lock so the rebalance below sees every
		// committed configuration change.
		if current, err = q.GetTicketType(ctx, id); err != nil {
			return err
		}

		next := *current
		detailsChanged := false
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if len(name) < 2 {
				return invalidInput("name must be at least 2 characters")
			}
			if model.IsRegularName(name) != current.IsRegular() {
				return fmt.Errorf("%w: %q is reserved for the default ticket type", ErrNameReserved, model.RegularTicketName)
			}
			if current.IsRegular() {
				name = model.RegularTicketName
			}
			next.Name, detailsChanged = name, true
		}
		if req.Description != nil {
			next.Description, detailsChanged = *req.Description, true
		}
		if req.Price != nil {
			if req.Price.IsNegative() {
				return invalidInput("price must not be negative")
			}
			next.Price, detailsChanged = req.Price.Round(priceScale), true
		}
		if detailsChanged {
			if _, err := q.UpdateTicketTypeDetails(ctx, &next); err != nil {
				return err
			}
		}

		if req.Quota != nil && *req.Quota != current.Quota {
			if current.IsRegular() {
				return fmt.Errorf("%w: the %s quota follows event capacity and cannot be set directly",
					ErrNameReserved, model.RegularTicketName)
			}
			if *req.Quota < 1 {
				return invalidInput("quota must be at least 1")
			}
			if *req.Quota > maxCapacity {
				return fmt.Errorf("%w: quota cannot exceed %d", ErrCapacityExceeded, maxCapacity)
			}
			types, err := q.ListTicketTypes(ctx, ev.ID)
			if err != nil {
				return err
			}
			special := specialQuota(types) - current.Quota + *req.Quota
			if special > ev.Capacity {
				return fmt.Errorf("%w: event capacity is %d, ticket types would hold %d",
					ErrCapacityExceeded, ev.Capacity, special)
			}
			if _, err := q.ResizeTicketType(ctx, id, *req.Quota); err != nil {
				return err
			}
			if err := rebalanceRegular(ctx, q, ev, types, special); err != nil {
				return err
			}
		}

		result, err = q.GetTicketType(ctx, id)
		return err
	})
	metrics.RecordOperation("update_ticket_type", Code(err))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteTicketType removes a ticket type that has sold nothing. The quota of
// a deleted non-Regular type goes back to Regular.
func (s *InventoryService) DeleteTicketType(ctx context.Context, id, organizerID string) error {
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		tt, err := q.GetTicketType(ctx, id)
		if err != nil {
			return err
		}
		ev, err := q.LockEvent(ctx, tt.EventID)
		if err != nil {
			return err
		}
		if err := requireEventOwner(ev, organizerID); err != nil {
			return err
		}
		if err := q.DeleteUnsoldTicketType(ctx, id); err != nil {
			return err
		}
		if tt.IsRegular() {
			return nil
		}
		remaining, err := q.ListTicketTypes(ctx, ev.ID)
		if err != nil {
			return err
		}
		return rebalanceRegular(ctx, q, ev, remaining, specialQuota(remaining))
	})
	metrics.RecordOperation("delete_ticket_type", Code(err))
	return err
}

// rebalanceRegular resizes the Regular type, if the event still has one, to
// capacity minus the quota held by every other type. Its sold count is kept,
// so its available quota becomes newQuota − sold.
func rebalanceRegular(ctx context.Context, q repository.Querier, ev *model.Event, types []model.TicketType, special int) error {
	var regular *model.TicketType
	for i := range types {
		if types[i].IsRegular() {
			regular = &types[i]
			break
		}
	}
	if regular == nil {
		return nil
	}

	newQuota := ev.Capacity - special
	if _, err := q.ResizeTicketType(ctx, regular.ID, newQuota); err != nil {
		if errors.Is(err, repository.ErrQuotaBelowSold) {
			return fmt.Errorf("%w: %s would shrink to %d but %d are already sold",
				ErrRegularQuotaUnderflow, model.RegularTicketName, newQuota, regular.Sold())
		}
		return err
	}
	return nil
}

func specialQuota(types []model.TicketType) int {
	total := 0
	for _, tt := range types {
		if !tt.IsRegular() {
			total += tt.Quota
		}
	}
	return total
}

func normaliseInputs(items []model.TicketTypeInput) ([]model.TicketTypeInput, error) {
	if len(items) == 0 {
		return nil, invalidInput("at least one ticket type is required")
	}
	seen := make(map[string]bool, len(items))
	out := make([]model.TicketTypeInput, len(items))
	for i, in := range items {
		in.Name = strings.TrimSpace(in.Name)
		switch {
		case len(in.Name) < 2:
			return nil, invalidInput("items[%d]: name must be at least 2 characters", i)
		case model.IsRegularName(in.Name):
			return nil, fmt.Errorf("%w: items[%d]: %q is reserved for the default ticket type",
				ErrNameReserved, i, model.RegularTicketName)
		case in.Quota < 1:
			return nil, invalidInput("items[%d]: quota must be at least 1", i)
		case in.Quota > maxCapacity:
			return nil, fmt.Errorf("%w: items[%d]: quota cannot exceed %d", ErrCapacityExceeded, i, maxCapacity)
		case in.Price.LessThan(decimal.Zero):
			return nil, invalidInput("items[%d]: price must not be negative", i)
		}
		in.Price = in.Price.Round(priceScale)
		key := strings.ToLower(in.Name)
		if seen[key] {
			return nil, fmt.Errorf("%w: %q appears more than once", repository.ErrDuplicateName, in.Name)
		}
		seen[key] = true
		out[i] = in
	}
	return out, nil
}
