// README: In-memory order repository for local runs and tests; same CAS semantics as the Postgres store.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []Event

	lockMu     sync.Mutex
	staffLocks map[types.ID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[types.ID]*Order),
		staffLocks: make(map[types.ID]*sync.Mutex),
	}
}

func (m *MemoryStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return apperr.Conflict("order %s already exists", o.ID)
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %s", id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[t.OrderID]
	if !ok || o.Status != t.From || o.StatusVersion != t.Version {
		return false, nil
	}
	o.Status = t.To
	o.StatusVersion++
	if t.StaffID != nil {
		id := *t.StaffID
		o.AssignedStaffID = &id
	}
	at := t.At
	switch t.To {
	case StatusAccepted:
		if o.AcceptedAt == nil {
			o.AcceptedAt = &at
		}
	case StatusInProgress:
		o.StartedAt = &at
	case StatusCompleted:
		o.CompletedAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}
	if t.Reason != nil {
		r := *t.Reason
		o.CancelReason = &r
	}
	return true, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.events) + 1)
	m.events = append(m.events, cp)
	return nil
}

// Events returns the transition log of one order in commit order.
func (m *MemoryStore) Events(orderID types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) LockStaff(ctx context.Context, staffID types.ID, fn func(ctx context.Context) error) error {
	m.lockMu.Lock()
	l, ok := m.staffLocks[staffID]
	if !ok {
		l = &sync.Mutex{}
		m.staffLocks[staffID] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (m *MemoryStore) StaffBookings(_ context.Context, staffID types.ID, from, to time.Time) ([]availability.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []availability.Booking
	for _, o := range m.orders {
		if o.Type != TypeService || !o.AssignedTo(staffID) || o.ScheduledAt == nil {
			continue
		}
		if o.Status != StatusAccepted && o.Status != StatusInProgress {
			continue
		}
		b := availability.Booking{OrderID: string(o.ID), Start: *o.ScheduledAt, DurationMinutes: o.DurationMinutes()}
		if b.Start.Before(to) && b.End().After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if f.ProviderID != "" && o.ProviderID != f.ProviderID {
			continue
		}
		if f.StaffID != "" && !o.AssignedTo(f.StaffID) {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		at := listTime(o)
		if at.Before(f.From) || !at.Before(f.To) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sortOrders(out)
	return out, nil
}

func (m *MemoryStore) ListAwaitingDriver(_ context.Context, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.AwaitingDriver() {
			out = append(out, cloneOrder(o))
		}
	}
	sortOrders(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func listTime(o *Order) time.Time {
	if o.ScheduledAt != nil {
		return *o.ScheduledAt
	}
	return o.CreatedAt
}

func sortOrders(out []*Order) {
	sort.Slice(out, func(i, j int) bool {
		a, b := listTime(out[i]), listTime(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[j].ID
	})
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.AssignedStaffID != nil {
		id := *o.AssignedStaffID
		cp.AssignedStaffID = &id
	}
	return &cp
}
