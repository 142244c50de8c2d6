// README: In-memory delivery request store with the same guards as the Postgres store.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/types"
)

type MemoryStore struct {
	mu       sync.Mutex
	requests map[types.ID]*DeliveryRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[types.ID]*DeliveryRequest)}
}

func (m *MemoryStore) Create(_ context.Context, r *DeliveryRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return apperr.Conflict("delivery request %s already exists", r.ID)
	}
	if r.Status == StatusOffered {
		for _, cur := range m.requests {
			if cur.OrderID == r.OrderID && cur.Status == StatusOffered {
				return apperr.Conflict("order %s already has an open delivery request", r.OrderID)
			}
		}
	}
	m.requests[r.ID] = cloneRequest(r)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("delivery request %s", id)
	}
	return cloneRequest(r), nil
}

func (m *MemoryStore) Open(_ context.Context, orderID types.ID) (*DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.OrderID == orderID && r.Status == StatusOffered {
			return cloneRequest(r), nil
		}
	}
	return nil, apperr.NotFound("open delivery request for order %s", orderID)
}

func (m *MemoryStore) LatestAttempt(_ context.Context, orderID types.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.OrderID == orderID && r.Attempt > n {
			n = r.Attempt
		}
	}
	return n, nil
}

func (m *MemoryStore) Latest(_ context.Context, orderID types.ID) (*DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *DeliveryRequest
	for _, r := range m.requests {
		if r.OrderID == orderID && (latest == nil || r.Attempt > latest.Attempt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("delivery request for order %s", orderID)
	}
	return cloneRequest(latest), nil
}

func (m *MemoryStore) Accept(_ context.Context, id, driverID types.ID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusOffered || r.Expired(now) || !r.VisibleTo(driverID) {
		return false, nil
	}
	resolve(r, StatusAccepted, &driverID, now)
	return true, nil
}

func (m *MemoryStore) Reject(_ context.Context, id, driverID types.ID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusOffered || r.Expired(now) || r.CandidateStaffID == nil || *r.CandidateStaffID != driverID {
		return false, nil
	}
	resolve(r, StatusRejected, &driverID, now)
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, id, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusAccepted || r.ResolvedBy == nil || *r.ResolvedBy != driverID {
		return false, nil
	}
	r.ResolvedBy = nil
	for _, cur := range m.requests {
		if cur.OrderID == r.OrderID && cur.Status == StatusOffered {
			r.Status = StatusExpired
			return true, nil
		}
	}
	r.Status = StatusOffered
	r.ResolvedAt = nil
	return true, nil
}

func (m *MemoryStore) Decline(_ context.Context, id, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusOffered || !r.Broadcast() || !r.VisibleTo(driverID) {
		return false, nil
	}
	r.DeclinedBy = append(r.DeclinedBy, driverID)
	return true, nil
}

func (m *MemoryStore) Expire(_ context.Context, id types.ID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.Status != StatusOffered || !r.Expired(now) {
		return false, nil
	}
	resolve(r, StatusExpired, nil, now)
	return true, nil
}

func (m *MemoryStore) Withdraw(_ context.Context, orderID types.ID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, r := range m.requests {
		if r.OrderID == orderID && r.Status == StatusOffered {
			resolve(r, StatusExpired, nil, now)
			changed = true
		}
	}
	return changed, nil
}

func (m *MemoryStore) ListOffered(_ context.Context, f Filter) ([]*DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryRequest
	for _, r := range m.requests {
		if r.Status != StatusOffered || r.Expired(f.Now) {
			continue
		}
		if f.ProviderID != "" && r.ProviderID != f.ProviderID {
			continue
		}
		if f.DriverID != "" && !r.VisibleTo(f.DriverID) {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*DeliveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryRequest
	for _, r := range m.requests {
		if r.Status == StatusOffered && r.Expired(now) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every request of an order in creation order.
func (m *MemoryStore) All(orderID types.ID) []*DeliveryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryRequest
	for _, r := range m.requests {
		if r.OrderID == orderID {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attempt < out[j].Attempt })
	return out
}

func resolve(r *DeliveryRequest, to RequestStatus, by *types.ID, now time.Time) {
	r.Status = to
	at := now
	r.ResolvedAt = &at
	if by != nil {
		id := *by
		r.ResolvedBy = &id
	}
}

func cloneRequest(r *DeliveryRequest) *DeliveryRequest {
	cp := *r
	cp.DeclinedBy = append([]types.ID(nil), r.DeclinedBy...)
	if r.CandidateStaffID != nil {
		id := *r.CandidateStaffID
		cp.CandidateStaffID = &id
	}
	return &cp
}
