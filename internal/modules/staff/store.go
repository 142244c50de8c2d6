// README: Provider and roster store backed by PostgreSQL, plus an in-memory variant.
package staff

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"petmarket/internal/apperr"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

type Directory interface {
	Provider(ctx context.Context, id types.ID) (*Provider, error)
	Member(ctx context.Context, id types.ID) (*Member, error)
	// Members lists a provider's roster, optionally filtered by role, ordered by id.
	Members(ctx context.Context, providerID types.ID, role types.Role) ([]*Member, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Provider(ctx context.Context, id types.ID) (*Provider, error) {
	var p Provider
	var open, close *int
	err := s.db.QueryRow(ctx, `
		SELECT id, name, open_hour, close_hour, is_open, time_zone
		FROM providers WHERE id = $1`, string(id)).
		Scan(&p.ID, &p.Name, &open, &close, &p.IsOpen, &p.TimeZone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("provider %s", id)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if open != nil && close != nil {
		p.Hours = &availability.Hours{Open: *open, Close: *close}
	}
	return &p, nil
}

func (s *Store) Member(ctx context.Context, id types.ID) (*Member, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, provider_id, role, display_name, active, device_token
		FROM staff_members WHERE id = $1`, string(id))
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff member %s", id)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return m, nil
}

func (s *Store) Members(ctx context.Context, providerID types.ID, role types.Role) ([]*Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, role, display_name, active, device_token
		FROM staff_members
		WHERE provider_id = $1 AND ($2::text = '' OR role = $2::text)
		ORDER BY id`, string(providerID), string(role))
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		out = append(out, m)
	}
	return out, apperr.FromStore(rows.Err())
}

// SaveProvider upserts a provider record.
func (s *Store) SaveProvider(ctx context.Context, p *Provider) error {
	var open, close *int
	if p.Hours != nil {
		open, close = &p.Hours.Open, &p.Hours.Close
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO providers (id, name, open_hour, close_hour, is_open, time_zone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			open_hour = EXCLUDED.open_hour,
			close_hour = EXCLUDED.close_hour,
			is_open = EXCLUDED.is_open,
			time_zone = EXCLUDED.time_zone`,
		string(p.ID), p.Name, open, close, p.IsOpen, p.TimeZone)
	return apperr.FromStore(err)
}

// SaveMember upserts a roster entry.
func (s *Store) SaveMember(ctx context.Context, m *Member) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO staff_members (id, provider_id, role, display_name, active, device_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			role = EXCLUDED.role,
			display_name = EXCLUDED.display_name,
			active = EXCLUDED.active,
			device_token = EXCLUDED.device_token`,
		string(m.ID), string(m.ProviderID), string(m.Role), m.DisplayName, m.Active, m.DeviceToken)
	return apperr.FromStore(err)
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role string
	if err := row.Scan(&m.ID, &m.ProviderID, &role, &m.DisplayName, &m.Active, &m.DeviceToken); err != nil {
		return nil, err
	}
	m.Role = types.Role(role)
	return &m, nil
}

type MemoryStore struct {
	mu        sync.RWMutex
	providers map[types.ID]*Provider
	members   map[types.ID]*Member
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[types.ID]*Provider),
		members:   make(map[types.ID]*Member),
	}
}

func (m *MemoryStore) SaveProvider(_ context.Context, p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if p.Hours != nil {
		h := *p.Hours
		cp.Hours = &h
	}
	m.providers[p.ID] = &cp
	return nil
}

func (m *MemoryStore) SaveMember(_ context.Context, mem *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mem
	m.members[mem.ID] = &cp
	return nil
}

func (m *MemoryStore) Provider(_ context.Context, id types.ID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, apperr.NotFound("provider %s", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Member(_ context.Context, id types.ID) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, apperr.NotFound("staff member %s", id)
	}
	cp := *mem
	return &cp, nil
}

func (m *MemoryStore) Members(_ context.Context, providerID types.ID, role types.Role) ([]*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Member
	for _, mem := range m.members {
		if mem.ProviderID != providerID || (role != "" && mem.Role != role) {
			continue
		}
		cp := *mem
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
