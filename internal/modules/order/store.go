// README: Order store backed by PostgreSQL; status commits are compare-and-set on (status, status_version).
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"petmarket/internal/apperr"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

// Repository is the authoritative order record. UpdateStatus must be an atomic
// compare-and-set: it reports false when the order is no longer at
// (From, Version).
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	// LockStaff runs fn while holding an exclusive lock on the staff member's
	// commitments, so two orders cannot both pass the availability check.
	LockStaff(ctx context.Context, staffID types.ID, fn func(ctx context.Context) error) error
	StaffBookings(ctx context.Context, staffID types.ID, from, to time.Time) ([]availability.Booking, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	ListAwaitingDriver(ctx context.Context, limit int) ([]*Order, error)
}

// ListFilter selects orders scheduled (service) or created (product) in [From, To).
type ListFilter struct {
	ProviderID types.ID
	StaffID    types.ID
	From       time.Time
	To         time.Time
	Type       Type
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, customer_id, provider_id, order_type, status, status_version,
	assigned_staff_id, scheduled_at, total_amount, currency,
	created_at, accepted_at, started_at, completed_at, cancelled_at, cancellation_reason`

func (s *Store) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.FromStore(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, provider_id, order_type, status, status_version,
			assigned_staff_id, scheduled_at, duration_minutes, total_amount, currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.ProviderID),
		string(o.Type),
		string(o.Status),
		o.StatusVersion,
		toStringPtr(o.AssignedStaffID),
		o.ScheduledAt,
		o.DurationMinutes(),
		o.TotalAmount.Amount,
		o.TotalAmount.Currency,
		o.CreatedAt,
	)
	if err != nil {
		return apperr.FromStore(err)
	}
	for i, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, name, quantity, duration_minutes, unit_price, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(it.ID), string(o.ID), i, it.Name, it.Quantity, it.DurationMinutes,
			it.UnitPrice.Amount, it.UnitPrice.Currency,
		)
		if err != nil {
			return apperr.FromStore(err)
		}
	}
	return apperr.FromStore(tx.Commit(ctx))
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order %s", id)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if err := s.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			status_version = status_version + 1,
			assigned_staff_id = COALESCE($2, assigned_staff_id),
			accepted_at = CASE WHEN $1 = 'accepted' AND accepted_at IS NULL THEN $6::timestamptz ELSE accepted_at END,
			started_at = CASE WHEN $1 = 'in_progress' THEN $6::timestamptz ELSE started_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN $6::timestamptz ELSE completed_at END,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN $6::timestamptz ELSE cancelled_at END,
			cancellation_reason = COALESCE($7, cancellation_reason)
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(t.To),
		toStringPtr(t.StaffID),
		string(t.OrderID),
		string(t.From),
		t.Version,
		t.At,
		t.Reason,
	)
	if err != nil {
		return false, apperr.FromStore(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, staff_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.ActorType),
		toStringPtr(e.ActorID),
		toStringPtr(e.StaffID),
		e.CreatedAt,
	)
	return apperr.FromStore(err)
}

// LockStaff serializes commitments per staff member with a session-level
// advisory lock held on a dedicated connection for the duration of fn.
func (s *Store) LockStaff(ctx context.Context, staffID types.ID, fn func(ctx context.Context) error) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return apperr.FromStore(err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, string(staffID)); err != nil {
		return apperr.FromStore(err)
	}
	defer func() {
		// The unlock must run even when ctx is already cancelled.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, string(staffID))
	}()
	return fn(ctx)
}

func (s *Store) StaffBookings(ctx context.Context, staffID types.ID, from, to time.Time) ([]availability.Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, scheduled_at, duration_minutes
		FROM orders
		WHERE assigned_staff_id = $1
		  AND order_type = 'service'
		  AND status IN ('accepted', 'in_progress')
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at, id`,
		string(staffID), from, to,
	)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var b availability.Booking
		if err := rows.Scan(&b.OrderID, &b.Start, &b.DurationMinutes); err != nil {
			return nil, apperr.FromStore(err)
		}
		out = append(out, b)
	}
	return out, apperr.FromStore(rows.Err())
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR provider_id = $1)
		  AND ($2 = '' OR assigned_staff_id = $2)
		  AND ($3 = '' OR order_type = $3)
		  AND COALESCE(scheduled_at, created_at) >= $4
		  AND COALESCE(scheduled_at, created_at) < $5
		ORDER BY COALESCE(scheduled_at, created_at), id`,
		string(f.ProviderID), string(f.StaffID), string(f.Type), f.From, f.To,
	)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return s.collect(ctx, rows)
}

func (s *Store) ListAwaitingDriver(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_type = 'product' AND status = 'accepted' AND assigned_staff_id IS NULL
		ORDER BY accepted_at, id
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return s.collect(ctx, rows)
}

func (s *Store) collect(ctx context.Context, rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.FromStore(err)
	}
	rows.Close()
	if err := s.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[types.ID]*Order, len(orders))
	for i, o := range orders {
		ids[i] = string(o.ID)
		byID[o.ID] = o
	}
	rows, err := s.db.Query(ctx, `
		SELECT order_id, id, name, quantity, duration_minutes, unit_price, currency
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids,
	)
	if err != nil {
		return apperr.FromStore(err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID types.ID
		var it Item
		if err := rows.Scan(&orderID, &it.ID, &it.Name, &it.Quantity, &it.DurationMinutes, &it.UnitPrice.Amount, &it.UnitPrice.Currency); err != nil {
			return apperr.FromStore(err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return apperr.FromStore(rows.Err())
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var staffID *string
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProviderID, &o.Type, &o.Status, &o.StatusVersion,
		&staffID, &o.ScheduledAt, &o.TotalAmount.Amount, &o.TotalAmount.Currency,
		&o.CreatedAt, &o.AcceptedAt, &o.StartedAt, &o.CompletedAt, &o.CancelledAt, &o.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if staffID != nil {
		id := types.ID(*staffID)
		o.AssignedStaffID = &id
	}
	if o.TotalAmount.Currency == "" {
		o.TotalAmount.Currency = types.DefaultCurrency
	}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
