// README: Delivery request store backed by PostgreSQL; every resolution is a compare-and-set on status.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"petmarket/internal/apperr"
	"petmarket/internal/types"
)

// Repository persists delivery requests. At most one request per order may be
// offered at a time; Create reports a conflict otherwise. The resolving
// methods report false when the request no longer matches their guard.
type Repository interface {
	Create(ctx context.Context, r *DeliveryRequest) error
	Get(ctx context.Context, id types.ID) (*DeliveryRequest, error)
	// Open returns the offered request of an order, or a not-found error.
	Open(ctx context.Context, orderID types.ID) (*DeliveryRequest, error)
	LatestAttempt(ctx context.Context, orderID types.ID) (int, error)
	// Latest returns the highest attempt of an order, or a not-found error.
	Latest(ctx context.Context, orderID types.ID) (*DeliveryRequest, error)
	// Accept moves offered → accepted while the offer is unexpired at now and
	// driverID is its candidate (or it is broadcast and driverID has not declined).
	Accept(ctx context.Context, id, driverID types.ID, now time.Time) (bool, error)
	// Reject moves an unexpired targeted offer → rejected for its candidate.
	Reject(ctx context.Context, id, driverID types.ID, now time.Time) (bool, error)
	// Release undoes driverID's Accept: the request is offered again with its
	// original deadline, or expired when the order already has another offer.
	Release(ctx context.Context, id, driverID types.ID) (bool, error)
	// Decline records driverID's refusal of a broadcast offer.
	Decline(ctx context.Context, id, driverID types.ID) (bool, error)
	// Expire moves offered → expired once expires_at <= now.
	Expire(ctx context.Context, id types.ID, now time.Time) (bool, error)
	// Withdraw expires the open offer of an order regardless of its deadline.
	Withdraw(ctx context.Context, orderID types.ID, now time.Time) (bool, error)
	ListOffered(ctx context.Context, f Filter) ([]*DeliveryRequest, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*DeliveryRequest, error)
}

// Filter selects offered requests that are still open at Now.
type Filter struct {
	ProviderID types.ID
	// DriverID limits the result to requests the driver may act on.
	DriverID types.ID
	Now      time.Time
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

const requestColumns = `
	id, order_id, provider_id, candidate_staff_id, status, attempt,
	expires_at, created_at, resolved_at, resolved_by, declined_by`

func (s *Store) Create(ctx context.Context, r *DeliveryRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delivery_requests (
			id, order_id, provider_id, candidate_staff_id, status, attempt, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(r.ID),
		string(r.OrderID),
		string(r.ProviderID),
		idPtr(r.CandidateStaffID),
		string(r.Status),
		r.Attempt,
		r.ExpiresAt,
		r.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict("order %s already has an open delivery request", r.OrderID)
	}
	return apperr.FromStore(err)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*DeliveryRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM delivery_requests WHERE id = $1`, string(id))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("delivery request %s", id)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return r, nil
}

func (s *Store) Open(ctx context.Context, orderID types.ID) (*DeliveryRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM delivery_requests
		WHERE order_id = $1 AND status = 'offered'`, string(orderID))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("open delivery request for order %s", orderID)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return r, nil
}

func (s *Store) LatestAttempt(ctx context.Context, orderID types.ID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt), 0) FROM delivery_requests WHERE order_id = $1`,
		string(orderID)).Scan(&n)
	return n, apperr.FromStore(err)
}

func (s *Store) Latest(ctx context.Context, orderID types.ID) (*DeliveryRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM delivery_requests
		WHERE order_id = $1
		ORDER BY attempt DESC
		LIMIT 1`, string(orderID))
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("delivery request for order %s", orderID)
	}
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return r, nil
}

func (s *Store) Accept(ctx context.Context, id, driverID types.ID, now time.Time) (bool, error) {
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'accepted', resolved_at = $3, resolved_by = $2
		WHERE id = $1
			AND status = 'offered'
			AND expires_at > $3
			AND (candidate_staff_id IS NULL OR candidate_staff_id = $2)
			AND NOT ($2 = ANY(declined_by))`,
		string(id), string(driverID), now)
}

func (s *Store) Reject(ctx context.Context, id, driverID types.ID, now time.Time) (bool, error) {
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'rejected', resolved_at = $3, resolved_by = $2
		WHERE id = $1 AND status = 'offered' AND expires_at > $3 AND candidate_staff_id = $2`,
		string(id), string(driverID), now)
}

func (s *Store) Release(ctx context.Context, id, driverID types.ID) (bool, error) {
	ok, err := s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'offered', resolved_at = NULL, resolved_by = NULL
		WHERE id = $1 AND status = 'accepted' AND resolved_by = $2`,
		string(id), string(driverID))
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return ok, err
	}
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', resolved_by = NULL
		WHERE id = $1 AND status = 'accepted' AND resolved_by = $2`,
		string(id), string(driverID))
}

func (s *Store) Decline(ctx context.Context, id, driverID types.ID) (bool, error) {
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET declined_by = array_append(declined_by, $2::text)
		WHERE id = $1
			AND status = 'offered'
			AND candidate_staff_id IS NULL
			AND NOT ($2::text = ANY(declined_by))`,
		string(id), string(driverID))
}

func (s *Store) Expire(ctx context.Context, id types.ID, now time.Time) (bool, error) {
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', resolved_at = $2
		WHERE id = $1 AND status = 'offered' AND expires_at <= $2`,
		string(id), now)
}

func (s *Store) Withdraw(ctx context.Context, orderID types.ID, now time.Time) (bool, error) {
	return s.exec(ctx, `
		UPDATE delivery_requests
		SET status = 'expired', resolved_at = $2
		WHERE order_id = $1 AND status = 'offered'`,
		string(orderID), now)
}

func (s *Store) ListOffered(ctx context.Context, f Filter) ([]*DeliveryRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+` FROM delivery_requests
		WHERE status = 'offered'
			AND expires_at > $1
			AND ($2::text = '' OR provider_id = $2::text)
			AND ($3::text = ''
				OR ((candidate_staff_id IS NULL AND NOT ($3::text = ANY(declined_by)))
					OR candidate_staff_id = $3::text))
		ORDER BY created_at, id`,
		f.Now, string(f.ProviderID), string(f.DriverID))
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return collect(rows)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]*DeliveryRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+` FROM delivery_requests
		WHERE status = 'offered' AND expires_at <= $1
		ORDER BY expires_at, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return collect(rows)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (bool, error) {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, apperr.FromStore(err)
	}
	return tag.RowsAffected() > 0, nil
}

func collect(rows pgx.Rows) ([]*DeliveryRequest, error) {
	defer rows.Close()
	var out []*DeliveryRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		out = append(out, r)
	}
	return out, apperr.FromStore(rows.Err())
}

func scanRequest(row pgx.Row) (*DeliveryRequest, error) {
	var (
		r          DeliveryRequest
		candidate  *string
		status     string
		resolvedBy *string
		declined   []string
	)
	if err := row.Scan(
		&r.ID, &r.OrderID, &r.ProviderID, &candidate, &status, &r.Attempt,
		&r.ExpiresAt, &r.CreatedAt, &r.ResolvedAt, &resolvedBy, &declined,
	); err != nil {
		return nil, err
	}
	r.Status = RequestStatus(status)
	if candidate != nil {
		id := types.ID(*candidate)
		r.CandidateStaffID = &id
	}
	if resolvedBy != nil {
		id := types.ID(*resolvedBy)
		r.ResolvedBy = &id
	}
	for _, d := range declined {
		r.DeclinedBy = append(r.DeclinedBy, types.ID(d))
	}
	return &r, nil
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
