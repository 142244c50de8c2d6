// README: Staff assignment resolver; binds staff to service orders against the availability engine.
package staff

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/clock"
	"petmarket/internal/logger"
	"petmarket/internal/modules/availability"
	"petmarket/internal/modules/order"
	"petmarket/internal/types"
)

// BookingSource lists a staff member's committed appointments overlapping [from, to).
type BookingSource interface {
	StaffBookings(ctx context.Context, staffID types.ID, from, to time.Time) ([]availability.Booking, error)
}

type Resolver struct {
	dir      Directory
	bookings BookingSource
	clock    clock.Clock
	loc      *time.Location
	log      *slog.Logger
}

// NewResolver builds a resolver. loc is the default time zone for providers
// without one of their own.
func NewResolver(dir Directory, bookings BookingSource, loc *time.Location, c clock.Clock, log *slog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{dir: dir, bookings: bookings, clock: clock.Or(c), loc: loc, log: logger.Or(log)}
}

var _ order.Assigner = (*Resolver)(nil)

// Hours returns the provider's operating window, defaulted when unset.
func (r *Resolver) Hours(ctx context.Context, providerID types.ID) (availability.Hours, error) {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return availability.Hours{}, err
	}
	return availability.HoursOrDefault(p.Hours), nil
}

// Availability returns the hour slots of staffID on the operating date of date.
func (r *Resolver) Availability(ctx context.Context, providerID, staffID types.ID, date time.Time) ([]availability.TimeSlot, error) {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.member(ctx, providerID, staffID); err != nil {
		return nil, err
	}
	loc := p.Location(r.loc)
	hours := availability.HoursOrDefault(p.Hours)
	d := date.In(loc)
	opDay := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)

	q, err := r.query(ctx, staffID, hours, opDay, "")
	if err != nil {
		return nil, err
	}
	if !p.IsOpen {
		slots := availability.Slots(q)
		for i := range slots {
			slots[i].Available = false
		}
		return slots, nil
	}
	return availability.Slots(q), nil
}

func (r *Resolver) ValidateBooking(ctx context.Context, providerID types.ID, start time.Time, durationMinutes int) error {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return err
	}
	if !p.IsOpen {
		return apperr.Validation("provider %s is closed", providerID)
	}
	hours := availability.HoursOrDefault(p.Hours)
	local := start.In(p.Location(r.loc))
	if !availability.Fits(hours, availability.OperatingDay(hours, local), local, durationMinutes) {
		return apperr.Validation("appointment %s +%dm is outside operating hours %02d-%02d",
			local.Format("15:04"), durationMinutes, hours.Open, hours.Close)
	}
	if !start.After(r.clock.Now()) {
		return apperr.Validation("appointment time is in the past")
	}
	return nil
}

// Resolve confirms the staff member belongs to the provider, the appointment
// fits the operating window and every hour it occupies is free.
func (r *Resolver) Resolve(ctx context.Context, req order.AssignmentRequest) (order.Assignment, error) {
	m, err := r.member(ctx, req.ProviderID, req.StaffID)
	if err != nil {
		return order.Assignment{}, err
	}
	if !m.CanServe() {
		return order.Assignment{}, apperr.Validation("staff %s (%s) cannot take service orders", m.ID, m.Role)
	}
	p, err := r.provider(ctx, req.ProviderID)
	if err != nil {
		return order.Assignment{}, err
	}
	if !p.IsOpen {
		return order.Assignment{}, apperr.Validation("provider %s is closed", p.ID)
	}

	hours := availability.HoursOrDefault(p.Hours)
	local := req.Start.In(p.Location(r.loc))
	opDay := availability.OperatingDay(hours, local)
	if !availability.Fits(hours, opDay, local, req.DurationMinutes) {
		return order.Assignment{}, apperr.Validation("appointment is outside operating hours %02d-%02d", hours.Open, hours.Close)
	}

	q, err := r.query(ctx, req.StaffID, hours, opDay, req.OrderID)
	if err != nil {
		return order.Assignment{}, err
	}
	switch v := availability.Evaluate(q, local, req.DurationMinutes); v {
	case availability.Free:
	case availability.OutsideHours:
		return order.Assignment{}, apperr.Validation("appointment is outside operating hours")
	default:
		r.log.Info("staff_assignment_rejected", "order_id", req.OrderID, "staff_id", req.StaffID, "verdict", v.String())
		return order.Assignment{}, apperr.Conflict("staff %s is not available at %s (%s)", req.StaffID, local.Format(time.RFC3339), v)
	}

	now := r.clock.Now()
	return order.Assignment{
		OrderID:     req.OrderID,
		ProviderID:  req.ProviderID,
		StaffID:     req.StaffID,
		Start:       req.Start,
		End:         req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		ValidatedAt: now,
	}, nil
}

func (r *Resolver) ValidateDriver(ctx context.Context, providerID, driverID types.ID) error {
	m, err := r.member(ctx, providerID, driverID)
	if err != nil {
		return err
	}
	if !m.CanDeliver() {
		return apperr.Validation("staff %s is not an active driver", driverID)
	}
	return nil
}

// Drivers lists the provider's active drivers in id order.
func (r *Resolver) Drivers(ctx context.Context, providerID types.ID) ([]*Member, error) {
	all, err := r.dir.Members(ctx, providerID, types.RoleDriver)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.CanDeliver() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Resolver) Member(ctx context.Context, id types.ID) (*Member, error) {
	return r.dir.Member(ctx, id)
}

// query collects the bookings touching the operating day. A wrapping window
// reaches into the next date, so two days are read.
func (r *Resolver) query(ctx context.Context, staffID types.ID, hours availability.Hours, opDay time.Time, exclude types.ID) (availability.Query, error) {
	from := opDay.Add(-24 * time.Hour)
	to := opDay.Add(48 * time.Hour)
	booked, err := r.bookings.StaffBookings(ctx, staffID, from, to)
	if err != nil {
		return availability.Query{}, err
	}
	kept := booked[:0]
	for _, b := range booked {
		if exclude != "" && b.OrderID == string(exclude) {
			continue
		}
		kept = append(kept, b)
	}
	h := hours
	return availability.Query{Hours: &h, Date: opDay, Bookings: kept, Now: r.clock.Now()}, nil
}

func (r *Resolver) provider(ctx context.Context, id types.ID) (*Provider, error) {
	if id == "" {
		return nil, apperr.Validation("provider id is required")
	}
	return r.dir.Provider(ctx, id)
}

// member looks up a roster entry; unknown or foreign staff are a validation
// failure rather than a missing resource.
func (r *Resolver) member(ctx context.Context, providerID, staffID types.ID) (*Member, error) {
	if staffID == "" {
		return nil, apperr.Validation("staff id is required")
	}
	m, err := r.dir.Member(ctx, staffID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("staff %s is not on the roster of %s", staffID, providerID)
	}
	if err != nil {
		return nil, err
	}
	if m.ProviderID != providerID {
		return nil, apperr.Validation("staff %s is not on the roster of %s", staffID, providerID)
	}
	return m, nil
}
