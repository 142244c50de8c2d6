// README: Order service implements the role-checked state machine and persistence.
package order

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/clock"
	"petmarket/internal/logger"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

// Assigner validates bookings and binds staff to orders.
type Assigner interface {
	// ValidateBooking checks that an appointment lies within the provider's hours.
	ValidateBooking(ctx context.Context, providerID types.ID, start time.Time, durationMinutes int) error
	// Resolve confirms a staff member can take a service order. Callers hold
	// the staff lock while resolving and committing.
	Resolve(ctx context.Context, req AssignmentRequest) (Assignment, error)
	// ValidateDriver checks that driverID is an active driver of the provider.
	ValidateDriver(ctx context.Context, providerID, driverID types.ID) error
}

type AssignmentRequest struct {
	OrderID         types.ID
	ProviderID      types.ID
	StaffID         types.ID
	Start           time.Time
	DurationMinutes int
}

type Assignment struct {
	OrderID     types.ID
	ProviderID  types.ID
	StaffID     types.ID
	Start       time.Time
	End         time.Time
	ValidatedAt time.Time
}

// Dispatcher fulfils accepted product orders that have no driver yet.
type Dispatcher interface {
	Offer(ctx context.Context, o *Order) error
	Withdraw(ctx context.Context, orderID types.ID) error
}

// Publisher fans transition events out to other services.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Service struct {
	store      Repository
	assigner   Assigner
	dispatcher Dispatcher
	publisher  Publisher
	clock      clock.Clock
	log        *slog.Logger
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(store Repository, assigner Assigner, opts ...Option) *Service {
	s := &Service{store: store, assigner: assigner}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.Or(s.clock)
	s.log = logger.Or(s.log)
	return s
}

// SetDispatcher wires the delivery coordinator, which itself depends on the service.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

type ItemInput struct {
	Name            string
	Quantity        int
	DurationMinutes int
	UnitPrice       int64
}

type CreateCommand struct {
	Actor       types.Actor
	CustomerID  types.ID
	ProviderID  types.ID
	Type        Type
	ScheduledAt *time.Time
	Items       []ItemInput
	Currency    string
}

type AcceptCommand struct {
	OrderID types.ID
	Actor   types.Actor
	StaffID *types.ID
}

type RejectCommand struct {
	OrderID types.ID
	Actor   types.Actor
	Reason  string
}

type StartCommand struct {
	OrderID types.ID
	Actor   types.Actor
	StaffID types.ID
}

type CompleteCommand struct {
	OrderID types.ID
	Actor   types.Actor
	StaffID types.ID
}

type CancelCommand struct {
	OrderID types.ID
	Actor   types.Actor
	Reason  string
}

type ProgressCommand struct {
	OrderID types.ID
	Actor   types.Actor
	Next    Status
	Reason  string
}

type AssignDriverCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || cmd.ProviderID == "" {
		return nil, apperr.Validation("customer_id and provider_id are required")
	}
	if !cmd.Actor.Is(types.RoleAdmin) && cmd.Actor.ID != cmd.CustomerID {
		return nil, apperr.Unauthorized("orders can only be placed for the calling customer")
	}
	if len(cmd.Items) == 0 {
		return nil, apperr.Validation("an order needs at least one item")
	}
	currency := cmd.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}

	now := s.clock.Now()
	o := &Order{
		ID:          types.NewID(),
		CustomerID:  cmd.CustomerID,
		ProviderID:  cmd.ProviderID,
		Type:        cmd.Type,
		Status:      StatusPending,
		TotalAmount: types.Money{Currency: currency},
		CreatedAt:   now,
	}
	for _, in := range cmd.Items {
		if in.Name == "" || in.UnitPrice < 0 {
			return nil, apperr.Validation("item name is required and price must not be negative")
		}
		it := Item{ID: types.NewID(), Name: in.Name, UnitPrice: types.Money{Amount: in.UnitPrice, Currency: currency}}
		switch cmd.Type {
		case TypeService:
			if in.DurationMinutes <= 0 {
				return nil, apperr.Validation("service item %q needs a duration", in.Name)
			}
			it.DurationMinutes = in.DurationMinutes
			o.TotalAmount = o.TotalAmount.Add(it.UnitPrice)
		case TypeProduct:
			if in.Quantity <= 0 {
				return nil, apperr.Validation("product item %q needs a quantity", in.Name)
			}
			it.Quantity = in.Quantity
			o.TotalAmount = o.TotalAmount.Add(it.UnitPrice.Times(int64(in.Quantity)))
		default:
			return nil, apperr.Validation("order_type must be service or product")
		}
		o.Items = append(o.Items, it)
	}

	if cmd.Type == TypeService {
		if cmd.ScheduledAt == nil || cmd.ScheduledAt.IsZero() {
			return nil, apperr.Validation("scheduled_at is required for service orders")
		}
		at := *cmd.ScheduledAt
		o.ScheduledAt = &at
		if s.assigner != nil {
			if err := s.assigner.ValidateBooking(ctx, o.ProviderID, at, o.DurationMinutes()); err != nil {
				return nil, err
			}
		}
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.record(ctx, o, StatusNone, StatusPending, cmd.Actor, nil, now)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// Accept moves a pending order to accepted. Service orders need a staff member
// that the assigner confirms as free; product orders without a driver are
// handed to the dispatcher after the commit.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	if !cmd.Actor.Is(types.RoleAdmin, types.RoleProvider) {
		return nil, apperr.Unauthorized("%s may not accept orders", cmd.Actor.Role)
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeProvider(cmd.Actor, o); err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusAccepted) {
		return nil, apperr.InvalidTransition("cannot accept a %s order", o.Status)
	}
	var staffID types.ID
	if cmd.StaffID != nil {
		staffID = *cmd.StaffID
	}

	switch o.Type {
	case TypeService:
		if staffID == "" {
			return nil, apperr.Validation("staff_id is required to accept a service order")
		}
		if o.ScheduledAt == nil {
			return nil, apperr.Validation("service order has no scheduled_at")
		}
		err = s.store.LockStaff(ctx, staffID, func(ctx context.Context) error {
			if _, err := s.assigner.Resolve(ctx, AssignmentRequest{
				OrderID:         o.ID,
				ProviderID:      o.ProviderID,
				StaffID:         staffID,
				Start:           *o.ScheduledAt,
				DurationMinutes: o.DurationMinutes(),
			}); err != nil {
				return err
			}
			return s.commit(ctx, o, StatusAccepted, &staffID, nil, cmd.Actor)
		})
		if err != nil {
			return nil, err
		}

	case TypeProduct:
		var assign *types.ID
		if staffID != "" {
			if err := s.assigner.ValidateDriver(ctx, o.ProviderID, staffID); err != nil {
				return nil, err
			}
			assign = &staffID
		}
		if err := s.commit(ctx, o, StatusAccepted, assign, nil, cmd.Actor); err != nil {
			return nil, err
		}
		if assign == nil && s.dispatcher != nil {
			o.Status = StatusAccepted
			o.StatusVersion++
			if err := s.dispatcher.Offer(ctx, o); err != nil {
				// The dispatch sweep re-offers accepted orders that have no open request.
				s.log.Error("dispatch_offer_failed", "order_id", o.ID, "error", err)
			}
		}

	default:
		return nil, apperr.Validation("unknown order type %q", o.Type)
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*Order, error) {
	if !cmd.Actor.Is(types.RoleAdmin, types.RoleProvider) {
		return nil, apperr.Unauthorized("%s may not reject orders", cmd.Actor.Role)
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeProvider(cmd.Actor, o); err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, apperr.InvalidTransition("only pending orders can be rejected, order is %s", o.Status)
	}
	reason := cmd.Reason
	if reason == "" {
		reason = "rejected"
	}
	if err := s.commit(ctx, o, StatusCancelled, nil, &reason, cmd.Actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Order, error) {
	return s.advance(ctx, cmd.OrderID, cmd.Actor, cmd.StaffID, StatusInProgress)
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Order, error) {
	return s.advance(ctx, cmd.OrderID, cmd.Actor, cmd.StaffID, StatusCompleted)
}

// advance runs the staff-driven edges: only the assigned staff member may
// start or complete the work.
func (s *Service) advance(ctx context.Context, id types.ID, actor types.Actor, staffID types.ID, to Status) (*Order, error) {
	if !actor.Is(types.RoleServiceStaff, types.RoleDriver) {
		return nil, apperr.Unauthorized("%s may not move an order to %s", actor.Role, to)
	}
	if staffID == "" {
		staffID = actor.ID
	}
	if staffID != actor.ID {
		return nil, apperr.Unauthorized("staff may only act for themselves")
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, apperr.InvalidTransition("cannot move a %s order to %s", o.Status, to)
	}
	if !o.AssignedTo(staffID) {
		return nil, apperr.Unauthorized("order %s is not assigned to %s", o.ID, staffID)
	}
	if err := s.commit(ctx, o, to, nil, nil, actor); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	if !cmd.Actor.Is(types.RoleCustomer, types.RoleProvider, types.RoleAdmin) {
		return nil, apperr.Unauthorized("%s may not cancel orders", cmd.Actor.Role)
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	switch cmd.Actor.Role {
	case types.RoleCustomer:
		if o.CustomerID != cmd.Actor.ID {
			return nil, apperr.Unauthorized("customers may only cancel their own orders")
		}
	case types.RoleProvider:
		if err := authorizeProvider(cmd.Actor, o); err != nil {
			return nil, err
		}
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, apperr.InvalidTransition("cannot cancel a %s order", o.Status)
	}
	reason := cmd.Reason
	if reason == "" {
		reason = string(cmd.Actor.Role) + "_cancel"
	}
	if err := s.commit(ctx, o, StatusCancelled, nil, &reason, cmd.Actor); err != nil {
		return nil, err
	}
	if o.Type == TypeProduct && s.dispatcher != nil {
		if err := s.dispatcher.Withdraw(ctx, o.ID); err != nil {
			s.log.Error("dispatch_withdraw_failed", "order_id", o.ID, "error", err)
		}
	}
	return s.store.Get(ctx, o.ID)
}

// Progress applies a requested target status through the matching edge.
func (s *Service) Progress(ctx context.Context, cmd ProgressCommand) (*Order, error) {
	switch cmd.Next {
	case StatusInProgress:
		return s.Start(ctx, StartCommand{OrderID: cmd.OrderID, Actor: cmd.Actor, StaffID: cmd.Actor.ID})
	case StatusCompleted:
		return s.Complete(ctx, CompleteCommand{OrderID: cmd.OrderID, Actor: cmd.Actor, StaffID: cmd.Actor.ID})
	case StatusCancelled:
		return s.Cancel(ctx, CancelCommand{OrderID: cmd.OrderID, Actor: cmd.Actor, Reason: cmd.Reason})
	case StatusAccepted:
		return nil, apperr.Validation("use accept to move an order to accepted")
	}
	return nil, apperr.Validation("unsupported next_status %q", cmd.Next)
}

// AssignDriver binds the winning driver of a delivery request. The status
// stays accepted; the version bump makes a second assignment lose the CAS.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignDriverCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Type != TypeProduct {
		return nil, apperr.Validation("only product orders are dispatched to drivers")
	}
	if o.Status != StatusAccepted {
		return nil, apperr.InvalidTransition("cannot assign a driver to a %s order", o.Status)
	}
	if o.AssignedStaffID != nil {
		return nil, apperr.Conflict("order %s already has a driver", o.ID)
	}
	driver := cmd.DriverID
	ok, err := s.store.UpdateStatus(ctx, Transition{
		OrderID: o.ID,
		From:    StatusAccepted,
		To:      StatusAccepted,
		Version: o.StatusVersion,
		StaffID: &driver,
		At:      s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostRace(ctx, o)
	}
	s.record(ctx, o, StatusAccepted, StatusAccepted, types.Actor{ID: driver, Role: types.RoleDriver}, &driver, s.clock.Now())
	return s.store.Get(ctx, o.ID)
}

type DayQuery struct {
	ProviderID types.ID
	StaffID    types.ID
	From       time.Time
	To         time.Time
}

// ListForDay returns the orders scheduled in [From, To) for a provider or staff member.
func (s *Service) ListForDay(ctx context.Context, q DayQuery) ([]*Order, error) {
	if q.ProviderID == "" && q.StaffID == "" {
		return nil, apperr.Validation("provider or staff is required")
	}
	if !q.To.After(q.From) {
		return nil, apperr.Validation("empty time range")
	}
	return s.store.List(ctx, ListFilter{ProviderID: q.ProviderID, StaffID: q.StaffID, From: q.From, To: q.To})
}

// StaffBookings lists a staff member's committed appointments overlapping [from, to).
func (s *Service) StaffBookings(ctx context.Context, staffID types.ID, from, to time.Time) ([]availability.Booking, error) {
	return s.store.StaffBookings(ctx, staffID, from, to)
}

// AwaitingDriver lists accepted product orders without a driver.
func (s *Service) AwaitingDriver(ctx context.Context, limit int) ([]*Order, error) {
	return s.store.ListAwaitingDriver(ctx, limit)
}

func (s *Service) commit(ctx context.Context, o *Order, to Status, staffID *types.ID, reason *string, actor types.Actor) error {
	now := s.clock.Now()
	ok, err := s.store.UpdateStatus(ctx, Transition{
		OrderID: o.ID,
		From:    o.Status,
		To:      to,
		Version: o.StatusVersion,
		StaffID: staffID,
		Reason:  reason,
		At:      now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return s.lostRace(ctx, o)
	}
	s.record(ctx, o, o.Status, to, actor, staffID, now)
	return nil
}

// lostRace classifies a failed CAS: if the status moved on, the caller's edge
// no longer exists; otherwise someone else committed at the same status.
func (s *Service) lostRace(ctx context.Context, seen *Order) error {
	cur, err := s.store.Get(ctx, seen.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Conflict("order %s changed concurrently", seen.ID)
	}
	if cur.Status != seen.Status {
		return apperr.InvalidTransition("order %s is no longer %s (now %s)", seen.ID, seen.Status, cur.Status)
	}
	return apperr.Conflict("order %s changed concurrently", seen.ID)
}

func (s *Service) record(ctx context.Context, o *Order, from, to Status, actor types.Actor, staffID *types.ID, at time.Time) {
	var actorID *types.ID
	if actor.ID != "" {
		id := actor.ID
		actorID = &id
	}
	e := &Event{
		OrderID:    o.ID,
		ProviderID: o.ProviderID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor.Role,
		ActorID:    actorID,
		StaffID:    staffID,
		CreatedAt:  at,
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.Error("order_event_append_failed", "order_id", o.ID, "error", err)
	}
	s.log.Info("order_transition", "order_id", o.ID, "from", from, "to", to, "actor", actor.Role)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, "order."+string(to), e); err != nil {
			s.log.Error("order_event_publish_failed", "order_id", o.ID, "error", err)
		}
	}
}

func authorizeProvider(actor types.Actor, o *Order) error {
	if actor.Role == types.RoleProvider && actor.ProviderID != o.ProviderID {
		return apperr.Unauthorized("provider %s does not own order %s", actor.ProviderID, o.ID)
	}
	return nil
}
