// README: Delivery dispatch coordinator: offers product orders to drivers, first accept wins, expired offers move on.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/clock"
	"petmarket/internal/config"
	"petmarket/internal/logger"
	"petmarket/internal/modules/order"
	"petmarket/internal/modules/staff"
	"petmarket/internal/types"
)

// Orders is the slice of the order service the coordinator drives.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	AssignDriver(ctx context.Context, cmd order.AssignDriverCommand) (*order.Order, error)
	Start(ctx context.Context, cmd order.StartCommand) (*order.Order, error)
	AwaitingDriver(ctx context.Context, limit int) ([]*order.Order, error)
}

// Roster resolves the drivers of a provider.
type Roster interface {
	Drivers(ctx context.Context, providerID types.ID) ([]*staff.Member, error)
	Member(ctx context.Context, id types.ID) (*staff.Member, error)
}

const (
	sweepBatch = 100
	// claimGrace is how long Sweep leaves an accepted request alone while its
	// driver is being bound to the order.
	claimGrace = time.Minute
)

type Coordinator struct {
	store     Repository
	orders    Orders
	roster    Roster
	tracker   CandidateTracker
	notifier  Notifier
	publisher order.Publisher
	cfg       config.DispatchConfig
	clock     clock.Clock
	log       *slog.Logger
}

type Option func(*Coordinator)

func WithNotifier(n Notifier) Option { return func(c *Coordinator) { c.notifier = n } }
func WithPublisher(p order.Publisher) Option { return func(c *Coordinator) { c.publisher = p } }
func WithClock(cl clock.Clock) Option { return func(c *Coordinator) { c.clock = cl } }
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.log = l } }
func WithTracker(t CandidateTracker) Option { return func(c *Coordinator) { c.tracker = t } }

func NewCoordinator(store Repository, orders Orders, roster Roster, cfg config.DispatchConfig, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, orders: orders, roster: roster, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewMemoryTracker()
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.cfg.OfferTTL <= 0 {
		c.cfg.OfferTTL = 180 * time.Second
	}
	if c.cfg.TickSeconds <= 0 {
		c.cfg.TickSeconds = 5
	}
	c.clock = clock.Or(c.clock)
	c.log = logger.Or(c.log)
	return c
}

var _ order.Dispatcher = (*Coordinator)(nil)

// Offer opens a new delivery request for an accepted product order that has
// no driver. An order that already has an open request is left alone.
func (c *Coordinator) Offer(ctx context.Context, o *order.Order) error {
	_, err := c.offer(ctx, o)
	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}
	return err
}

func (c *Coordinator) offer(ctx context.Context, o *order.Order) (*DeliveryRequest, error) {
	if !o.AwaitingDriver() {
		return nil, apperr.Validation("order %s is not awaiting a driver", o.ID)
	}
	last, err := c.store.LatestAttempt(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if c.cfg.MaxAttempts > 0 && last >= c.cfg.MaxAttempts {
		c.log.Warn("dispatch_attempts_exhausted", "order_id", o.ID, "attempts", last)
		return nil, apperr.Conflict("order %s exhausted %d delivery attempts", o.ID, last)
	}

	candidate, err := c.pickCandidate(ctx, o)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	r := &DeliveryRequest{
		ID:               types.NewID(),
		OrderID:          o.ID,
		ProviderID:       o.ProviderID,
		CandidateStaffID: candidate,
		Status:           StatusOffered,
		Attempt:          last + 1,
		ExpiresAt:        now.Add(c.cfg.OfferTTL),
		CreatedAt:        now,
	}
	if err := c.store.Create(ctx, r); err != nil {
		return nil, err
	}
	if candidate != nil {
		if err := c.tracker.MarkTried(ctx, o.ID, *candidate); err != nil {
			c.log.Error("dispatch_mark_tried_failed", "order_id", o.ID, "error", err)
		}
		c.notify(ctx, *candidate, r)
	}
	c.log.Info("delivery_offered", "request_id", r.ID, "order_id", o.ID, "attempt", r.Attempt, "broadcast", r.Broadcast())
	c.publish(ctx, "delivery.offered", r)
	return r, nil
}

// pickCandidate walks the provider's online drivers in id order, skipping the
// ones already offered this order. Once everyone was tried the round starts
// over. With nobody online the request is broadcast.
func (c *Coordinator) pickCandidate(ctx context.Context, o *order.Order) (*types.ID, error) {
	if c.cfg.Mode == ModeBroadcast {
		return nil, nil
	}
	drivers, err := c.roster.Drivers(ctx, o.ProviderID)
	if err != nil {
		return nil, err
	}
	window := c.cfg.OnlineWindow
	if window <= 0 {
		window = time.Minute
	}
	online, err := c.tracker.Online(ctx, o.ProviderID, c.clock.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	var eligible []types.ID
	for _, d := range drivers {
		if online[d.ID] {
			eligible = append(eligible, d.ID)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i] < eligible[j] })

	tried, err := c.tracker.Tried(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range eligible {
		if !tried[id] {
			return &id, nil
		}
	}
	if err := c.tracker.Reset(ctx, o.ID); err != nil {
		return nil, err
	}
	first := eligible[0]
	return &first, nil
}

// Withdraw closes the open offer of an order that no longer needs a driver.
func (c *Coordinator) Withdraw(ctx context.Context, orderID types.ID) error {
	ok, err := c.store.Withdraw(ctx, orderID, c.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		c.log.Info("delivery_withdrawn", "order_id", orderID)
	}
	return c.tracker.Reset(ctx, orderID)
}

// AcceptRequest claims a delivery request for the calling driver. Exactly one
// concurrent caller wins; an offer past its deadline is expired and re-offered.
func (c *Coordinator) AcceptRequest(ctx context.Context, requestID types.ID, actor types.Actor) (*DeliveryRequest, error) {
	r, err := c.actionable(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if r.Expired(now) {
		c.expire(ctx, r, now)
		return nil, apperr.Conflict("delivery request %s expired at %s", r.ID, r.ExpiresAt.Format(time.RFC3339))
	}
	if !r.VisibleTo(actor.ID) {
		return nil, apperr.Unauthorized("delivery request %s is not offered to %s", r.ID, actor.ID)
	}
	ok, err := c.store.Accept(ctx, r.ID, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("delivery request %s was already resolved", r.ID)
	}

	driverID := actor.ID
	if _, err := c.orders.AssignDriver(ctx, order.AssignDriverCommand{OrderID: r.OrderID, DriverID: driverID}); err != nil {
		c.log.Error("delivery_assign_failed", "request_id", r.ID, "order_id", r.OrderID, "error", err)
		c.release(context.WithoutCancel(ctx), r, driverID)
		return nil, err
	}
	if c.cfg.StartOnDispatch {
		if _, err := c.orders.Start(ctx, order.StartCommand{OrderID: r.OrderID, Actor: actor, StaffID: driverID}); err != nil {
			c.log.Error("delivery_start_failed", "order_id", r.OrderID, "error", err)
		}
	}
	if err := c.tracker.Reset(ctx, r.OrderID); err != nil {
		c.log.Error("dispatch_reset_failed", "order_id", r.OrderID, "error", err)
	}

	r, err = c.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	c.log.Info("delivery_accepted", "request_id", r.ID, "order_id", r.OrderID, "driver_id", driverID)
	c.publish(ctx, "delivery.accepted", r)
	return r, nil
}

// release hands a claimed request back when the order would not take the
// driver. An order that stopped waiting for a driver loses the offer.
func (c *Coordinator) release(ctx context.Context, r *DeliveryRequest, driverID types.ID) {
	ok, err := c.store.Release(ctx, r.ID, driverID)
	if err != nil {
		c.log.Error("delivery_release_failed", "request_id", r.ID, "driver_id", driverID, "error", err)
		return
	}
	if !ok {
		return
	}
	c.log.Info("delivery_released", "request_id", r.ID, "order_id", r.OrderID, "driver_id", driverID)
	o, err := c.orders.Get(ctx, r.OrderID)
	if err != nil {
		c.log.Error("delivery_release_lookup_failed", "order_id", r.OrderID, "error", err)
		return
	}
	if !o.AwaitingDriver() {
		if err := c.Withdraw(ctx, r.OrderID); err != nil {
			c.log.Error("delivery_withdraw_failed", "order_id", r.OrderID, "error", err)
		}
	}
}

// RejectRequest declines a request. A targeted offer moves to the next
// driver; a broadcast offer stays open for the rest of the pool.
func (c *Coordinator) RejectRequest(ctx context.Context, requestID types.ID, actor types.Actor) (*DeliveryRequest, error) {
	r, err := c.actionable(ctx, requestID, actor)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if r.Expired(now) {
		c.expire(ctx, r, now)
		return nil, apperr.Conflict("delivery request %s expired at %s", r.ID, r.ExpiresAt.Format(time.RFC3339))
	}
	if !r.VisibleTo(actor.ID) {
		return nil, apperr.Unauthorized("delivery request %s is not offered to %s", r.ID, actor.ID)
	}

	if r.Broadcast() {
		ok, err := c.store.Decline(ctx, r.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Conflict("delivery request %s was already resolved", r.ID)
		}
		c.log.Info("delivery_declined", "request_id", r.ID, "driver_id", actor.ID)
		return c.store.Get(ctx, r.ID)
	}

	ok, err := c.store.Reject(ctx, r.ID, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("delivery request %s was already resolved", r.ID)
	}
	c.log.Info("delivery_rejected", "request_id", r.ID, "order_id", r.OrderID, "driver_id", actor.ID)
	c.publish(ctx, "delivery.rejected", r)
	c.reoffer(ctx, r.OrderID)
	return c.store.Get(ctx, r.ID)
}

// Expire closes an offer whose deadline passed and opens the next one.
func (c *Coordinator) Expire(ctx context.Context, requestID types.ID) error {
	r, err := c.store.Get(ctx, requestID)
	if err != nil {
		return err
	}
	now := c.clock.Now()
	if r.Status != StatusOffered {
		return apperr.Conflict("delivery request %s is %s", r.ID, r.Status)
	}
	if !r.Expired(now) {
		return apperr.Conflict("delivery request %s is open until %s", r.ID, r.ExpiresAt.Format(time.RFC3339))
	}
	c.expire(ctx, r, now)
	return nil
}

func (c *Coordinator) expire(ctx context.Context, r *DeliveryRequest, now time.Time) {
	ok, err := c.store.Expire(ctx, r.ID, now)
	if err != nil {
		c.log.Error("delivery_expire_failed", "request_id", r.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	c.log.Info("delivery_expired", "request_id", r.ID, "order_id", r.OrderID, "attempt", r.Attempt)
	c.publish(ctx, "delivery.expired", r)
	c.reoffer(ctx, r.OrderID)
}

func (c *Coordinator) reoffer(ctx context.Context, orderID types.ID) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		c.log.Error("delivery_reoffer_failed", "order_id", orderID, "error", err)
		return
	}
	if !o.AwaitingDriver() {
		return
	}
	if _, err := c.offer(ctx, o); err != nil && !errors.Is(err, apperr.ErrConflict) {
		c.log.Error("delivery_reoffer_failed", "order_id", orderID, "error", err)
	}
}

type PendingQuery struct {
	Actor      types.Actor
	ProviderID types.ID
	DriverID   types.ID
}

// Pending lists the open requests of a provider, or the ones a driver may
// act on. A driver poll counts as the driver being online.
func (c *Coordinator) Pending(ctx context.Context, q PendingQuery) ([]*DeliveryRequest, error) {
	now := c.clock.Now()
	switch {
	case q.DriverID != "":
		if q.Actor.ID != q.DriverID && !q.Actor.Is(types.RoleAdmin) {
			return nil, apperr.Unauthorized("drivers may only poll their own requests")
		}
		m, err := c.driver(ctx, q.DriverID)
		if err != nil {
			return nil, err
		}
		if err := c.tracker.Heartbeat(ctx, m.ProviderID, m.ID, now); err != nil {
			c.log.Error("dispatch_heartbeat_failed", "driver_id", m.ID, "error", err)
		}
		return c.store.ListOffered(ctx, Filter{ProviderID: m.ProviderID, DriverID: m.ID, Now: now})

	case q.ProviderID != "":
		if !q.Actor.Is(types.RoleAdmin, types.RoleProvider) {
			return nil, apperr.Unauthorized("%s may not list provider delivery requests", q.Actor.Role)
		}
		if q.Actor.Role == types.RoleProvider && q.Actor.ProviderID != q.ProviderID {
			return nil, apperr.Unauthorized("provider %s may not list requests of %s", q.Actor.ProviderID, q.ProviderID)
		}
		return c.store.ListOffered(ctx, Filter{ProviderID: q.ProviderID, Now: now})
	}
	return nil, apperr.Validation("provider or driver is required")
}

// Sweep expires overdue offers and re-offers accepted product orders that
// lost their open request. A request accepted within claimGrace still counts
// as open. It returns how many requests it expired.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	now := c.clock.Now()
	overdue, err := c.store.ListExpired(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	for _, r := range overdue {
		c.expire(ctx, r, now)
	}

	waiting, err := c.orders.AwaitingDriver(ctx, sweepBatch)
	if err != nil {
		return len(overdue), err
	}
	for _, o := range waiting {
		latest, err := c.store.Latest(ctx, o.ID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			c.log.Error("dispatch_sweep_lookup_failed", "order_id", o.ID, "error", err)
			continue
		}
		if latest != nil && claimed(latest, now) {
			continue
		}
		if _, err := c.offer(ctx, o); err != nil && !errors.Is(err, apperr.ErrConflict) {
			c.log.Error("dispatch_sweep_offer_failed", "order_id", o.ID, "error", err)
		}
	}
	return len(overdue), nil
}

func claimed(r *DeliveryRequest, now time.Time) bool {
	switch r.Status {
	case StatusOffered:
		return true
	case StatusAccepted:
		return r.ResolvedAt != nil && now.Sub(*r.ResolvedAt) < claimGrace
	}
	return false
}

// RunExpiryTicker sweeps every TickSeconds until ctx is cancelled.
func (c *Coordinator) RunExpiryTicker(ctx context.Context) {
	ticker := c.clock.NewTicker(time.Duration(c.cfg.TickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := c.Sweep(ctx); err != nil {
				c.log.Error("dispatch_sweep_failed", "error", err)
			}
		}
	}
}

func (c *Coordinator) actionable(ctx context.Context, requestID types.ID, actor types.Actor) (*DeliveryRequest, error) {
	if actor.Role != types.RoleDriver {
		return nil, apperr.Unauthorized("%s may not act on delivery requests", actor.Role)
	}
	r, err := c.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusOffered {
		return nil, apperr.Conflict("delivery request %s is %s", r.ID, r.Status)
	}
	m, err := c.driver(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if m.ProviderID != r.ProviderID {
		return nil, apperr.Unauthorized("driver %s does not deliver for %s", actor.ID, r.ProviderID)
	}
	return r, nil
}

func (c *Coordinator) driver(ctx context.Context, id types.ID) (*staff.Member, error) {
	m, err := c.roster.Member(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("%s is not a registered driver", id)
	}
	if err != nil {
		return nil, err
	}
	if !m.CanDeliver() {
		return nil, apperr.Unauthorized("%s is not an active driver", id)
	}
	return m, nil
}

func (c *Coordinator) notify(ctx context.Context, driverID types.ID, r *DeliveryRequest) {
	m, err := c.roster.Member(ctx, driverID)
	if err != nil || m.DeviceToken == nil || *m.DeviceToken == "" {
		return
	}
	if err := c.notifier.NotifyOffer(ctx, *m.DeviceToken, r); err != nil {
		c.log.Error("delivery_notify_failed", "request_id", r.ID, "driver_id", driverID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, key string, r *DeliveryRequest) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, key, r); err != nil {
		c.log.Error("delivery_event_publish_failed", "request_id", r.ID, "error", err)
	}
}
