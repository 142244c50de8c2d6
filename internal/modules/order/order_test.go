// README: Order service tests (flow, permissions and invalid requests).
package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"petmarket/internal/apperr"
	"petmarket/internal/clock"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

var (
	admin    = types.Actor{ID: "admin_1", Role: types.RoleAdmin}
	shop     = types.Actor{ID: "shop_owner", Role: types.RoleProvider, ProviderID: "prov_1"}
	customer = types.Actor{ID: "cust_1", Role: types.RoleCustomer}
	groomer  = types.Actor{ID: "staff_1", Role: types.RoleServiceStaff, ProviderID: "prov_1"}
	driver   = types.Actor{ID: "drv_1", Role: types.RoleDriver, ProviderID: "prov_1"}
)

// fakeAssigner accepts staff on a fixed roster and rejects overlapping bookings
// using the repository's committed orders.
type fakeAssigner struct {
	store  Repository
	roster map[types.ID]types.Role
	hours  availability.Hours
}

func newFakeAssigner(store Repository) *fakeAssigner {
	return &fakeAssigner{
		store: store,
		roster: map[types.ID]types.Role{
			"staff_1": types.RoleServiceStaff,
			"staff_2": types.RoleServiceStaff,
			"drv_1":   types.RoleDriver,
		},
		hours: availability.Hours{Open: 9, Close: 18},
	}
}

func (f *fakeAssigner) ValidateBooking(_ context.Context, _ types.ID, start time.Time, dur int) error {
	if !availability.Fits(f.hours, availability.OperatingDay(f.hours, start), start, dur) {
		return apperr.Validation("outside operating hours")
	}
	return nil
}

func (f *fakeAssigner) Resolve(ctx context.Context, req AssignmentRequest) (Assignment, error) {
	if f.roster[req.StaffID] != types.RoleServiceStaff {
		return Assignment{}, apperr.Validation("staff %s not on roster", req.StaffID)
	}
	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	booked, err := f.store.StaffBookings(ctx, req.StaffID, req.Start, end)
	if err != nil {
		return Assignment{}, err
	}
	if len(booked) > 0 {
		return Assignment{}, apperr.Conflict("staff %s busy", req.StaffID)
	}
	return Assignment{OrderID: req.OrderID, ProviderID: req.ProviderID, StaffID: req.StaffID, Start: req.Start, End: end}, nil
}

func (f *fakeAssigner) ValidateDriver(_ context.Context, _ types.ID, id types.ID) error {
	if f.roster[id] != types.RoleDriver {
		return apperr.Validation("%s is not a driver", id)
	}
	return nil
}

type fakeDispatcher struct {
	offered   []types.ID
	withdrawn []types.ID
}

func (d *fakeDispatcher) Offer(_ context.Context, o *Order) error {
	d.offered = append(d.offered, o.ID)
	return nil
}

func (d *fakeDispatcher) Withdraw(_ context.Context, id types.ID) error {
	d.withdrawn = append(d.withdrawn, id)
	return nil
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.keys = append(p.keys, key)
	return nil
}

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) *time.Time {
	t := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &t
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeAssigner, *fakeDispatcher) {
	t.Helper()
	store := NewMemoryStore()
	assigner := newFakeAssigner(store)
	disp := &fakeDispatcher{}
	svc := NewService(store, assigner, WithClock(clock.NewFake(day.Add(8*time.Hour))))
	svc.SetDispatcher(disp)
	return svc, store, assigner, disp
}

func createService(t *testing.T, svc *Service, start *time.Time, minutes ...int) *Order {
	t.Helper()
	var items []ItemInput
	for _, m := range minutes {
		items = append(items, ItemInput{Name: "grooming", DurationMinutes: m, UnitPrice: 800})
	}
	o, err := svc.Create(context.Background(), CreateCommand{
		Actor:       customer,
		CustomerID:  customer.ID,
		ProviderID:  "prov_1",
		Type:        TypeService,
		ScheduledAt: start,
		Items:       items,
	})
	if err != nil {
		t.Fatalf("create service order: %v", err)
	}
	return o
}

func createProduct(t *testing.T, svc *Service) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateCommand{
		Actor:      customer,
		CustomerID: customer.ID,
		ProviderID: "prov_1",
		Type:       TypeProduct,
		Items:      []ItemInput{{Name: "kibble", Quantity: 2, UnitPrice: 450}},
	})
	if err != nil {
		t.Fatalf("create product order: %v", err)
	}
	return o
}

func staff(id types.ID) *types.ID { return &id }

// TestCanTransition verifies the state machine transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		// no cancel once work started
		{StatusInProgress, StatusCancelled, false},
		// terminal states have no outgoing edges
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		// skipping states
		{StatusPending, StatusInProgress, false},
		{StatusPending, StatusCompleted, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusAccepted, StatusAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"pending":     StatusPending,
		"CONFIRMED":   StatusAccepted,
		"accepted":    StatusAccepted,
		"in-progress": StatusInProgress,
		"completed":   StatusCompleted,
		"canceled":    StatusCancelled,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Errorf("ParseStatus(%q) = %s, %v; want %s", in, got, ok, want)
		}
	}
	if _, ok := ParseStatus("paid"); ok {
		t.Errorf("expected unknown status to fail")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  CreateCommand
		want error
	}{
		{"no items", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: TypeProduct}, apperr.ErrValidation},
		{"service without time", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: TypeService,
			Items: []ItemInput{{Name: "bath", DurationMinutes: 30}}}, apperr.ErrValidation},
		{"service without duration", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: TypeService,
			ScheduledAt: at(10, 0), Items: []ItemInput{{Name: "bath"}}}, apperr.ErrValidation},
		{"product without quantity", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: TypeProduct,
			Items: []ItemInput{{Name: "toy"}}}, apperr.ErrValidation},
		{"outside hours", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: TypeService,
			ScheduledAt: at(17, 30), Items: []ItemInput{{Name: "bath", DurationMinutes: 45}}}, apperr.ErrValidation},
		{"unknown type", CreateCommand{Actor: customer, CustomerID: "cust_1", ProviderID: "prov_1", Type: "rental",
			Items: []ItemInput{{Name: "crate", Quantity: 1}}}, apperr.ErrValidation},
		{"other customer", CreateCommand{Actor: customer, CustomerID: "cust_2", ProviderID: "prov_1", Type: TypeProduct,
			Items: []ItemInput{{Name: "toy", Quantity: 1}}}, apperr.ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateComputesTotal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	o, err := svc.Create(context.Background(), CreateCommand{
		Actor:      customer,
		CustomerID: customer.ID,
		ProviderID: "prov_1",
		Type:       TypeProduct,
		Items: []ItemInput{
			{Name: "kibble", Quantity: 2, UnitPrice: 450},
			{Name: "leash", Quantity: 1, UnitPrice: 300},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != StatusPending || o.StatusVersion != 0 {
		t.Fatalf("unexpected initial state %s v%d", o.Status, o.StatusVersion)
	}
	if o.TotalAmount.Amount != 1200 || o.TotalAmount.Currency != types.DefaultCurrency {
		t.Fatalf("unexpected total %+v", o.TotalAmount)
	}
}

// TestServiceOrderFlow walks pending → accepted → in_progress → completed.
func TestServiceOrderFlow(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	pub := &recordingPublisher{}
	svc.publisher = pub
	ctx := context.Background()

	o := createService(t, svc, at(10, 0), 30, 30)
	if o.DurationMinutes() != 60 {
		t.Fatalf("expected 60 minutes, got %d", o.DurationMinutes())
	}

	o, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: shop, StaffID: staff("staff_1")})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.Status != StatusAccepted || !o.AssignedTo("staff_1") || o.AcceptedAt == nil {
		t.Fatalf("unexpected order after accept: %+v", o)
	}

	o, err = svc.Start(ctx, StartCommand{OrderID: o.ID, Actor: groomer, StaffID: "staff_1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if o.Status != StatusInProgress || o.StartedAt == nil {
		t.Fatalf("unexpected order after start: %+v", o)
	}

	o, err = svc.Complete(ctx, CompleteCommand{OrderID: o.ID, Actor: groomer, StaffID: "staff_1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if o.Status != StatusCompleted || o.CompletedAt == nil || o.StatusVersion != 3 {
		t.Fatalf("unexpected order after complete: %+v", o)
	}

	events := store.Events(o.ID)
	want := []Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.ToStatus != want[i] {
			t.Errorf("event %d: to=%s want %s", i, e.ToStatus, want[i])
		}
	}
	if len(pub.keys) != 4 || pub.keys[3] != "order.completed" {
		t.Fatalf("unexpected published keys %v", pub.keys)
	}
}

func TestAcceptServiceRequiresStaff(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	o := createService(t, svc, at(10, 0), 60)

	_, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin, StaffID: staff("staff_9")})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for unknown staff, got %v", err)
	}
	got, _ := store.Get(ctx, o.ID)
	if got.Status != StatusPending || got.AssignedStaffID != nil || got.StatusVersion != 0 {
		t.Fatalf("failed accept must leave the order unchanged: %+v", got)
	}
}

// TestAcceptTwice covers the second accept of the same order.
func TestAcceptTwice(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o := createService(t, svc, at(11, 0), 60)

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin, StaffID: staff("staff_1")}); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin, StaffID: staff("staff_2")})
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestAcceptRejectsDoubleBooking(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	first := createService(t, svc, at(13, 0), 60)
	second := createService(t, svc, at(13, 30), 30)

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: first.ID, Actor: admin, StaffID: staff("staff_1")}); err != nil {
		t.Fatalf("accept first: %v", err)
	}
	_, err := svc.Accept(ctx, AcceptCommand{OrderID: second.ID, Actor: admin, StaffID: staff("staff_1")})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: second.ID, Actor: admin, StaffID: staff("staff_2")}); err != nil {
		t.Fatalf("accept with other staff: %v", err)
	}
}

func TestPermissions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o := createService(t, svc, at(14, 0), 60)

	otherShop := types.Actor{ID: "other_owner", Role: types.RoleProvider, ProviderID: "prov_2"}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: otherShop, StaffID: staff("staff_1")}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("foreign provider accept: expected unauthorized, got %v", err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: customer, StaffID: staff("staff_1")}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("customer accept: expected unauthorized, got %v", err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: shop, StaffID: staff("staff_1")}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	other := types.Actor{ID: "staff_2", Role: types.RoleServiceStaff, ProviderID: "prov_1"}
	if _, err := svc.Start(ctx, StartCommand{OrderID: o.ID, Actor: other, StaffID: "staff_2"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("unassigned staff start: expected unauthorized, got %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{OrderID: o.ID, Actor: other, StaffID: "staff_1"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("impersonated start: expected unauthorized, got %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{OrderID: o.ID, Actor: shop, StaffID: "staff_1"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("provider start: expected unauthorized, got %v", err)
	}

	stranger := types.Actor{ID: "cust_2", Role: types.RoleCustomer}
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: stranger}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("foreign customer cancel: expected unauthorized, got %v", err)
	}
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: groomer}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("staff cancel: expected unauthorized, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	o := createService(t, svc, at(15, 0), 60)
	o, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: customer})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCancelled || o.CancelReason == nil || *o.CancelReason != "customer_cancel" {
		t.Fatalf("unexpected cancelled order: %+v", o)
	}
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: customer}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second cancel: expected invalid transition, got %v", err)
	}

	started := createService(t, svc, at(16, 0), 60)
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: started.ID, Actor: admin, StaffID: staff("staff_1")}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Start(ctx, StartCommand{OrderID: started.ID, Actor: groomer}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: started.ID, Actor: admin}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("cancel in progress: expected invalid transition, got %v", err)
	}
}

func TestReject(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	o := createProduct(t, svc)

	o, err := svc.Reject(ctx, RejectCommand{OrderID: o.ID, Actor: shop})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if o.Status != StatusCancelled || *o.CancelReason != "rejected" {
		t.Fatalf("unexpected rejected order: %+v", o)
	}
	if _, err := svc.Reject(ctx, RejectCommand{OrderID: o.ID, Actor: shop}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestProductAcceptTriggersDispatch(t *testing.T) {
	svc, _, _, disp := newTestService(t)
	ctx := context.Background()
	o := createProduct(t, svc)

	o, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: shop})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !o.AwaitingDriver() {
		t.Fatalf("expected order awaiting driver: %+v", o)
	}
	if len(disp.offered) != 1 || disp.offered[0] != o.ID {
		t.Fatalf("expected one dispatch offer, got %v", disp.offered)
	}

	o, err = svc.AssignDriver(ctx, AssignDriverCommand{OrderID: o.ID, DriverID: "drv_1"})
	if err != nil {
		t.Fatalf("assign driver: %v", err)
	}
	if o.Status != StatusAccepted || !o.AssignedTo("drv_1") {
		t.Fatalf("unexpected order after assign: %+v", o)
	}
	if _, err := svc.AssignDriver(ctx, AssignDriverCommand{OrderID: o.ID, DriverID: "drv_2"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second assign: expected conflict, got %v", err)
	}

	if _, err := svc.Progress(ctx, ProgressCommand{OrderID: o.ID, Actor: driver, Next: StatusInProgress}); err != nil {
		t.Fatalf("progress to in_progress: %v", err)
	}
	o, err = svc.Progress(ctx, ProgressCommand{OrderID: o.ID, Actor: driver, Next: StatusCompleted})
	if err != nil {
		t.Fatalf("progress to completed: %v", err)
	}
	if o.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", o.Status)
	}
}

func TestProductAcceptWithDriver(t *testing.T) {
	svc, _, _, disp := newTestService(t)
	ctx := context.Background()

	o := createProduct(t, svc)
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin, StaffID: staff("staff_1")}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("non-driver: expected validation error, got %v", err)
	}
	o, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: admin, StaffID: staff("drv_1")})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !o.AssignedTo("drv_1") || len(disp.offered) != 0 {
		t.Fatalf("expected direct assignment without dispatch: %+v offers=%v", o, disp.offered)
	}
}

func TestCancelProductWithdrawsOffer(t *testing.T) {
	svc, _, _, disp := newTestService(t)
	ctx := context.Background()
	o := createProduct(t, svc)
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, Actor: shop}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: customer, Reason: "changed mind"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(disp.withdrawn) != 1 || disp.withdrawn[0] != o.ID {
		t.Fatalf("expected withdraw, got %v", disp.withdrawn)
	}
	if _, err := svc.AssignDriver(ctx, AssignDriverCommand{OrderID: o.ID, DriverID: "drv_1"}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("assign after cancel: expected invalid transition, got %v", err)
	}
}

func TestProgressRejectsAccepted(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	o := createProduct(t, svc)
	_, err := svc.Progress(context.Background(), ProgressCommand{OrderID: o.ID, Actor: admin, Next: StatusAccepted})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListForDay(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	late := createService(t, svc, at(12, 0), 30)
	early := createService(t, svc, at(9, 0), 30)
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: late.ID, Actor: admin, StaffID: staff("staff_1")}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	all, err := svc.ListForDay(ctx, DayQuery{ProviderID: "prov_1", From: day, To: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != early.ID || all[1].ID != late.ID {
		t.Fatalf("unexpected provider day: %v", all)
	}

	mine, err := svc.ListForDay(ctx, DayQuery{StaffID: "staff_1", From: day, To: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("list staff: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != late.ID {
		t.Fatalf("unexpected staff day: %v", mine)
	}

	if _, err := svc.ListForDay(ctx, DayQuery{From: day, To: day.Add(time.Hour)}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error without provider, got %v", err)
	}
}

// TestStaleCommitClassification covers the CAS failure paths: a status that
// moved on is an invalid transition, a version bump at the same status is a conflict.
func TestStaleCommitClassification(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	o := createProduct(t, svc)
	stale := *o
	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: customer}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.commit(ctx, &stale, StatusAccepted, nil, nil, admin); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	p := createProduct(t, svc)
	staleP := *p
	ok, err := store.UpdateStatus(ctx, Transition{OrderID: p.ID, From: StatusPending, To: StatusPending, Version: 0, At: day})
	if err != nil || !ok {
		t.Fatalf("bump version: ok=%v err=%v", ok, err)
	}
	if err := svc.commit(ctx, &staleP, StatusAccepted, nil, nil, admin); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
