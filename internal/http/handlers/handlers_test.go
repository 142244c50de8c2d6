// README: Handler tests over real services on in-memory stores.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"petmarket/internal/clock"
	"petmarket/internal/config"
	"petmarket/internal/http/handlers"
	httpmiddleware "petmarket/internal/http/middleware"
	"petmarket/internal/infra"
	"petmarket/internal/logger"
	"petmarket/internal/modules/dispatch"
	"petmarket/internal/modules/order"
	"petmarket/internal/modules/staff"
	"petmarket/internal/types"
)

var testNow = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

// tokenVerifier reads tokens of the form uid|role|provider.
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 || parts[0] == "" {
		return nil, errors.New("bad token")
	}
	return &infra.FirebaseToken{
		UID:    parts[0],
		Claims: map[string]interface{}{"role": parts[1], "provider_id": parts[2]},
	}, nil
}

const (
	customerToken = "cust_1|customer|"
	otherToken    = "cust_2|customer|"
	shopToken     = "owner|provider|prov_1"
	foreignShop   = "owner2|provider|prov_2"
	groomerToken  = "groomer|service_staff|prov_1"
	driverToken   = "drv_1|driver|prov_1"
	driver2Token  = "drv_2|driver|prov_1"
)

type fixture struct {
	router *gin.Engine
	orders *order.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	fc := clock.NewFake(testNow)

	dir := staff.NewMemoryStore()
	mustNil(t, dir.SaveProvider(ctx, &staff.Provider{ID: "prov_1", IsOpen: true}))
	mustNil(t, dir.SaveProvider(ctx, &staff.Provider{ID: "prov_2", IsOpen: true}))
	mustNil(t, dir.SaveMember(ctx, &staff.Member{ID: "groomer", ProviderID: "prov_1", Role: types.RoleServiceStaff, Active: true}))
	mustNil(t, dir.SaveMember(ctx, &staff.Member{ID: "outsider", ProviderID: "prov_2", Role: types.RoleServiceStaff, Active: true}))
	mustNil(t, dir.SaveMember(ctx, &staff.Member{ID: "drv_1", ProviderID: "prov_1", Role: types.RoleDriver, Active: true}))
	mustNil(t, dir.SaveMember(ctx, &staff.Member{ID: "drv_2", ProviderID: "prov_1", Role: types.RoleDriver, Active: true}))

	orderStore := order.NewMemoryStore()
	resolver := staff.NewResolver(dir, orderStore, time.UTC, fc, logger.Discard())
	orders := order.NewService(orderStore, resolver, order.WithClock(fc), order.WithLogger(logger.Discard()))
	coord := dispatch.NewCoordinator(dispatch.NewMemoryStore(), orders, resolver, config.DispatchConfig{
		Mode:         dispatch.ModeRoundRobin,
		OfferTTL:     3 * time.Minute,
		TickSeconds:  5,
		OnlineWindow: time.Minute,
		MaxAttempts:  5,
	}, dispatch.WithClock(fc), dispatch.WithLogger(logger.Discard()))
	orders.SetDispatcher(coord)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", httpmiddleware.Auth(tokenVerifier{}))

	oh := handlers.NewOrderHandler(orders)
	api.POST("/orders", oh.Create)
	api.GET("/orders/:id", oh.Get)
	api.POST("/orders/:id/accept", oh.Accept)
	api.POST("/orders/:id/reject", oh.Reject)
	api.POST("/orders/:id/progress", oh.Progress)
	api.POST("/orders/:id/cancel", oh.Cancel)

	sh := handlers.NewScheduleHandler(orders, resolver, config.ScheduleConfig{Location: time.UTC, RowHeight: 60, MinHeight: 20}, fc)
	api.GET("/providers/:id/hours", sh.Hours)
	api.GET("/providers/:id/staff/:staff_id/availability", sh.StaffAvailability)
	api.GET("/providers/:id/calendar", sh.Calendar)
	api.GET("/staff/:id/bookings", sh.StaffBookings)

	dh := handlers.NewDeliveryHandler(coord)
	api.POST("/delivery-requests/:id/action", dh.Action)
	api.GET("/providers/:id/delivery-requests", dh.ProviderPending)
	api.GET("/drivers/:id/delivery-requests", dh.DriverPending)

	return &fixture{router: r, orders: orders}
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func expect(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func serviceOrderBody(hour int) map[string]any {
	return map[string]any{
		"provider_id":  "prov_1",
		"order_type":   "service",
		"scheduled_at": time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC),
		"items":        []map[string]any{{"name": "bath", "duration_minutes": 60, "unit_price": 800}},
	}
}

func (f *fixture) createService(t *testing.T, hour int) *order.Order {
	t.Helper()
	w := f.do(http.MethodPost, "/api/orders", serviceOrderBody(hour), customerToken)
	expect(t, w, http.StatusCreated)
	return decode[*order.Order](t, w)
}

func TestCreate_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	expect(t, f.do(http.MethodPost, "/api/orders", serviceOrderBody(10), ""), http.StatusUnauthorized)
	expect(t, f.do(http.MethodPost, "/api/orders", serviceOrderBody(10), "garbage"), http.StatusUnauthorized)
}

func TestCreate_WrongCustomerID(t *testing.T) {
	f := newFixture(t)
	body := serviceOrderBody(10)
	body["customer_id"] = "cust_2"
	expect(t, f.do(http.MethodPost, "/api/orders", body, customerToken), http.StatusForbidden)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]map[string]any{
		"no items":       {"provider_id": "prov_1", "order_type": "product", "items": []any{}},
		"bad type":       {"provider_id": "prov_1", "order_type": "rental", "items": []map[string]any{{"name": "x", "quantity": 1}}},
		"negative price": {"provider_id": "prov_1", "order_type": "product", "items": []map[string]any{{"name": "x", "quantity": 1, "unit_price": -1}}},
		"no schedule":    {"provider_id": "prov_1", "order_type": "service", "items": []map[string]any{{"name": "bath", "duration_minutes": 30}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			expect(t, f.do(http.MethodPost, "/api/orders", body, customerToken), http.StatusBadRequest)
		})
	}
	expect(t, f.do(http.MethodPost, "/api/orders", serviceOrderBody(23), customerToken), http.StatusBadRequest)
}

func TestServiceOrderFlow(t *testing.T) {
	f := newFixture(t)
	o := f.createService(t, 10)
	if o.Status != order.StatusPending || o.TotalAmount.Amount != 800 {
		t.Fatalf("created %+v", o)
	}

	w := f.do(http.MethodGet, "/api/providers/prov_1/staff/groomer/availability?date=2026-03-02", nil, customerToken)
	expect(t, w, http.StatusOK)
	before := decode[struct {
		Available []int `json:"available_hours"`
	}](t, w)
	if len(before.Available) == 0 || before.Available[0] != 9 {
		t.Fatalf("available before accept = %v", before.Available)
	}

	path := "/api/orders/" + string(o.ID)
	expect(t, f.do(http.MethodPost, path+"/accept", nil, shopToken), http.StatusBadRequest)
	expect(t, f.do(http.MethodPost, path+"/accept", map[string]any{"staff_id": "outsider"}, shopToken), http.StatusBadRequest)
	expect(t, f.do(http.MethodPost, path+"/accept", map[string]any{"staff_id": "groomer"}, foreignShop), http.StatusForbidden)
	w = f.do(http.MethodPost, path+"/accept", map[string]any{"staff_id": "groomer"}, shopToken)
	expect(t, w, http.StatusOK)
	if got := decode[*order.Order](t, w); got.Status != order.StatusAccepted || !got.AssignedTo("groomer") {
		t.Fatalf("accepted %+v", got)
	}
	expect(t, f.do(http.MethodPost, path+"/accept", map[string]any{"staff_id": "groomer"}, shopToken), http.StatusConflict)

	w = f.do(http.MethodGet, "/api/providers/prov_1/staff/groomer/availability?date=2026-03-02", nil, customerToken)
	after := decode[struct {
		Available []int `json:"available_hours"`
	}](t, w)
	for _, h := range after.Available {
		if h == 10 {
			t.Fatalf("hour 10 still available: %v", after.Available)
		}
	}

	expect(t, f.do(http.MethodPost, path+"/progress", map[string]any{"next_status": "in_progress"}, customerToken), http.StatusForbidden)
	expect(t, f.do(http.MethodPost, path+"/progress", map[string]any{"next_status": "teleported"}, groomerToken), http.StatusBadRequest)
	expect(t, f.do(http.MethodPost, path+"/progress", map[string]any{"next_status": "in_progress"}, groomerToken), http.StatusOK)
	w = f.do(http.MethodPost, path+"/progress", map[string]any{"next_status": "completed"}, groomerToken)
	expect(t, w, http.StatusOK)
	if got := decode[*order.Order](t, w); got.Status != order.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	expect(t, f.do(http.MethodPost, path+"/cancel", nil, customerToken), http.StatusConflict)
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	o := f.createService(t, 11)
	path := "/api/orders/" + string(o.ID)
	expect(t, f.do(http.MethodGet, path, nil, customerToken), http.StatusOK)
	expect(t, f.do(http.MethodGet, path, nil, shopToken), http.StatusOK)
	expect(t, f.do(http.MethodGet, path, nil, otherToken), http.StatusNotFound)
	expect(t, f.do(http.MethodGet, path, nil, foreignShop), http.StatusNotFound)
	expect(t, f.do(http.MethodGet, "/api/orders/missing_order", nil, customerToken), http.StatusNotFound)
	expect(t, f.do(http.MethodGet, "/api/orders/bad%20id", nil, customerToken), http.StatusBadRequest)
}

func TestRejectAndCancel(t *testing.T) {
	f := newFixture(t)
	o := f.createService(t, 12)
	path := "/api/orders/" + string(o.ID)
	expect(t, f.do(http.MethodPost, path+"/reject", nil, customerToken), http.StatusForbidden)
	w := f.do(http.MethodPost, path+"/reject", map[string]any{"reason": "fully booked"}, shopToken)
	expect(t, w, http.StatusOK)
	if got := decode[*order.Order](t, w); got.Status != order.StatusCancelled || got.CancelReason == nil || *got.CancelReason != "fully booked" {
		t.Fatalf("rejected %+v", got)
	}

	o = f.createService(t, 13)
	w = f.do(http.MethodPost, "/api/orders/"+string(o.ID)+"/cancel", nil, customerToken)
	expect(t, w, http.StatusOK)
	if got := decode[*order.Order](t, w); got.CancelReason == nil || *got.CancelReason != "customer_cancel" {
		t.Fatalf("cancelled %+v", got)
	}
}

func TestHoursAndCalendar(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/providers/prov_1/hours", nil, customerToken)
	expect(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w); got["open"] != float64(9) || got["close"] != float64(23) {
		t.Fatalf("hours = %v", got)
	}
	expect(t, f.do(http.MethodGet, "/api/providers/nope/hours", nil, customerToken), http.StatusNotFound)

	a := f.createService(t, 10)
	b := f.createService(t, 10)
	expect(t, f.do(http.MethodGet, "/api/providers/prov_1/calendar?date=2026-03-02", nil, customerToken), http.StatusForbidden)
	expect(t, f.do(http.MethodGet, "/api/providers/prov_1/calendar?date=03-02-2026", nil, shopToken), http.StatusBadRequest)

	w = f.do(http.MethodGet, "/api/providers/prov_1/calendar?date=2026-03-02", nil, shopToken)
	expect(t, w, http.StatusOK)
	cal := decode[struct {
		Entries []struct {
			ID      string `json:"id"`
			Column  int    `json:"column"`
			Columns int    `json:"columns"`
		} `json:"entries"`
	}](t, w)
	if len(cal.Entries) != 2 {
		t.Fatalf("entries = %+v", cal.Entries)
	}
	if cal.Entries[0].Column == cal.Entries[1].Column || cal.Entries[0].Columns != 2 {
		t.Fatalf("same-hour appointments share a column: %+v", cal.Entries)
	}
	ids := map[string]bool{cal.Entries[0].ID: true, cal.Entries[1].ID: true}
	if !ids[string(a.ID)] || !ids[string(b.ID)] {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestStaffBookings(t *testing.T) {
	f := newFixture(t)
	o := f.createService(t, 14)
	expect(t, f.do(http.MethodPost, "/api/orders/"+string(o.ID)+"/accept", map[string]any{"staff_id": "groomer"}, shopToken), http.StatusOK)

	expect(t, f.do(http.MethodGet, "/api/staff/groomer/bookings?date=2026-03-02", nil, customerToken), http.StatusForbidden)
	expect(t, f.do(http.MethodGet, "/api/staff/groomer/bookings?date=2026-03-02", nil, foreignShop), http.StatusForbidden)
	w := f.do(http.MethodGet, "/api/staff/groomer/bookings?date=2026-03-02", nil, groomerToken)
	expect(t, w, http.StatusOK)
	got := decode[struct {
		Bookings []struct {
			OrderID string `json:"order_id"`
		} `json:"bookings"`
	}](t, w)
	if len(got.Bookings) != 1 || got.Bookings[0].OrderID != string(o.ID) {
		t.Fatalf("bookings = %+v", got.Bookings)
	}
}

func TestDeliveryFlow(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/orders", map[string]any{
		"provider_id": "prov_1",
		"order_type":  "product",
		"items":       []map[string]any{{"name": "kibble", "quantity": 2, "unit_price": 250}},
	}, customerToken)
	expect(t, w, http.StatusCreated)
	o := decode[*order.Order](t, w)
	expect(t, f.do(http.MethodPost, "/api/orders/"+string(o.ID)+"/accept", nil, shopToken), http.StatusOK)

	expect(t, f.do(http.MethodGet, "/api/drivers/drv_1/delivery-requests", nil, driver2Token), http.StatusForbidden)
	expect(t, f.do(http.MethodGet, "/api/providers/prov_1/delivery-requests", nil, customerToken), http.StatusForbidden)

	type pending struct {
		Requests []*dispatch.DeliveryRequest `json:"requests"`
	}
	w = f.do(http.MethodGet, "/api/drivers/drv_1/delivery-requests", nil, driverToken)
	expect(t, w, http.StatusOK)
	list := decode[pending](t, w)
	if len(list.Requests) != 1 || list.Requests[0].OrderID != o.ID || !list.Requests[0].Broadcast() {
		t.Fatalf("pending = %+v", list.Requests)
	}
	reqPath := "/api/delivery-requests/" + string(list.Requests[0].ID) + "/action"

	expect(t, f.do(http.MethodPost, reqPath, map[string]any{"action": "WAVE"}, driverToken), http.StatusBadRequest)
	expect(t, f.do(http.MethodPost, reqPath, map[string]any{"action": "ACCEPT"}, shopToken), http.StatusForbidden)
	w = f.do(http.MethodPost, reqPath, map[string]any{"action": "ACCEPT"}, driverToken)
	expect(t, w, http.StatusOK)
	if got := decode[*dispatch.DeliveryRequest](t, w); got.Status != dispatch.StatusAccepted {
		t.Fatalf("request = %+v", got)
	}
	expect(t, f.do(http.MethodPost, reqPath, map[string]any{"action": "ACCEPT"}, driver2Token), http.StatusConflict)

	got, err := f.orders.Get(context.Background(), o.ID)
	mustNil(t, err)
	if !got.AssignedTo("drv_1") {
		t.Fatalf("order driver = %v", got.AssignedStaffID)
	}

	w = f.do(http.MethodGet, "/api/providers/prov_1/delivery-requests", nil, shopToken)
	expect(t, w, http.StatusOK)
	if rest := decode[pending](t, w); len(rest.Requests) != 0 {
		t.Fatalf("still pending: %+v", rest.Requests)
	}
}
