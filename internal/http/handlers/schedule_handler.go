// README: Operating hours, staff bookings, hour availability and calendar layout handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"petmarket/internal/apperr"
	"petmarket/internal/clock"
	"petmarket/internal/config"
	"petmarket/internal/http/middleware"
	"petmarket/internal/modules/calendar"
	"petmarket/internal/modules/order"
	"petmarket/internal/modules/staff"
	"petmarket/internal/types"
)

type ScheduleHandler struct {
	order    *order.Service
	resolver *staff.Resolver
	cfg      config.ScheduleConfig
	clock    clock.Clock
}

func NewScheduleHandler(orderSvc *order.Service, resolver *staff.Resolver, cfg config.ScheduleConfig, c clock.Clock) *ScheduleHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ScheduleHandler{order: orderSvc, resolver: resolver, cfg: cfg, clock: clock.Or(c)}
}

func (h *ScheduleHandler) Hours(c *gin.Context) {
	providerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	hours, err := h.resolver.Hours(c.Request.Context(), providerID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"provider_id": providerID, "open": hours.Open, "close": hours.Close})
}

// StaffBookings lists the committed appointments of a staff member on a date.
// Only the staff member, their provider and admins may see them.
func (h *ScheduleHandler) StaffBookings(c *gin.Context) {
	staffID, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := queryDate(c, h.cfg.Location, h.clock.Now())
	if !ok {
		return
	}
	ctx := c.Request.Context()
	m, err := h.resolver.Member(ctx, staffID)
	if err != nil {
		writeAppError(c, err)
		return
	}
	actor := middleware.CallerActor(c)
	if !sameProvider(actor, m.ProviderID) && actor.ID != staffID {
		writeAppError(c, apperr.Unauthorized("may not read bookings of %s", staffID))
		return
	}
	from, to := dayBounds(date)
	bookings, err := h.order.StaffBookings(ctx, staffID, from, to)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"staff_id": staffID, "date": from.Format(dateLayout), "bookings": bookings})
}

func (h *ScheduleHandler) StaffAvailability(c *gin.Context) {
	providerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	staffID, ok := pathID(c, "staff_id")
	if !ok {
		return
	}
	date, ok := queryDate(c, h.cfg.Location, h.clock.Now())
	if !ok {
		return
	}
	slots, err := h.resolver.Availability(c.Request.Context(), providerID, staffID, date)
	if err != nil {
		writeAppError(c, err)
		return
	}
	available := make([]int, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			available = append(available, s.Hour)
		}
	}
	writeJSON(c, http.StatusOK, gin.H{
		"provider_id":     providerID,
		"staff_id":        staffID,
		"date":            date.Format(dateLayout),
		"slots":           slots,
		"available_hours": available,
	})
}

type calendarEntry struct {
	calendar.Block
	Order *order.Order `json:"order"`
}

// Calendar lays out a provider's (or one staff member's) scheduled orders of a
// date into non-overlapping columns.
func (h *ScheduleHandler) Calendar(c *gin.Context) {
	providerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor := middleware.CallerActor(c)
	ownOnly := actor.Is(types.RoleServiceStaff) && actor.ProviderID == providerID
	if !sameProvider(actor, providerID) && !ownOnly {
		writeAppError(c, apperr.Unauthorized("may not read the calendar of %s", providerID))
		return
	}
	date, ok := queryDate(c, h.cfg.Location, h.clock.Now())
	if !ok {
		return
	}
	q := order.DayQuery{ProviderID: providerID}
	if v := c.Query("staff_id"); v != "" {
		if !types.ValidID(v) {
			writeError(c, http.StatusBadRequest, "invalid staff_id")
			return
		}
		q.StaffID = types.ID(v)
	}
	if ownOnly {
		q.StaffID = actor.ID
	}
	q.From, q.To = dayBounds(date)

	orders, err := h.order.ListForDay(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, err)
		return
	}
	byID := make(map[string]*order.Order, len(orders))
	appts := make([]calendar.Appointment, 0, len(orders))
	for _, o := range orders {
		if o.ScheduledAt == nil || o.Status == order.StatusCancelled {
			continue
		}
		byID[string(o.ID)] = o
		appts = append(appts, calendar.Appointment{
			ID:              string(o.ID),
			Start:           o.ScheduledAt.In(h.cfg.Location),
			DurationMinutes: o.DurationMinutes(),
		})
	}
	blocks := calendar.Layout(appts, calendar.Options{
		DayStart:  q.From,
		RowHeight: h.cfg.RowHeight,
		MinHeight: h.cfg.MinHeight,
	})
	entries := make([]calendarEntry, 0, len(blocks))
	for _, b := range blocks {
		entries = append(entries, calendarEntry{Block: b, Order: byID[b.ID]})
	}
	writeJSON(c, http.StatusOK, gin.H{"provider_id": providerID, "date": q.From.Format(dateLayout), "entries": entries})
}

func sameProvider(actor types.Actor, providerID types.ID) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleProvider:
		return actor.ProviderID == providerID
	}
	return false
}
