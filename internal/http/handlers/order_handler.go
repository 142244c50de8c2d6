// README: Order handlers for create/get/accept/reject/progress/cancel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"petmarket/internal/apperr"
	"petmarket/internal/http/middleware"
	"petmarket/internal/modules/order"
	"petmarket/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type orderItemReq struct {
	Name            string `json:"name" validate:"required,max=200"`
	Quantity        int    `json:"quantity" validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	UnitPrice       int64  `json:"unit_price" validate:"gte=0"`
}

type createOrderReq struct {
	CustomerID  string         `json:"customer_id"`
	ProviderID  string         `json:"provider_id" validate:"required"`
	OrderType   string         `json:"order_type" validate:"required,oneof=service product"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	Currency    string         `json:"currency" validate:"omitempty,len=3"`
	Items       []orderItemReq `json:"items" validate:"required,min=1,dive"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if !bind(c, &req, false) {
		return
	}
	actor := middleware.CallerActor(c)
	customerID := types.ID(req.CustomerID)
	if customerID == "" {
		customerID = actor.ID
	}
	if customerID != actor.ID && !actor.Is(types.RoleAdmin) {
		writeError(c, http.StatusForbidden, "cannot create orders for another customer")
		return
	}
	items := make([]order.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemInput{
			Name:            it.Name,
			Quantity:        it.Quantity,
			DurationMinutes: it.DurationMinutes,
			UnitPrice:       it.UnitPrice,
		})
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		Actor:       actor,
		CustomerID:  customerID,
		ProviderID:  types.ID(req.ProviderID),
		Type:        order.Type(req.OrderType),
		ScheduledAt: req.ScheduledAt,
		Items:       items,
		Currency:    req.Currency,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if !canView(middleware.CallerActor(c), o) {
		// Hide existence from unrelated callers.
		writeAppError(c, apperr.NotFound("order %s", id))
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type acceptOrderReq struct {
	StaffID *string `json:"staff_id" validate:"omitempty,min=1"`
}

func (h *OrderHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req acceptOrderReq
	if !bind(c, &req, true) {
		return
	}
	var staffID *types.ID
	if req.StaffID != nil {
		staffID = types.ID(*req.StaffID).Ptr()
	}
	o, err := h.order.Accept(c.Request.Context(), order.AcceptCommand{
		OrderID: id,
		Actor:   middleware.CallerActor(c),
		StaffID: staffID,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type reasonReq struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrderHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonReq
	if !bind(c, &req, true) {
		return
	}
	o, err := h.order.Reject(c.Request.Context(), order.RejectCommand{
		OrderID: id,
		Actor:   middleware.CallerActor(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type progressReq struct {
	NextStatus string `json:"next_status" validate:"required"`
	Reason     string `json:"reason" validate:"max=500"`
}

func (h *OrderHandler) Progress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req progressReq
	if !bind(c, &req, false) {
		return
	}
	next, ok := order.ParseStatus(req.NextStatus)
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown next_status")
		return
	}
	o, err := h.order.Progress(c.Request.Context(), order.ProgressCommand{
		OrderID: id,
		Actor:   middleware.CallerActor(c),
		Next:    next,
		Reason:  req.Reason,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonReq
	if !bind(c, &req, true) {
		return
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: id,
		Actor:   middleware.CallerActor(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func canView(actor types.Actor, o *order.Order) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleCustomer:
		return o.CustomerID == actor.ID
	case types.RoleServiceStaff, types.RoleDriver:
		return o.AssignedTo(actor.ID) || (actor.ProviderID != "" && o.ProviderID == actor.ProviderID)
	case types.RoleProvider:
		return actor.ProviderID == o.ProviderID
	}
	return false
}
