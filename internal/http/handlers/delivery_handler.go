// README: Delivery request handlers: driver actions and pending lists.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"petmarket/internal/http/middleware"
	"petmarket/internal/modules/dispatch"
)

type DeliveryHandler struct {
	dispatch *dispatch.Coordinator
}

func NewDeliveryHandler(c *dispatch.Coordinator) *DeliveryHandler {
	return &DeliveryHandler{dispatch: c}
}

type deliveryActionReq struct {
	Action string `json:"action" validate:"required"`
}

func (h *DeliveryHandler) Action(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req deliveryActionReq
	if !bind(c, &req, false) {
		return
	}
	action, ok := dispatch.ParseAction(req.Action)
	if !ok {
		writeError(c, http.StatusBadRequest, "action must be ACCEPT or REJECT")
		return
	}
	actor := middleware.CallerActor(c)
	var (
		r   *dispatch.DeliveryRequest
		err error
	)
	switch action {
	case dispatch.ActionAccept:
		r, err = h.dispatch.AcceptRequest(c.Request.Context(), id, actor)
	case dispatch.ActionReject:
		r, err = h.dispatch.RejectRequest(c.Request.Context(), id, actor)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DeliveryHandler) ProviderPending(c *gin.Context) {
	providerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.pending(c, dispatch.PendingQuery{Actor: middleware.CallerActor(c), ProviderID: providerID})
}

// DriverPending doubles as the driver's online heartbeat.
func (h *DeliveryHandler) DriverPending(c *gin.Context) {
	driverID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.pending(c, dispatch.PendingQuery{Actor: middleware.CallerActor(c), DriverID: driverID})
}

func (h *DeliveryHandler) pending(c *gin.Context, q dispatch.PendingQuery) {
	list, err := h.dispatch.Pending(c.Request.Context(), q)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if list == nil {
		list = []*dispatch.DeliveryRequest{}
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": list})
}
