// README: Delivery requests offered to drivers for accepted product orders.
package dispatch

import (
	"strings"
	"time"

	"petmarket/internal/types"
)

type RequestStatus string

const (
	StatusOffered  RequestStatus = "offered"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
	StatusExpired  RequestStatus = "expired"
)

const (
	ModeRoundRobin = "round_robin"
	ModeBroadcast  = "broadcast"
)

type DeliveryRequest struct {
	ID         types.ID `json:"id"`
	OrderID    types.ID `json:"order_id"`
	ProviderID types.ID `json:"provider_id"`
	// CandidateStaffID is nil for a request broadcast to the provider's driver pool.
	CandidateStaffID *types.ID     `json:"candidate_staff_id"`
	Status           RequestStatus `json:"status"`
	Attempt          int           `json:"attempt"`
	ExpiresAt        time.Time     `json:"expires_at"`
	CreatedAt        time.Time     `json:"created_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy       *types.ID     `json:"resolved_by,omitempty"`
	DeclinedBy       []types.ID    `json:"declined_by,omitempty"`
}

func (r *DeliveryRequest) Broadcast() bool {
	return r.CandidateStaffID == nil
}

// Expired reports whether the offer window has closed at now.
func (r *DeliveryRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// VisibleTo reports whether driverID may act on the request.
func (r *DeliveryRequest) VisibleTo(driverID types.ID) bool {
	if r.CandidateStaffID != nil {
		return *r.CandidateStaffID == driverID
	}
	for _, d := range r.DeclinedBy {
		if d == driverID {
			return false
		}
	}
	return true
}

type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionReject Action = "REJECT"
)

func ParseAction(v string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "ACCEPT":
		return ActionAccept, true
	case "REJECT", "DECLINE":
		return ActionReject, true
	}
	return "", false
}
