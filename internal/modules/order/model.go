// README: Order aggregate, items, and status definitions.
package order

import (
	"strings"
	"time"

	"petmarket/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus accepts the wire spellings of a status. "confirmed" is the
// same node as accepted.
func ParseStatus(v string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending":
		return StatusPending, true
	case "accepted", "confirmed":
		return StatusAccepted, true
	case "in_progress", "in-progress", "inprogress":
		return StatusInProgress, true
	case "completed", "complete":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

type Type string

const (
	TypeService Type = "service"
	TypeProduct Type = "product"
)

type Item struct {
	ID              types.ID    `json:"id"`
	Name            string      `json:"name"`
	Quantity        int         `json:"quantity,omitempty"`
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	UnitPrice       types.Money `json:"unit_price"`
}

type Order struct {
	ID              types.ID    `json:"id"`
	CustomerID      types.ID    `json:"customer_id"`
	ProviderID      types.ID    `json:"provider_id"`
	Type            Type        `json:"order_type"`
	Status          Status      `json:"status"`
	StatusVersion   int         `json:"status_version"`
	AssignedStaffID *types.ID   `json:"assigned_staff_id"`
	ScheduledAt     *time.Time  `json:"scheduled_at,omitempty"`
	Items           []Item      `json:"items"`
	TotalAmount     types.Money `json:"total_amount"`
	CreatedAt       time.Time   `json:"created_at"`
	AcceptedAt      *time.Time  `json:"accepted_at,omitempty"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CancelReason    *string     `json:"cancel_reason,omitempty"`
}

// DurationMinutes is the total occupied time of a service order.
func (o *Order) DurationMinutes() int {
	total := 0
	for _, it := range o.Items {
		total += it.DurationMinutes
	}
	return total
}

func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

func (o *Order) AssignedTo(staffID types.ID) bool {
	return o.AssignedStaffID != nil && *o.AssignedStaffID == staffID
}

// AwaitingDriver reports whether a product order still needs dispatch.
func (o *Order) AwaitingDriver() bool {
	return o.Type == TypeProduct && o.Status == StatusAccepted && o.AssignedStaffID == nil
}

type Event struct {
	ID         int64      `json:"id"`
	OrderID    types.ID   `json:"order_id"`
	ProviderID types.ID   `json:"provider_id"`
	FromStatus Status     `json:"from_status"`
	ToStatus   Status     `json:"to_status"`
	ActorType  types.Role `json:"actor_type"`
	ActorID    *types.ID  `json:"actor_id,omitempty"`
	StaffID    *types.ID  `json:"staff_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Transition is one compare-and-set commit of an order's status.
type Transition struct {
	OrderID types.ID
	From    Status
	To      Status
	Version int
	StaffID *types.ID
	Reason  *string
	At      time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
