// README: Operating hours, bookings and derived hourly time slots.
package availability

import "time"

// Hours is a provider's daily operating window in whole hours. Close may be
// numerically smaller than Open, meaning the window runs past midnight.
// Open == Close is a 24-hour window.
type Hours struct {
	Open  int `json:"open"`
	Close int `json:"close"`
}

// DefaultHours applies to providers with no operating hours configured.
var DefaultHours = Hours{Open: 9, Close: 23}

func (h Hours) Valid() bool {
	return h.Open >= 0 && h.Open <= 23 && h.Close >= 0 && h.Close <= 23
}

// Wraps reports whether the window crosses midnight.
func (h Hours) Wraps() bool {
	return h.Close <= h.Open
}

// linear returns the window as [open, close) in hours from the operating
// date's midnight, so a 22-02 window is [22, 26).
func (h Hours) linear() (open, close int) {
	open, close = h.Open, h.Close
	if close <= open {
		close += 24
	}
	return open, close
}

// HoursOrDefault resolves a possibly unconfigured window.
func HoursOrDefault(h *Hours) Hours {
	if h == nil || !h.Valid() {
		return DefaultHours
	}
	return *h
}

// Booking is an existing commitment of a staff member.
type Booking struct {
	OrderID         string    `json:"order_id,omitempty"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (b Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// TimeSlot is one displayable hour of a staff member's operating day.
type TimeSlot struct {
	Hour      int       `json:"hour"`
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// Query is the full input of a slot computation.
type Query struct {
	Hours *Hours
	// Date is any instant on the operating date; its location is the provider's.
	Date     time.Time
	Bookings []Booking
	Now      time.Time
}

// Verdict explains why an interval can or cannot be booked.
type Verdict int

const (
	Free Verdict = iota
	OutsideHours
	Busy
	Past
)

func (v Verdict) String() string {
	switch v {
	case Free:
		return "free"
	case OutsideHours:
		return "outside_hours"
	case Busy:
		return "busy"
	case Past:
		return "past"
	}
	return "unknown"
}
