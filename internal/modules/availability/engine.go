// README: Availability engine computes free/busy hour slots for a staff member's operating day.
package availability

import (
	"time"
)

const maxSlots = 24

type slotState struct {
	linear   int
	start    time.Time
	inWindow bool
	busy     bool
	past     bool
}

func (s slotState) available() bool {
	return s.inWindow && !s.busy && !s.past
}

// Slots returns the operating window of q.Date hour by hour, in window order.
// The sequence runs from open through the close hour inclusive (so 22-02
// yields 22,23,0,1,2); hours at or after close are never available.
func Slots(q Query) []TimeSlot {
	states := evaluate(q)
	out := make([]TimeSlot, len(states))
	for i, s := range states {
		out[i] = TimeSlot{Hour: s.linear % 24, Start: s.start, Available: s.available()}
	}
	return out
}

// AvailableHours is Slots filtered to the bookable hours.
func AvailableHours(q Query) []int {
	var hours []int
	for _, s := range Slots(q) {
		if s.Available {
			hours = append(hours, s.Hour)
		}
	}
	return hours
}

// Evaluate checks whether [start, start+durationMinutes) can be booked on the
// operating day of q.Date given q's bookings.
func Evaluate(q Query, start time.Time, durationMinutes int) Verdict {
	if !Fits(HoursOrDefault(q.Hours), q.Date, start, durationMinutes) {
		return OutsideHours
	}
	states := evaluate(q)
	if len(states) == 0 {
		return OutsideHours
	}
	first := states[0].linear
	day := midnight(q.Date)
	s := minutesFrom(day, start)
	from, to := floorDiv(s, 60), ceilDiv(s+durationMinutes, 60)
	for h := from; h < to; h++ {
		i := h - first
		if i < 0 || i >= len(states) || !states[i].inWindow {
			return OutsideHours
		}
		if states[i].busy {
			return Busy
		}
	}
	// Hour marking is coarse; a booking ending mid-hour must not admit a start
	// before it ends.
	end := s + durationMinutes
	for _, b := range q.Bookings {
		bs := minutesFrom(day, b.Start)
		if bs < end && s < bs+b.DurationMinutes {
			return Busy
		}
	}
	for h := from; h < to; h++ {
		if states[h-first].past {
			return Past
		}
	}
	return Free
}

// Fits reports whether the interval lies entirely inside the operating window
// of date, with minute precision.
func Fits(h Hours, date, start time.Time, durationMinutes int) bool {
	if durationMinutes < 0 {
		return false
	}
	open, close := h.linear()
	s := minutesFrom(midnight(date), start)
	return s >= open*60 && s+durationMinutes <= close*60
}

// OperatingDay returns the midnight of the operating date whose window t
// belongs to. Early-morning times of a window that wraps midnight belong to
// the previous date.
func OperatingDay(h Hours, t time.Time) time.Time {
	day := midnight(t)
	if h.Wraps() && t.Hour()*60+t.Minute() < h.Close*60 {
		return day.AddDate(0, 0, -1)
	}
	if h.Open == h.Close && t.Hour() < h.Open {
		return day.AddDate(0, 0, -1)
	}
	return day
}

// Occupied converts a booking that starts startMinutes after the operating
// date's midnight into the half-open hour range it blocks.
func Occupied(startMinutes, durationMinutes int) (from, to int) {
	from = floorDiv(startMinutes, 60)
	return from, from + ceilDiv(durationMinutes, 60)
}

func evaluate(q Query) []slotState {
	h := HoursOrDefault(q.Hours)
	open, close := h.linear()
	day := midnight(q.Date)

	var states []slotState
	for hr := open; hr <= close && len(states) < maxSlots; hr++ {
		states = append(states, slotState{
			linear:   hr,
			start:    time.Date(day.Year(), day.Month(), day.Day(), hr, 0, 0, 0, day.Location()),
			inWindow: hr < close,
		})
	}
	if len(states) == 0 {
		return nil
	}

	// Bookings that start before the window still block the hours they reach into.
	first, last := states[0].linear, states[len(states)-1].linear
	for _, b := range q.Bookings {
		from, to := Occupied(minutesFrom(day, b.Start), b.DurationMinutes)
		if from < first {
			from = first
		}
		if to > last+1 {
			to = last + 1
		}
		for hr := from; hr < to; hr++ {
			states[hr-first].busy = true
		}
	}

	if !q.Now.IsZero() {
		now := q.Now.In(day.Location())
		today := midnight(now)
		for i := range states {
			slotDay := midnight(states[i].start)
			switch {
			case slotDay.Before(today):
				states[i].past = true
			case slotDay.Equal(today) && states[i].start.Hour() <= now.Hour():
				states[i].past = true
			}
		}
	}
	return states
}

// minutesFrom is the wall-clock distance from day's midnight to t, in t's
// calendar expressed in day's location.
func minutesFrom(day, t time.Time) int {
	t = t.In(day.Location())
	tDay := midnight(t)
	days := daysBetween(day, tDay)
	return days*24*60 + t.Hour()*60 + t.Minute()
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
