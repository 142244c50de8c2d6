// README: Availability engine tests (window normalization, busy marking, today filter).
package availability

import (
	"reflect"
	"testing"
	"time"
)

var day = time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
}

func hoursOf(slots []TimeSlot) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.Hour
	}
	return out
}

// Provider 09-18 with one 10:00-11:00 booking: hour 10 is taken, 9 and 11..17 are free.
func TestSlotsBusyHour(t *testing.T) {
	slots := Slots(Query{
		Hours:    &Hours{Open: 9, Close: 18},
		Date:     day,
		Bookings: []Booking{{Start: at(10, 0), DurationMinutes: 60}},
	})
	want := []int{9, 11, 12, 13, 14, 15, 16, 17}
	got := AvailableHours(Query{
		Hours:    &Hours{Open: 9, Close: 18},
		Date:     day,
		Bookings: []Booking{{Start: at(10, 0), DurationMinutes: 60}},
	})
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("available = %v, want %v", got, want)
	}
	if slots[len(slots)-1].Hour != 18 || slots[len(slots)-1].Available {
		t.Fatalf("close hour must be listed and unavailable: %+v", slots[len(slots)-1])
	}
}

// A 22-02 window wraps midnight and is listed in window order.
func TestSlotsWrapMidnight(t *testing.T) {
	slots := Slots(Query{Hours: &Hours{Open: 22, Close: 2}, Date: day})
	if got, want := hoursOf(slots), []int{22, 23, 0, 1, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("hours = %v, want %v", got, want)
	}
	if !slots[2].Start.Equal(time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("hour 0 must be on the next date, got %v", slots[2].Start)
	}
	for i, s := range slots[:4] {
		if !s.Available {
			t.Errorf("slot %d (%d) should be available", i, s.Hour)
		}
	}
}

func TestSlotsCappedAtOneDay(t *testing.T) {
	slots := Slots(Query{Hours: &Hours{Open: 23, Close: 22}, Date: day})
	if len(slots) != 24 {
		t.Fatalf("expected 24 slots, got %d", len(slots))
	}
	seen := map[int]bool{}
	for _, s := range slots {
		if s.Hour > 23 || seen[s.Hour] {
			t.Fatalf("hour %d repeated or out of range", s.Hour)
		}
		seen[s.Hour] = true
	}

	full := Slots(Query{Hours: &Hours{Open: 6, Close: 6}, Date: day})
	if len(full) != 24 {
		t.Fatalf("24h window: expected 24 slots, got %d", len(full))
	}
	for _, s := range full {
		if !s.Available {
			t.Fatalf("24h window hour %d unavailable", s.Hour)
		}
	}
}

func TestSlotsDefaultHours(t *testing.T) {
	for _, h := range []*Hours{nil, {Open: 30, Close: -1}} {
		slots := Slots(Query{Hours: h, Date: day})
		if len(slots) == 0 {
			t.Fatal("unconfigured provider must not produce an empty set")
		}
		if slots[0].Hour != 9 || slots[len(slots)-1].Hour != 23 {
			t.Fatalf("default window = %d..%d", slots[0].Hour, slots[len(slots)-1].Hour)
		}
	}
}

func TestSlotsClipBookingBeforeWindow(t *testing.T) {
	// 07:30 for 150 minutes blocks hours 7..9; only 9 is inside the window.
	got := AvailableHours(Query{
		Hours:    &Hours{Open: 9, Close: 12},
		Date:     day,
		Bookings: []Booking{{Start: at(7, 30), DurationMinutes: 150}},
	})
	if want := []int{10, 11}; !reflect.DeepEqual(got, want) {
		t.Fatalf("available = %v, want %v", got, want)
	}

	// A booking from the previous evening reaching past midnight into a 22-02 window.
	prevEvening := day.Add(-2 * time.Hour) // 22:00 the day before
	got = AvailableHours(Query{
		Hours:    &Hours{Open: 0, Close: 4},
		Date:     day,
		Bookings: []Booking{{Start: prevEvening, DurationMinutes: 180}},
	})
	if want := []int{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("available = %v, want %v", got, want)
	}
}

func TestSlotsPartialHourRoundsUp(t *testing.T) {
	got := AvailableHours(Query{
		Hours:    &Hours{Open: 9, Close: 13},
		Date:     day,
		Bookings: []Booking{{Start: at(9, 30), DurationMinutes: 61}},
	})
	if want := []int{11, 12}; !reflect.DeepEqual(got, want) {
		t.Fatalf("available = %v, want %v", got, want)
	}
}

func TestSlotsTodayFilter(t *testing.T) {
	q := Query{Hours: &Hours{Open: 9, Close: 18}, Date: day, Now: at(13, 20)}
	got := AvailableHours(q)
	if want := []int{14, 15, 16, 17}; !reflect.DeepEqual(got, want) {
		t.Fatalf("available = %v, want %v", got, want)
	}

	q.Now = day.AddDate(0, 0, -1).Add(20 * time.Hour)
	if got := AvailableHours(q); len(got) != 9 {
		t.Fatalf("future date must not be filtered, got %v", got)
	}
	q.Now = day.AddDate(0, 0, 1).Add(8 * time.Hour)
	if got := AvailableHours(q); len(got) != 0 {
		t.Fatalf("past date must have no availability, got %v", got)
	}
}

func TestSlotsDeterministic(t *testing.T) {
	q := Query{
		Hours: &Hours{Open: 20, Close: 3},
		Date:  day,
		Bookings: []Booking{
			{Start: at(21, 15), DurationMinutes: 45},
			{Start: at(23, 50), DurationMinutes: 30},
		},
		Now: at(19, 0),
	}
	first := Slots(q)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(first, Slots(q)) {
			t.Fatal("identical input must yield identical slots")
		}
	}
	if want := []int{20, 22, 0, 1, 2}; !reflect.DeepEqual(AvailableHours(q), want) {
		t.Fatalf("available = %v, want %v", AvailableHours(q), want)
	}
}

func TestEvaluate(t *testing.T) {
	hours := &Hours{Open: 9, Close: 18}
	q := Query{Hours: hours, Date: day, Bookings: []Booking{{Start: at(10, 0), DurationMinutes: 60}}, Now: at(8, 0)}

	cases := []struct {
		name  string
		start time.Time
		dur   int
		want  Verdict
	}{
		{"free slot", at(12, 0), 60, Free},
		{"ends after close", at(17, 30), 45, OutsideHours},
		{"before open", at(8, 30), 30, OutsideHours},
		{"overlaps booking", at(9, 30), 60, Busy},
		{"exactly at booking", at(10, 0), 30, Busy},
		{"right after booking", at(11, 0), 60, Free},
		{"ends at close", at(17, 0), 60, Free},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(q, tc.start, tc.dur); got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}

	q.Now = at(12, 5)
	if got := Evaluate(q, at(12, 30), 30); got != Past {
		t.Fatalf("current hour must be past, got %v", got)
	}
}

func TestOperatingDay(t *testing.T) {
	wrap := Hours{Open: 22, Close: 2}
	if got := OperatingDay(wrap, at(1, 30)); !got.Equal(day.AddDate(0, 0, -1)) {
		t.Fatalf("01:30 belongs to the previous window, got %v", got)
	}
	if got := OperatingDay(wrap, at(23, 0)); !got.Equal(day) {
		t.Fatalf("23:00 belongs to today, got %v", got)
	}
	if got := OperatingDay(Hours{Open: 9, Close: 18}, at(1, 0)); !got.Equal(day) {
		t.Fatalf("non-wrapping window stays on its date, got %v", got)
	}
}

func TestOccupied(t *testing.T) {
	cases := []struct{ start, dur, from, to int }{
		{600, 60, 10, 11},
		{630, 60, 10, 11},
		{1050, 45, 17, 18},
		{-120, 180, -2, 1},
		{600, 0, 10, 10},
	}
	for _, tc := range cases {
		from, to := Occupied(tc.start, tc.dur)
		if from != tc.from || to != tc.to {
			t.Errorf("Occupied(%d,%d) = [%d,%d), want [%d,%d)", tc.start, tc.dur, from, to, tc.from, tc.to)
		}
	}
}
