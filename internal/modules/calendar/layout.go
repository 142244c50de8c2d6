// README: Calendar layout packs a day's appointments into collision-free columns for a grid view.
package calendar

import (
	"sort"
	"time"
)

const (
	DefaultRowHeight = 60.0
	DefaultMinHeight = 20.0
)

type Appointment struct {
	ID              string
	Start           time.Time
	DurationMinutes int
}

type Options struct {
	// DayStart is the instant of the grid's first row. Defaults to the
	// midnight of the earliest appointment.
	DayStart time.Time
	// RowHeight is the rendered height of one hour.
	RowHeight float64
	// MinHeight keeps very short appointments tappable. Defaults to
	// DefaultMinHeight.
	MinHeight float64
}

// Block is the placement of one appointment in the grid.
type Block struct {
	ID string `json:"id"`
	// Row is the hour bucket counted from DayStart; Hour is its clock hour.
	Row       int     `json:"row"`
	Hour      int     `json:"hour"`
	Column    int     `json:"column"`
	Columns   int     `json:"columns"`
	LeftPct   float64 `json:"left_pct"`
	WidthPct  float64 `json:"width_pct"`
	TopOffset float64 `json:"top_offset"`
	Top       float64 `json:"top"`
	Height    float64 `json:"height"`
}

func (b Block) Bottom() float64 { return b.Top + b.Height }

type placed struct {
	appt  Appointment
	start int
	block Block
}

// Layout assigns every appointment a column. Appointments sharing a start-hour
// bucket, or whose rendered blocks overlap vertically, never share a column;
// all blocks of a connected group get the same width. Ties on start time are
// ordered by id so the result is stable across refreshes.
func Layout(appts []Appointment, opt Options) []Block {
	if len(appts) == 0 {
		return nil
	}
	rowHeight := opt.RowHeight
	if rowHeight <= 0 {
		rowHeight = DefaultRowHeight
	}
	minHeight := opt.MinHeight
	if minHeight <= 0 {
		minHeight = DefaultMinHeight
	}

	items := make([]*placed, len(appts))
	for i, a := range appts {
		items[i] = &placed{appt: a}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].appt, items[j].appt
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ID < b.ID
	})

	dayStart := opt.DayStart
	if dayStart.IsZero() {
		s := items[0].appt.Start
		dayStart = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
	}

	for _, p := range items {
		p.start = int(p.appt.Start.Sub(dayStart) / time.Minute)
		row := floorDiv(p.start, 60)
		height := float64(p.appt.DurationMinutes) / 60 * rowHeight
		if height < minHeight {
			height = minHeight
		}
		p.block = Block{
			ID:        p.appt.ID,
			Row:       row,
			Hour:      dayStart.Add(time.Duration(row) * time.Hour).Hour(),
			TopOffset: float64(p.start-row*60) / 60 * rowHeight,
			Top:       float64(p.start) / 60 * rowHeight,
			Height:    height,
		}
	}

	n := len(items)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	conflicts := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if conflict(items[i].block, items[j].block) {
				conflicts[i] = append(conflicts[i], j)
				conflicts[j] = append(conflicts[j], i)
				parent[find(i)] = find(j)
			}
		}
	}

	// Greedy: items are in start order, so each takes the lowest column not
	// held by an earlier conflicting item.
	columns := make([]int, n)
	for i := range columns {
		columns[i] = -1
	}
	width := map[int]int{}
	for i := 0; i < n; i++ {
		used := map[int]bool{}
		for _, j := range conflicts[i] {
			if columns[j] >= 0 {
				used[columns[j]] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		columns[i] = c
		root := find(i)
		if c+1 > width[root] {
			width[root] = c + 1
		}
	}

	out := make([]Block, n)
	for i, p := range items {
		b := p.block
		b.Column = columns[i]
		b.Columns = width[find(i)]
		b.WidthPct = 100 / float64(b.Columns)
		b.LeftPct = float64(b.Column) * b.WidthPct
		out[i] = b
	}
	return out
}

func conflict(a, b Block) bool {
	if a.Row == b.Row {
		return true
	}
	return a.Top < b.Bottom() && b.Top < a.Bottom()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
