package calendarview

import (
	"fmt"
	"io"
	"strings"
	"time"

	"availability-service/internal/availability"
)

// Cell is one day of the month grid. Padding cells before the first day
// have Day == 0.
type Cell struct {
	Day        int
	Date       string
	Status     availability.Status
	Past       bool
	Today      bool
	Selected   bool
	Selectable bool
}

// Grid lays out the shown month in Sunday-first weeks.
func (c *Controller) Grid() [][]Cell {
	c.mu.Lock()
	defer c.mu.Unlock()

	first := time.Date(c.state.Year, c.state.Month, 1, 0, 0, 0, 0, c.loc)
	today := c.today()
	var weeks [][]Cell
	week := make([]Cell, int(first.Weekday()))
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		date := day.Format(availability.DateLayout)
		week = append(week, Cell{
			Day:        day.Day(),
			Date:       date,
			Status:     c.statusOf(date),
			Past:       day.Before(today),
			Today:      day.Equal(today),
			Selected:   date == c.state.Date,
			Selectable: c.selectable(day),
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	if len(week) > 0 {
		weeks = append(weeks, append(week, make([]Cell, 7-len(week))...))
	}
	return weeks
}

var statusMarks = map[availability.Status]string{
	availability.Available: " ",
	availability.Limited:   "~",
	availability.Busy:      "x",
}

// Render writes the month as text: "~" limited, "x" busy, "-" past,
// brackets around the selected day.
func (c *Controller) Render(w io.Writer) error {
	s := c.State()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d  [%s]\n", s.Month, s.Year, s.Phase)
	b.WriteString(" Sun  Mon  Tue  Wed  Thu  Fri  Sat\n")
	for _, week := range c.Grid() {
		for _, cell := range week {
			if cell.Day == 0 {
				b.WriteString("     ")
				continue
			}
			mark := statusMarks[cell.Status]
			if cell.Past {
				mark = "-"
			}
			open, closeB := " ", " "
			if cell.Selected {
				open, closeB = "[", "]"
			}
			fmt.Fprintf(&b, "%s%2d%s%s", open, cell.Day, mark, closeB)
		}
		b.WriteString("\n")
	}
	if s.Notice.Message != "" {
		b.WriteString(s.Notice.Message + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
