package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultSpec is the catalog offered when none is configured. The midday
// window is listed but closed.
const DefaultSpec = "08:00-10:00,10:00-12:00,!12:00-14:00,14:00-16:00,16:00-18:00"

// ErrEmptyCatalog is returned when a catalog has no slots at all.
var ErrEmptyCatalog = errors.New("slots: catalog is empty")

// Clock is a wall-clock time of day, in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM". A zero seconds suffix ("09:00:00") is accepted;
// anything else after the minutes is rejected.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hm := s
	if len(hm) == 8 && strings.HasSuffix(hm, ":00") {
		hm = hm[:5]
	}
	if len(hm) != 5 {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	tt, err := time.Parse("15:04", hm)
	if err != nil {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	return Clock(tt.Hour()*60 + tt.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at this clock time on day's calendar date, in day's
// location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// Slot is one bookable window of the day.
type Slot struct {
	Start     Clock
	End       Clock
	Available bool
}

// Label renders the slot the way the front end shows it, e.g. "08:00 - 10:00".
func (s Slot) Label() string {
	return s.Start.String() + " - " + s.End.String()
}

// Key is the compact form used for hold keys and config, e.g. "08:00-10:00".
func (s Slot) Key() string {
	return s.Start.String() + "-" + s.End.String()
}

// Window returns the slot's [start, end) interval on day.
func (s Slot) Window(day time.Time) (time.Time, time.Time) {
	return s.Start.On(day), s.End.On(day)
}

// Catalog is the ordered, non-overlapping set of slots that partitions the
// bookable part of a day.
type Catalog struct {
	slots []Slot
}

// NewCatalog validates slots and returns them as a Catalog.
func NewCatalog(slots []Slot) (Catalog, error) {
	if len(slots) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}
	for i, s := range slots {
		if s.End <= s.Start {
			return Catalog{}, fmt.Errorf("slots: %s ends before it starts", s.Key())
		}
		if i > 0 && s.Start < slots[i-1].End {
			return Catalog{}, fmt.Errorf("slots: %s overlaps or precedes %s", s.Key(), slots[i-1].Key())
		}
	}
	out := make([]Slot, len(slots))
	copy(out, slots)
	return Catalog{slots: out}, nil
}

// Parse reads a comma separated catalog such as
// "08:00-10:00,!12:00-14:00". A leading "!" marks a closed slot.
func Parse(spec string) (Catalog, error) {
	var slots []Slot
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		available := true
		if strings.HasPrefix(part, "!") {
			available = false
			part = strings.TrimSpace(part[1:])
		}
		startStr, endStr, ok := strings.Cut(part, "-")
		if !ok {
			return Catalog{}, fmt.Errorf("slots: %q is not START-END", part)
		}
		start, err := ParseClock(startStr)
		if err != nil {
			return Catalog{}, fmt.Errorf("slots: %w", err)
		}
		end, err := ParseClock(endStr)
		if err != nil {
			return Catalog{}, fmt.Errorf("slots: %w", err)
		}
		slots = append(slots, Slot{Start: start, End: end, Available: available})
	}
	return NewCatalog(slots)
}

// MustParse is Parse for static catalogs; it panics on error.
func MustParse(spec string) Catalog {
	c, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// Slots returns a copy of the catalog's slots in order.
func (c Catalog) Slots() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Lookup finds the slot with exactly these start and end times.
func (c Catalog) Lookup(start, end string) (Slot, bool) {
	s, err := ParseClock(start)
	if err != nil {
		return Slot{}, false
	}
	e, err := ParseClock(end)
	if err != nil {
		return Slot{}, false
	}
	for _, slot := range c.slots {
		if slot.Start == s && slot.End == e {
			return slot, true
		}
	}
	return Slot{}, false
}

// ByLabel accepts either Label or Key form.
func (c Catalog) ByLabel(label string) (Slot, bool) {
	start, end, ok := strings.Cut(label, "-")
	if !ok {
		return Slot{}, false
	}
	return c.Lookup(start, end)
}

// Bounds returns the start of the first slot and the end of the last one:
// the day's bookable window.
func (c Catalog) Bounds() (Clock, Clock) {
	if len(c.slots) == 0 {
		return 0, 0
	}
	return c.slots[0].Start, c.slots[len(c.slots)-1].End
}
