// Package availability turns busy blocks from the calendar into per-day and
// per-slot status for the booking calendar.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"availability-service/internal/gateway"
	"availability-service/internal/slots"
)

// DateLayout is the ISO date used for map keys and query parameters.
const DateLayout = "2006-01-02"

const (
	defaultBusyThreshold = 0.75
	defaultMaxRangeDays  = 62
)

// ErrInvalidRange is returned for malformed, inverted or oversized ranges.
var ErrInvalidRange = errors.New("availability: invalid date range")

type Status string

const (
	Available Status = "available"
	Limited   Status = "limited"
	Busy      Status = "busy"
)

// Map is keyed by ISO date. Days without busy time are left out; readers
// treat a missing key as Available.
type Map map[string]Status

// BusySource is the part of the gateway the service reads from.
type BusySource interface {
	QueryBusy(ctx context.Context, start, end time.Time) ([]gateway.BusyBlock, error)
}

type Options struct {
	// Location decides which calendar day a busy block falls on.
	Location *time.Location
	// BusyThreshold is the covered fraction of the bookable window at or
	// above which a day is Busy.
	BusyThreshold float64
	MaxRangeDays  int
	Now           func() time.Time
	Logger        *slog.Logger
}

type Service struct {
	source    BusySource
	catalog   slots.Catalog
	loc       *time.Location
	threshold float64
	maxDays   int
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(source BusySource, catalog slots.Catalog, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.BusyThreshold <= 0 || opts.BusyThreshold > 1 {
		opts.BusyThreshold = defaultBusyThreshold
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = defaultMaxRangeDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		source:    source,
		catalog:   catalog,
		loc:       opts.Location,
		threshold: opts.BusyThreshold,
		maxDays:   opts.MaxRangeDays,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "availability"),
	}
}

// ParseDate reads an ISO date as midnight in the service's location.
func (s *Service) ParseDate(key string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, key, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidRange, key)
	}
	return day, nil
}

// MonthAvailability classifies every day of the given month.
func (s *Service) MonthAvailability(ctx context.Context, year int, month time.Month) (Map, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: %04d-%02d", ErrInvalidRange, year, int(month))
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return s.RangeAvailability(ctx, first, first.AddDate(0, 1, -1))
}

// RangeAvailability classifies the days first..last, both inclusive.
func (s *Service) RangeAvailability(ctx context.Context, first, last time.Time) (Map, error) {
	first, last = s.dayOf(first), s.dayOf(last)
	if last.Before(first) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, last.Format(DateLayout), first.Format(DateLayout))
	}
	if days := daysBetween(first, last) + 1; days > s.maxDays {
		return nil, fmt.Errorf("%w: %d days exceeds limit of %d", ErrInvalidRange, days, s.maxDays)
	}

	end := last.AddDate(0, 0, 1)
	blocks, err := s.source.QueryBusy(ctx, first, end)
	if err != nil {
		return nil, fmt.Errorf("availability %s..%s: %w", first.Format(DateLayout), last.Format(DateLayout), err)
	}

	out := Map{}
	for day := first; day.Before(end); day = day.AddDate(0, 0, 1) {
		if status, ok := s.classify(day, blocks); ok {
			out[day.Format(DateLayout)] = status
		}
	}
	s.logger.DebugContext(ctx, "availability computed",
		"start", first.Format(DateLayout), "end", last.Format(DateLayout),
		"busy_blocks", len(blocks), "marked_days", len(out))
	return out, nil
}

// SlotStatus is one catalog slot on a specific day.
type SlotStatus struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// Day is the status of one date together with its slots.
type Day struct {
	Date   string       `json:"date"`
	Status Status       `json:"status"`
	Slots  []SlotStatus `json:"slots"`
}

// DaySlots reports which catalog slots on day are still open. A slot is open
// when the catalog offers it, it has not started yet and no busy block
// overlaps it.
func (s *Service) DaySlots(ctx context.Context, day time.Time) (Day, error) {
	day = s.dayOf(day)
	blocks, err := s.source.QueryBusy(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return Day{}, fmt.Errorf("slots for %s: %w", day.Format(DateLayout), err)
	}

	status, ok := s.classify(day, blocks)
	if !ok {
		status = Available
	}
	now := s.now()
	out := Day{Date: day.Format(DateLayout), Status: status}
	for _, slot := range s.catalog.Slots() {
		start, end := slot.Window(day)
		out.Slots = append(out.Slots, SlotStatus{
			Start:     slot.Start.String(),
			End:       slot.End.String(),
			Label:     slot.Label(),
			Available: slot.Available && start.After(now) && !anyOverlap(blocks, start, end),
		})
	}
	return out, nil
}

// classify applies the day rule. ok is false for a day with no busy time in
// its bookable window.
func (s *Service) classify(day time.Time, blocks []gateway.BusyBlock) (Status, bool) {
	open, closeAt := s.catalog.Bounds()
	windowStart, windowEnd := open.On(day), closeAt.On(day)
	window := windowEnd.Sub(windowStart)

	covered := coverage(blocks, windowStart, windowEnd)
	if covered <= 0 || window <= 0 {
		return Available, false
	}
	if float64(covered)/float64(window) >= s.threshold || s.openSlots(day, blocks) == 0 {
		return Busy, true
	}
	return Limited, true
}

func (s *Service) openSlots(day time.Time, blocks []gateway.BusyBlock) int {
	n := 0
	for _, slot := range s.catalog.Slots() {
		if !slot.Available {
			continue
		}
		start, end := slot.Window(day)
		if !anyOverlap(blocks, start, end) {
			n++
		}
	}
	return n
}

func (s *Service) dayOf(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// coverage is the length of the union of blocks clipped to [start, end).
func coverage(blocks []gateway.BusyBlock, start, end time.Time) time.Duration {
	clipped := make([]gateway.BusyBlock, 0, len(blocks))
	for _, b := range blocks {
		if !b.Overlaps(start, end) {
			continue
		}
		c := b
		if c.Start.Before(start) {
			c.Start = start
		}
		if c.End.After(end) {
			c.End = end
		}
		clipped = append(clipped, c)
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })

	var total time.Duration
	var cur gateway.BusyBlock
	for i, b := range clipped {
		if i == 0 {
			cur = b
			continue
		}
		if !b.Start.After(cur.End) {
			if b.End.After(cur.End) {
				cur.End = b.End
			}
			continue
		}
		total += cur.End.Sub(cur.Start)
		cur = b
	}
	if len(clipped) > 0 {
		total += cur.End.Sub(cur.Start)
	}
	return total
}

func anyOverlap(blocks []gateway.BusyBlock, start, end time.Time) bool {
	for _, b := range blocks {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	ua := time.Date(ya, ma, da, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, db, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
