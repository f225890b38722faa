// Package calendarview holds the booking calendar's UI state machine: month
// navigation, date and slot selection, loading and booking phases.
package calendarview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/gateway"
	"availability-service/internal/slots"
)

type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	LoadFailed
	DateSelected
	SlotSelected
	Booking
	BookingSucceeded
)

var phaseNames = [...]string{"idle", "loading", "loaded", "load-failed", "date-selected", "slot-selected", "booking", "booking-succeeded"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

type NoticeKind int

const (
	NoticeNone NoticeKind = iota
	NoticeBooked
	NoticeAuthRequired
	NoticeTryAnotherSlot
	NoticeFailure
)

// Notice is the message shown to the user after a load or booking.
type Notice struct {
	Kind    NoticeKind
	Message string
}

var (
	ErrWrongPhase      = errors.New("calendarview: action not allowed in current phase")
	ErrNotSelectable   = errors.New("calendarview: date is not selectable")
	ErrSlotUnavailable = errors.New("calendarview: slot is not available")
	// ErrSuperseded is returned by a load whose result was discarded because
	// the user navigated elsewhere first.
	ErrSuperseded = errors.New("calendarview: load superseded")
)

// Backend is the service API the controller drives.
type Backend interface {
	Availability(ctx context.Context, start, end string) (availability.Map, error)
	BookSlot(ctx context.Context, req booking.Request) (booking.Confirmation, error)
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

// State is a snapshot of the controller.
type State struct {
	Phase        Phase
	Year         int
	Month        time.Month
	Availability availability.Map
	Date         string
	Slot         slots.Slot
	HasSlot      bool
	Notice       Notice
	Confirmation *booking.Confirmation
}

type Controller struct {
	backend Backend
	catalog slots.Catalog
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	gen   uint64
	state State
}

func NewController(backend Backend, catalog slots.Catalog, opts Options) *Controller {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	now := opts.Now().In(opts.Location)
	return &Controller{
		backend: backend,
		catalog: catalog,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  opts.Logger.With("component", "calendarview"),
		state:   State{Phase: Idle, Year: now.Year(), Month: now.Month()},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	if s.Availability != nil {
		m := make(availability.Map, len(s.Availability))
		for k, v := range s.Availability {
			m[k] = v
		}
		s.Availability = m
	}
	if s.Confirmation != nil {
		conf := *s.Confirmation
		s.Confirmation = &conf
	}
	return s
}

// Load fetches the month currently shown.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	year, month := c.state.Year, c.state.Month
	c.mu.Unlock()
	return c.ShowMonth(ctx, year, month)
}

func (c *Controller) Next(ctx context.Context) error { return c.step(ctx, 1) }

func (c *Controller) Prev(ctx context.Context) error { return c.step(ctx, -1) }

func (c *Controller) step(ctx context.Context, delta int) error {
	c.mu.Lock()
	first := time.Date(c.state.Year, c.state.Month+time.Month(delta), 1, 0, 0, 0, 0, c.loc)
	c.mu.Unlock()
	return c.ShowMonth(ctx, first.Year(), first.Month())
}

// ShowMonth clears any selection and loads the month's availability. It is
// rejected while a booking is in flight.
func (c *Controller) ShowMonth(ctx context.Context, year int, month time.Month) error {
	c.mu.Lock()
	if c.state.Phase == Booking {
		c.mu.Unlock()
		return ErrWrongPhase
	}
	c.gen++
	gen := c.gen
	c.state = State{Phase: Loading, Year: year, Month: month}
	c.mu.Unlock()

	first := time.Date(year, month, 1, 0, 0, 0, 0, c.loc)
	last := first.AddDate(0, 1, -1)
	m, err := c.backend.Availability(ctx, first.Format(availability.DateLayout), last.Format(availability.DateLayout))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return ErrSuperseded
	}
	if err != nil {
		c.state.Phase = LoadFailed
		c.state.Notice = noticeFor(err, "Could not load availability.")
		c.logger.WarnContext(ctx, "availability load failed", "month", first.Format("2006-01"), "error", err)
		return err
	}
	if m == nil {
		m = availability.Map{}
	}
	c.state.Phase = Loaded
	c.state.Availability = m
	return nil
}

// StatusOf is the displayed status of date. Days the map leaves out show as
// available.
func (c *Controller) StatusOf(date string) availability.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusOf(date)
}

func (c *Controller) statusOf(date string) availability.Status {
	if s, ok := c.state.Availability[date]; ok {
		return s
	}
	return availability.Available
}

// SelectDate picks a day of the shown month. Past and busy days are rejected
// without changing state.
func (c *Controller) SelectDate(date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.Phase {
	case Loaded, DateSelected, SlotSelected, BookingSucceeded:
	default:
		return ErrWrongPhase
	}
	day, err := time.ParseInLocation(availability.DateLayout, date, c.loc)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrNotSelectable, date)
	}
	if !c.selectable(day) {
		return fmt.Errorf("%w: %s", ErrNotSelectable, date)
	}
	c.state.Phase = DateSelected
	c.state.Date = date
	c.state.Slot, c.state.HasSlot = slots.Slot{}, false
	c.state.Notice = Notice{}
	c.state.Confirmation = nil
	return nil
}

func (c *Controller) selectable(day time.Time) bool {
	if day.Year() != c.state.Year || day.Month() != c.state.Month {
		return false
	}
	if day.Before(c.today()) {
		return false
	}
	return c.statusOf(day.Format(availability.DateLayout)) != availability.Busy
}

func (c *Controller) today() time.Time {
	now := c.now().In(c.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
}

// SelectSlot picks a catalog slot, given as "HH:MM-HH:MM" or "HH:MM - HH:MM".
func (c *Controller) SelectSlot(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.Phase {
	case DateSelected, SlotSelected, BookingSucceeded:
	default:
		return ErrWrongPhase
	}
	if c.state.Date == "" {
		return ErrWrongPhase
	}
	slot, ok := c.catalog.ByLabel(key)
	if !ok || !slot.Available {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, key)
	}
	c.state.Phase = SlotSelected
	c.state.Slot, c.state.HasSlot = slot, true
	c.state.Notice = Notice{}
	c.state.Confirmation = nil
	return nil
}

// Book submits the selected date and slot. On failure the controller goes
// back to SlotSelected with a notice so the user can retry or pick again.
func (c *Controller) Book(ctx context.Context) (booking.Confirmation, error) {
	c.mu.Lock()
	if c.state.Phase != SlotSelected {
		c.mu.Unlock()
		return booking.Confirmation{}, ErrWrongPhase
	}
	c.state.Phase = Booking
	c.state.Notice = Notice{}
	req := booking.Request{
		Date:      c.state.Date,
		StartTime: c.state.Slot.Start.String(),
		EndTime:   c.state.Slot.End.String(),
	}
	c.mu.Unlock()

	conf, err := c.backend.BookSlot(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state.Phase = SlotSelected
		c.state.Notice = noticeFor(err, "Booking failed.")
		c.logger.InfoContext(ctx, "booking rejected", "date", req.Date, "start", req.StartTime, "error", err)
		return booking.Confirmation{}, err
	}
	c.state.Phase = BookingSucceeded
	c.state.Confirmation = &conf
	c.state.Notice = Notice{Kind: NoticeBooked, Message: fmt.Sprintf("Booked %s %s.", req.Date, c.state.Slot.Label())}
	return conf, nil
}

func noticeFor(err error, fallback string) Notice {
	var verr *booking.ValidationError
	var berr *booking.Error
	switch {
	case errors.Is(err, gateway.ErrUnauthenticated):
		return Notice{Kind: NoticeAuthRequired, Message: "The calendar is not connected. Please authenticate and try again."}
	case errors.As(err, &verr):
		return Notice{Kind: NoticeTryAnotherSlot, Message: "That slot cannot be booked. Please choose another."}
	case errors.As(err, &berr) && berr.Reason == booking.ReasonSlotTaken:
		return Notice{Kind: NoticeTryAnotherSlot, Message: "That slot may no longer be available. Please try a different slot."}
	default:
		return Notice{Kind: NoticeFailure, Message: fallback + " Something went wrong, please try again."}
	}
}
