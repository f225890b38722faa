// Package booking validates a requested slot and commits it to the calendar.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"availability-service/internal/gateway"
	"availability-service/internal/slots"
)

const (
	dateLayout             = "2006-01-02"
	defaultSummary         = "New Client Booking"
	defaultReminderMinutes = 30
	defaultHoldTTL         = 2 * time.Minute
)

// Gateway is the calendar access the orchestrator needs.
type Gateway interface {
	QueryBusy(ctx context.Context, start, end time.Time) ([]gateway.BusyBlock, error)
	CreateEvent(ctx context.Context, spec gateway.EventSpec) (gateway.EventRef, error)
}

// Request is a booking as submitted by the front end.
type Request struct {
	Date      string
	StartTime string
	EndTime   string
}

// Confirmation identifies the event that now holds the slot.
type Confirmation struct {
	ID    string
	Link  string
	Date  string
	Start string
	End   string
}

type Options struct {
	Location *time.Location
	// TimeZone is the IANA name sent with the event. Defaults to
	// Location's name.
	TimeZone        string
	Summary         string
	ReminderMinutes int
	// VerifyFreeBusy re-reads the slot's busy time right before inserting.
	VerifyFreeBusy bool
	// Holds serialises requests for the same slot. Nil disables holds.
	Holds   Holder
	HoldTTL time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

type Orchestrator struct {
	gw       Gateway
	catalog  slots.Catalog
	loc      *time.Location
	tz       string
	summary  string
	reminder int
	verify   bool
	holds    Holder
	holdTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewOrchestrator(gw Gateway, catalog slots.Catalog, opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TimeZone == "" {
		opts.TimeZone = opts.Location.String()
	}
	if opts.Summary == "" {
		opts.Summary = defaultSummary
	}
	if opts.ReminderMinutes <= 0 {
		opts.ReminderMinutes = defaultReminderMinutes
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = defaultHoldTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		gw:       gw,
		catalog:  catalog,
		loc:      opts.Location,
		tz:       opts.TimeZone,
		summary:  opts.Summary,
		reminder: opts.ReminderMinutes,
		verify:   opts.VerifyFreeBusy,
		holds:    opts.Holds,
		holdTTL:  opts.HoldTTL,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "booking"),
	}
}

// Validate checks req against the catalog and the clock without touching the
// calendar.
func (o *Orchestrator) Validate(req Request) (time.Time, slots.Slot, error) {
	verr := &ValidationError{}
	date := strings.TrimSpace(req.Date)
	start := strings.TrimSpace(req.StartTime)
	end := strings.TrimSpace(req.EndTime)

	var day time.Time
	if date == "" {
		verr.add("date", "date is required")
	} else if d, err := time.ParseInLocation(dateLayout, date, o.loc); err != nil {
		verr.add("date", "date must be YYYY-MM-DD")
	} else {
		day = d
	}
	if start == "" {
		verr.add("startTime", "startTime is required")
	}
	if end == "" {
		verr.add("endTime", "endTime is required")
	}

	var startClock, endClock slots.Clock
	if start != "" && end != "" {
		var err error
		if startClock, err = slots.ParseClock(start); err != nil {
			verr.add("startTime", "startTime must be HH:MM")
		}
		if endClock, err = slots.ParseClock(end); err != nil {
			verr.add("endTime", "endTime must be HH:MM")
		}
	}
	if verr.HasErrors() {
		return time.Time{}, slots.Slot{}, verr
	}

	if startClock >= endClock {
		verr.add("endTime", "endTime must be after startTime")
		return time.Time{}, slots.Slot{}, verr
	}
	slot, ok := o.catalog.Lookup(start, end)
	if !ok {
		verr.add("startTime", "time slot is not offered")
		return time.Time{}, slots.Slot{}, verr
	}
	if !slot.Available {
		verr.add("startTime", "time slot is not available")
		return time.Time{}, slots.Slot{}, verr
	}

	now := o.now().In(o.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, o.loc)
	if day.Before(today) {
		verr.add("date", "date is in the past")
		return time.Time{}, slots.Slot{}, verr
	}
	if slotStart, _ := slot.Window(day); !slotStart.After(now) {
		verr.add("startTime", "time slot has already started")
		return time.Time{}, slots.Slot{}, verr
	}
	return day, slot, nil
}

// BookSlot creates the calendar event for req. Validation failures return a
// *ValidationError and never reach the calendar. An unauthenticated gateway
// returns gateway.ErrUnauthenticated. Anything else that stops the commit is
// an *Error.
func (o *Orchestrator) BookSlot(ctx context.Context, req Request) (Confirmation, error) {
	day, slot, err := o.Validate(req)
	if err != nil {
		return Confirmation{}, err
	}
	start, end := slot.Window(day)
	dateKey := day.Format(dateLayout)
	logger := o.logger.With("date", dateKey, "slot", slot.Key())

	release, err := o.hold(ctx, logger, dateKey+"|"+slot.Key())
	if err != nil {
		return Confirmation{}, err
	}

	ref, err := o.commit(ctx, slot, start, end)
	if err != nil {
		release()
		logger.WarnContext(ctx, "booking failed", "error", err)
		return Confirmation{}, err
	}
	logger.InfoContext(ctx, "booking created", "event_id", ref.ID)
	return Confirmation{
		ID:    ref.ID,
		Link:  ref.Link,
		Date:  dateKey,
		Start: slot.Start.String(),
		End:   slot.End.String(),
	}, nil
}

// hold takes the slot's hold and returns the func that gives it back. A
// successful booking leaves the hold to expire on its own.
func (o *Orchestrator) hold(ctx context.Context, logger *slog.Logger, key string) (func(), error) {
	noop := func() {}
	if o.holds == nil {
		return noop, nil
	}
	token, ok, err := o.holds.Acquire(ctx, key, o.holdTTL)
	if err != nil {
		logger.WarnContext(ctx, "slot hold unavailable, continuing without it", "error", err)
		return noop, nil
	}
	if !ok {
		logger.InfoContext(ctx, "slot already held")
		return nil, &Error{Reason: ReasonSlotTaken, Err: ErrSlotHeld}
	}
	return func() {
		if err := o.holds.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.WarnContext(ctx, "release slot hold", "error", err)
		}
	}, nil
}

func (o *Orchestrator) commit(ctx context.Context, slot slots.Slot, start, end time.Time) (gateway.EventRef, error) {
	if o.verify {
		blocks, err := o.gw.QueryBusy(ctx, start, end)
		if err != nil {
			return gateway.EventRef{}, classify(err)
		}
		for _, b := range blocks {
			if b.Overlaps(start, end) {
				return gateway.EventRef{}, &Error{Reason: ReasonSlotTaken, Err: ErrSlotBusy}
			}
		}
	}

	ref, err := o.gw.CreateEvent(ctx, gateway.EventSpec{
		Summary:         o.summary,
		Description:     fmt.Sprintf("A new appointment booked via your website. Time: %s", slot.Label()),
		Start:           start,
		End:             end,
		TimeZone:        o.tz,
		ReminderMinutes: o.reminder,
	})
	if err != nil {
		return gateway.EventRef{}, classify(err)
	}
	return ref, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, gateway.ErrUnauthenticated):
		return fmt.Errorf("book slot: %w", err)
	case errors.Is(err, gateway.ErrConflict):
		return &Error{Reason: ReasonSlotTaken, Err: err}
	default:
		return &Error{Reason: ReasonProvider, Err: err}
	}
}
