package calendarview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/gateway"
	"availability-service/internal/slots"
)

type fakeBackend struct {
	mu       sync.Mutex
	months   map[string]availability.Map
	loadErr  error
	bookErr  error
	gates    map[string]chan struct{}
	requests []booking.Request
	ranges   [][2]string
	entered  chan string
}

func (f *fakeBackend) Availability(ctx context.Context, start, end string) (availability.Map, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]string{start, end})
	gate := f.gates[start]
	entered := f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- start
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.months[start[:7]], nil
}

func (f *fakeBackend) BookSlot(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gates["book"]
	entered := f.entered
	err := f.bookErr
	f.mu.Unlock()
	if entered != nil {
		entered <- "book"
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return booking.Confirmation{}, err
	}
	return booking.Confirmation{ID: "evt-1", Link: "https://calendar.example/evt-1", Date: req.Date, Start: req.StartTime, End: req.EndTime}, nil
}

func newController(b Backend, now time.Time) *Controller {
	return NewController(b, slots.MustParse(slots.DefaultSpec), Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

var december = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

func decemberBackend() *fakeBackend {
	return &fakeBackend{months: map[string]availability.Map{
		"2025-12": {"2025-12-13": availability.Busy, "2025-12-05": availability.Limited},
	}}
}

func TestBusyDateIsNotSelectable(t *testing.T) {
	c := newController(decemberBackend(), december)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.StatusOf("2025-12-13"); got != availability.Busy {
		t.Fatalf("expected busy, got %q", got)
	}
	if err := c.SelectDate("2025-12-13"); !errors.Is(err, ErrNotSelectable) {
		t.Fatalf("expected ErrNotSelectable, got %v", err)
	}
	if s := c.State(); s.Phase != Loaded || s.Date != "" {
		t.Fatalf("rejected selection must not change state: %+v", s)
	}
	if err := c.SelectDate("2025-12-05"); err != nil {
		t.Fatalf("limited days stay selectable: %v", err)
	}
}

func TestPastAndOutOfMonthDatesRejected(t *testing.T) {
	c := newController(decemberBackend(), time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC))
	_ = c.Load(context.Background())

	for _, date := range []string{"2025-12-09", "2026-01-02", "not-a-date"} {
		if err := c.SelectDate(date); !errors.Is(err, ErrNotSelectable) {
			t.Fatalf("%s: expected ErrNotSelectable, got %v", date, err)
		}
	}
	if err := c.SelectDate("2025-12-10"); err != nil {
		t.Fatalf("today is selectable: %v", err)
	}
}

func TestSelectBeforeLoadRejected(t *testing.T) {
	c := newController(decemberBackend(), december)
	if err := c.SelectDate("2025-12-20"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
}

func TestBookingFlow(t *testing.T) {
	b := decemberBackend()
	c := newController(b, december)
	ctx := context.Background()
	_ = c.Load(ctx)

	if _, err := c.Book(ctx); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("booking without a slot must be rejected, got %v", err)
	}
	if err := c.SelectDate("2025-12-20"); err != nil {
		t.Fatalf("select date: %v", err)
	}
	if err := c.SelectSlot("12:00-14:00"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("closed slot must be rejected, got %v", err)
	}
	if err := c.SelectSlot("09:00-11:00"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("unknown slot must be rejected, got %v", err)
	}
	if s := c.State(); s.Phase != DateSelected {
		t.Fatalf("expected DateSelected, got %v", s.Phase)
	}
	if err := c.SelectSlot("10:00 - 12:00"); err != nil {
		t.Fatalf("select slot: %v", err)
	}

	conf, err := c.Book(ctx)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if conf.ID != "evt-1" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
	want := booking.Request{Date: "2025-12-20", StartTime: "10:00", EndTime: "12:00"}
	if len(b.requests) != 1 || b.requests[0] != want {
		t.Fatalf("unexpected requests %+v", b.requests)
	}
	s := c.State()
	if s.Phase != BookingSucceeded || s.Confirmation == nil || s.Notice.Kind != NoticeBooked || s.Date != "2025-12-20" {
		t.Fatalf("unexpected state after booking: %+v", s)
	}

	// The next booking can start right from the success screen.
	if err := c.SelectSlot("14:00-16:00"); err != nil {
		t.Fatalf("select slot after success: %v", err)
	}
}

func TestBookingFailureNotices(t *testing.T) {
	tests := []struct {
		err  error
		kind NoticeKind
	}{
		{fmt.Errorf("book: %w", gateway.ErrUnauthenticated), NoticeAuthRequired},
		{&booking.Error{Reason: booking.ReasonSlotTaken, Err: gateway.ErrConflict}, NoticeTryAnotherSlot},
		{&booking.ValidationError{FieldErrors: map[string]string{"startTime": "time slot is not offered"}}, NoticeTryAnotherSlot},
		{&booking.Error{Reason: booking.ReasonProvider, Err: gateway.ErrProvider}, NoticeFailure},
		{errors.New("connection reset"), NoticeFailure},
	}
	for _, tt := range tests {
		b := decemberBackend()
		b.bookErr = tt.err
		c := newController(b, december)
		ctx := context.Background()
		_ = c.Load(ctx)
		_ = c.SelectDate("2025-12-20")
		_ = c.SelectSlot("10:00-12:00")

		if _, err := c.Book(ctx); err == nil {
			t.Fatalf("expected booking error for %v", tt.err)
		}
		s := c.State()
		if s.Phase != SlotSelected || !s.HasSlot || s.Date != "2025-12-20" {
			t.Fatalf("failure must return to SlotSelected with the selection kept: %+v", s)
		}
		if s.Notice.Kind != tt.kind || s.Notice.Message == "" {
			t.Fatalf("%v: expected notice kind %d, got %+v", tt.err, tt.kind, s.Notice)
		}
	}
}

func TestNavigationClearsSelection(t *testing.T) {
	b := decemberBackend()
	c := newController(b, december)
	ctx := context.Background()
	_ = c.Load(ctx)
	_ = c.SelectDate("2025-12-20")
	_ = c.SelectSlot("10:00-12:00")

	if err := c.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	s := c.State()
	if s.Phase != Loaded || s.Year != 2026 || s.Month != time.January || s.Date != "" || s.HasSlot {
		t.Fatalf("unexpected state after navigation: %+v", s)
	}
	if got := b.ranges[len(b.ranges)-1]; got != [2]string{"2026-01-01", "2026-01-31"} {
		t.Fatalf("unexpected range %v", got)
	}

	_ = c.Prev(ctx)
	_ = c.Prev(ctx)
	if s := c.State(); s.Year != 2025 || s.Month != time.November {
		t.Fatalf("expected November 2025, got %v %d", s.Month, s.Year)
	}
}

func TestLoadFailureShowsNoCalendar(t *testing.T) {
	b := &fakeBackend{loadErr: fmt.Errorf("availability: %w", gateway.ErrUnauthenticated)}
	c := newController(b, december)

	if err := c.Load(context.Background()); !errors.Is(err, gateway.ErrUnauthenticated) {
		t.Fatalf("expected load error, got %v", err)
	}
	s := c.State()
	if s.Phase != LoadFailed || s.Availability != nil || s.Notice.Kind != NoticeAuthRequired {
		t.Fatalf("unexpected state after failed load: %+v", s)
	}
	if err := c.SelectDate("2025-12-20"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("no selection after a failed load, got %v", err)
	}
}

func TestNavigationRejectedWhileBooking(t *testing.T) {
	b := decemberBackend()
	c := newController(b, december)
	ctx := context.Background()
	_ = c.Load(ctx)
	_ = c.SelectDate("2025-12-20")
	_ = c.SelectSlot("10:00-12:00")

	b.mu.Lock()
	gate := make(chan struct{})
	b.gates = map[string]chan struct{}{"book": gate}
	b.entered = make(chan string, 1)
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Book(ctx)
		done <- err
	}()
	<-b.entered

	if s := c.State(); s.Phase != Booking {
		t.Fatalf("expected Booking, got %v", s.Phase)
	}
	if err := c.Next(ctx); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("navigation during booking must be rejected, got %v", err)
	}
	if err := c.SelectSlot("14:00-16:00"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("selection during booking must be rejected, got %v", err)
	}
	if _, err := c.Book(ctx); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("double submit must be rejected, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("book: %v", err)
	}
	if s := c.State(); s.Phase != BookingSucceeded || s.Month != time.December {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{
		months: map[string]availability.Map{
			"2025-12": {"2025-12-13": availability.Busy},
			"2026-01": {"2026-01-05": availability.Limited},
		},
		gates:   map[string]chan struct{}{"2025-12-01": gate},
		entered: make(chan string, 2),
	}
	c := newController(b, december)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()
	<-b.entered

	if err := c.ShowMonth(ctx, 2026, time.January); err != nil {
		t.Fatalf("show january: %v", err)
	}
	<-b.entered
	close(gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	s := c.State()
	if s.Month != time.January || s.Phase != Loaded {
		t.Fatalf("stale load overwrote state: %+v", s)
	}
	if _, ok := s.Availability["2025-12-13"]; ok {
		t.Fatalf("stale map leaked into state: %v", s.Availability)
	}
}

func TestGrid(t *testing.T) {
	c := newController(decemberBackend(), time.Date(2025, 12, 3, 9, 0, 0, 0, time.UTC))
	_ = c.Load(context.Background())
	_ = c.SelectDate("2025-12-20")

	weeks := c.Grid()
	if len(weeks) != 5 {
		t.Fatalf("December 2025 spans 5 weeks, got %d", len(weeks))
	}
	// 1 December 2025 is a Monday.
	if weeks[0][0].Day != 0 || weeks[0][1].Date != "2025-12-01" {
		t.Fatalf("unexpected first week: %+v", weeks[0][:2])
	}
	cells := map[string]Cell{}
	for _, week := range weeks {
		if len(week) != 7 {
			t.Fatalf("week has %d cells", len(week))
		}
		for _, cell := range week {
			if cell.Day != 0 {
				cells[cell.Date] = cell
			}
		}
	}
	if len(cells) != 31 {
		t.Fatalf("expected 31 days, got %d", len(cells))
	}
	if cell := cells["2025-12-13"]; cell.Status != availability.Busy || cell.Selectable {
		t.Fatalf("busy day: %+v", cell)
	}
	if cell := cells["2025-12-02"]; !cell.Past || cell.Selectable {
		t.Fatalf("past day: %+v", cell)
	}
	if cell := cells["2025-12-03"]; !cell.Today || !cell.Selectable {
		t.Fatalf("today: %+v", cell)
	}
	if cell := cells["2025-12-24"]; cell.Status != availability.Available || !cell.Selectable {
		t.Fatalf("unmarked days default to available: %+v", cell)
	}
	if !cells["2025-12-20"].Selected {
		t.Fatalf("selected day not marked")
	}

	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "December 2025") || !strings.Contains(out, "[20 ]") || !strings.Contains(out, "13x") {
		t.Fatalf("unexpected render:\n%s", out)
	}
}
