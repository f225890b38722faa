// Command calendar is a terminal front end for the booking calendar. It shows
// a month of availability and can book a slot against a running server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"availability-service/internal/availability"
	"availability-service/internal/calendarview"
	"availability-service/internal/client"
	"availability-service/internal/slots"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "calendar:", err)
		os.Exit(1)
	}
}

func run() error {
	serverURL := flag.String("server", "http://localhost:3001", "availability service base URL")
	month := flag.String("month", "", "month to show as YYYY-MM (default current month)")
	date := flag.String("select", "", "date to select as YYYY-MM-DD")
	slot := flag.String("slot", "", "slot to select as HH:MM-HH:MM")
	book := flag.Bool("book", false, "book the selected date and slot")
	tz := flag.String("tz", "Africa/Johannesburg", "business time zone")
	catalogSpec := flag.String("slots", slots.DefaultSpec, "slot catalog")
	timeout := flag.Duration("timeout", 30*time.Second, "overall request timeout")
	flag.Parse()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	catalog, err := slots.Parse(*catalogSpec)
	if err != nil {
		return fmt.Errorf("slots: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	api := client.New(*serverURL, nil)
	ctrl := calendarview.NewController(api, catalog, calendarview.Options{
		Location: loc,
		Logger:   logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	now := time.Now().In(loc)
	year, mon := now.Year(), now.Month()
	if *month != "" {
		first, err := time.ParseInLocation("2006-01", *month, loc)
		if err != nil {
			return fmt.Errorf("month %q: want YYYY-MM", *month)
		}
		year, mon = first.Year(), first.Month()
	}
	if health, err := api.Health(ctx); err != nil {
		logger.Warn("health check failed", "error", err)
	} else if !health.Authenticated {
		fmt.Println("calendar not connected: an administrator must visit /auth/start")
	}
	loadErr := ctrl.ShowMonth(ctx, year, mon)

	if loadErr == nil && *date != "" {
		if err := ctrl.SelectDate(*date); err != nil {
			return err
		}
		if *slot != "" {
			if err := ctrl.SelectSlot(*slot); err != nil {
				return err
			}
		}
	}
	var bookErr error
	if loadErr == nil && *book {
		_, bookErr = ctrl.Book(ctx)
		if errors.Is(bookErr, calendarview.ErrWrongPhase) {
			return errors.New("-book needs -select and -slot")
		}
	}

	if err := ctrl.Render(os.Stdout); err != nil {
		return err
	}
	st := ctrl.State()
	if loadErr == nil && st.Date != "" && st.Confirmation == nil {
		day, err := api.DaySlots(ctx, st.Date)
		if err != nil {
			logger.Warn("slot status unavailable", "date", st.Date, "error", err)
		} else if err := writeDaySlots(os.Stdout, day); err != nil {
			return err
		}
	}
	if st.Confirmation != nil {
		fmt.Printf("confirmation: %s\n", st.Confirmation.ID)
		if st.Confirmation.Link != "" {
			fmt.Printf("link: %s\n", st.Confirmation.Link)
		}
	}
	if loadErr != nil {
		return loadErr
	}
	return bookErr
}

// writeDaySlots lists each slot of day as open or closed.
func writeDaySlots(w io.Writer, day availability.Day) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", day.Date, day.Status)
	for _, s := range day.Slots {
		state := "closed"
		if s.Available {
			state = "open"
		}
		fmt.Fprintf(&b, "  %s  %s\n", s.Label, state)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
