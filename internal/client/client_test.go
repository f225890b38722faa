package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/gateway"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAvailability(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/availability" || r.URL.Query().Get("start") != "2025-12-01" || r.URL.Query().Get("end") != "2025-12-31" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeJSON(w, http.StatusOK, map[string]string{"2025-12-13": "busy"})
	})
	got, err := c.Availability(context.Background(), "2025-12-01", "2025-12-31")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if got["2025-12-13"] != availability.Busy || len(got) != 1 {
		t.Fatalf("unexpected map %v", got)
	}
}

func TestAvailabilityErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, gateway.ErrUnauthenticated},
		{http.StatusBadRequest, availability.ErrInvalidRange},
		{http.StatusInternalServerError, gateway.ErrProvider},
	}
	for _, tt := range tests {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tt.status, map[string]string{"error": "x", "message": "failed"})
		})
		_, err := c.Availability(context.Background(), "2025-12-01", "2025-12-31")
		if !errors.Is(err, tt.want) {
			t.Fatalf("%d: expected %v, got %v", tt.status, tt.want, err)
		}
		var serr *StatusError
		if !errors.As(err, &serr) || serr.StatusCode != tt.status || serr.Message != "failed" {
			t.Fatalf("%d: status error not kept: %v", tt.status, err)
		}
	}
}

func TestBookSlot(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.Method != http.MethodPost || r.URL.Path != "/book-slot" || body["startTime"] != "10:00" {
			t.Errorf("unexpected request %s %s %v", r.Method, r.URL.Path, body)
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"confirmationId": "evt-1", "link": "https://calendar.example/evt-1",
			"date": body["date"], "startTime": body["startTime"], "endTime": body["endTime"],
		})
	})
	conf, err := c.BookSlot(context.Background(), booking.Request{Date: "2025-12-20", StartTime: "10:00", EndTime: "12:00"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if conf.ID != "evt-1" || conf.Start != "10:00" || conf.Date != "2025-12-20" {
		t.Fatalf("unexpected confirmation %+v", conf)
	}
}

func TestBookSlotErrors(t *testing.T) {
	req := booking.Request{Date: "2025-12-20", StartTime: "10:00", EndTime: "12:00"}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "validation_failed", "message": "invalid booking request",
			"fields": map[string]string{"endTime": "endTime is required"},
		})
	})
	_, err := c.BookSlot(context.Background(), req)
	var verr *booking.ValidationError
	if !errors.As(err, &verr) || verr.FieldErrors["endTime"] == "" {
		t.Fatalf("expected validation error, got %v", err)
	}

	for reason, want := range map[string]booking.Reason{
		"slot_taken": booking.ReasonSlotTaken,
		"provider":   booking.ReasonProvider,
		"":           booking.ReasonProvider,
	} {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "booking_failed", "message": "slot may no longer be available", "reason": reason,
			})
		})
		_, err := c.BookSlot(context.Background(), req)
		var berr *booking.Error
		if !errors.As(err, &berr) || berr.Reason != want {
			t.Fatalf("reason %q: expected %s, got %v", reason, want, err)
		}
	}

	c = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	})
	if _, err := c.BookSlot(context.Background(), req); !errors.Is(err, gateway.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := c.Health(context.Background())
	var serr *StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusBadGateway || serr.Error() != "http 502: bad gateway" {
		t.Fatalf("unexpected error %v", err)
	}
}
