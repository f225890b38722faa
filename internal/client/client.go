// Package client talks to the availability service's JSON API and maps its
// error responses back onto the service's error types.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/gateway"
)

const defaultTimeout = 20 * time.Second

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	Reason     string
	Fields     map[string]string
	Body       string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = truncate(e.Body, 220)
	}
	if msg == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, msg)
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Reason  string            `json:"reason"`
	Fields  map[string]string `json:"fields"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the service at baseURL. A nil httpClient gets a
// client with a 20s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Availability fetches the status map for start..end (YYYY-MM-DD, inclusive).
func (c *Client) Availability(ctx context.Context, start, end string) (availability.Map, error) {
	q := url.Values{"start": {start}, "end": {end}}
	var out availability.Map
	if err := c.do(ctx, http.MethodGet, "/availability?"+q.Encode(), nil, &out); err != nil {
		return nil, availabilityError(err)
	}
	if out == nil {
		out = availability.Map{}
	}
	return out, nil
}

// DaySlots fetches per-slot status for one date.
func (c *Client) DaySlots(ctx context.Context, date string) (availability.Day, error) {
	q := url.Values{"date": {date}}
	var out availability.Day
	if err := c.do(ctx, http.MethodGet, "/availability/slots?"+q.Encode(), nil, &out); err != nil {
		return availability.Day{}, availabilityError(err)
	}
	return out, nil
}

type bookRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type bookResponse struct {
	ConfirmationID string `json:"confirmationId"`
	Link           string `json:"link"`
	Date           string `json:"date"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
}

func (c *Client) BookSlot(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	var out bookResponse
	err := c.do(ctx, http.MethodPost, "/book-slot", bookRequest{Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime}, &out)
	if err != nil {
		return booking.Confirmation{}, bookingError(err)
	}
	return booking.Confirmation{
		ID:    out.ConfirmationID,
		Link:  out.Link,
		Date:  out.Date,
		Start: out.StartTime,
		End:   out.EndTime,
	}, nil
}

type Health struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return Health{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
		var eb errorBody
		if json.Unmarshal(payload, &eb) == nil {
			serr.Code, serr.Message, serr.Reason, serr.Fields = eb.Error, eb.Message, eb.Reason, eb.Fields
		}
		return serr
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode json response: %w", err)
	}
	return nil
}

func availabilityError(err error) error {
	var serr *StatusError
	if !errors.As(err, &serr) {
		return err
	}
	switch {
	case serr.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", gateway.ErrUnauthenticated, serr)
	case serr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", availability.ErrInvalidRange, serr)
	case serr.StatusCode >= 500:
		return fmt.Errorf("%w: %w", gateway.ErrProvider, serr)
	}
	return serr
}

func bookingError(err error) error {
	var serr *StatusError
	if !errors.As(err, &serr) {
		return err
	}
	switch {
	case serr.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", gateway.ErrUnauthenticated, serr)
	case serr.StatusCode == http.StatusBadRequest:
		fields := serr.Fields
		if len(fields) == 0 {
			fields = map[string]string{"request": serr.Error()}
		}
		return &booking.ValidationError{FieldErrors: fields}
	case serr.StatusCode >= 500:
		reason := booking.Reason(serr.Reason)
		if reason != booking.ReasonSlotTaken {
			reason = booking.ReasonProvider
		}
		return &booking.Error{Reason: reason, Err: serr}
	}
	return serr
}

func truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
