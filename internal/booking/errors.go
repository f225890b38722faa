package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSlotHeld means another request holds the slot right now.
	ErrSlotHeld = errors.New("booking: slot is being booked by another request")
	// ErrSlotBusy means the calendar already has busy time inside the slot.
	ErrSlotBusy = errors.New("booking: slot overlaps busy time")
)

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "booking: invalid request"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field, msg := range v.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return "booking: invalid request: " + strings.Join(fields, "; ")
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.FieldErrors[field] = message
	}
}

// Reason tells a lost race apart from a provider failure.
type Reason string

const (
	ReasonSlotTaken Reason = "slot_taken"
	ReasonProvider  Reason = "provider"
)

// Error is a booking that passed validation but could not be committed.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("booking failed (%s): slot may no longer be available: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
