package gateway

import (
	"context"
	"time"
)

// BusyBlock is a [Start, End) interval the provider reports as busy.
type BusyBlock struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the block intersects [start, end).
func (b BusyBlock) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// EventSpec describes an event to create on the calendar.
type EventSpec struct {
	Summary         string
	Description     string
	Start           time.Time
	End             time.Time
	TimeZone        string
	ReminderMinutes int
}

// EventRef identifies a created event.
type EventRef struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// Provider is the external calendar: OAuth2 authorization-code grant plus the
// free/busy and event-insert endpoints for one calendar resource.
type Provider interface {
	AuthCodeURL(state string) string
	// Exchange trades a one-time authorization code for a refresh token.
	Exchange(ctx context.Context, code string) (string, error)
	FreeBusy(ctx context.Context, refreshToken, calendarID string, start, end time.Time) ([]BusyBlock, error)
	InsertEvent(ctx context.Context, refreshToken, calendarID string, spec EventSpec) (EventRef, error)
}
