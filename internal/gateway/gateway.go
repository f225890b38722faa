// Package gateway mediates all access to the external calendar. It owns the
// single OAuth2 refresh token and fails closed when none is held.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 15 * time.Second

// Options tunes a Gateway.
type Options struct {
	// CalendarID is the single calendar resource queried and written.
	CalendarID string
	// Timeout bounds every provider call.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Gateway holds the credential and performs the four calendar operations.
type Gateway struct {
	provider   Provider
	store      CredentialStore
	states     *StateSigner
	calendarID string
	timeout    time.Duration
	logger     *slog.Logger

	mu           sync.RWMutex
	refreshToken string
}

func New(provider Provider, store CredentialStore, states *StateSigner, opts Options) *Gateway {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gateway{
		provider:   provider,
		store:      store,
		states:     states,
		calendarID: opts.CalendarID,
		timeout:    opts.Timeout,
		logger:     opts.Logger.With("component", "gateway"),
	}
}

// Restore loads a previously saved refresh token. An empty store is not an
// error: the gateway simply stays unauthenticated.
func (g *Gateway) Restore(ctx context.Context) error {
	token, err := g.store.Load(ctx)
	if errors.Is(err, ErrNoCredential) {
		g.logger.Warn("no stored calendar credential; consent required")
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore credential: %w", err)
	}
	g.setToken(token)
	g.logger.Info("calendar credential restored")
	return nil
}

// Authenticated reports whether a refresh token is currently held.
func (g *Gateway) Authenticated() bool {
	return g.token() != ""
}

// BeginConsent returns the provider consent URL for a new flow.
func (g *Gateway) BeginConsent() (string, error) {
	state, err := g.states.Issue()
	if err != nil {
		return "", err
	}
	return g.provider.AuthCodeURL(state), nil
}

// CompleteConsent exchanges a one-time code and stores the resulting refresh
// token, replacing any previous one.
func (g *Gateway) CompleteConsent(ctx context.Context, code, state string) error {
	if err := g.states.Verify(state); err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: authorization code required", ErrAuth)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	token, err := g.provider.Exchange(ctx, code)
	if err != nil {
		g.logger.ErrorContext(ctx, "consent exchange failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if err := g.store.Save(ctx, token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	g.setToken(token)
	g.logger.InfoContext(ctx, "calendar credential stored")
	return nil
}

// QueryBusy returns the busy blocks of the calendar within [start, end).
func (g *Gateway) QueryBusy(ctx context.Context, start, end time.Time) ([]BusyBlock, error) {
	token := g.token()
	if token == "" {
		return nil, ErrUnauthenticated
	}
	if !end.After(start) {
		return nil, fmt.Errorf("query busy: empty range %s..%s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	blocks, err := g.provider.FreeBusy(ctx, token, g.calendarID, start, end)
	if err != nil {
		g.logger.ErrorContext(ctx, "free/busy query failed", "start", start, "end", end, "error", err)
		return nil, providerError("query busy", err)
	}
	return blocks, nil
}

// CreateEvent inserts an event and returns its id and link.
func (g *Gateway) CreateEvent(ctx context.Context, spec EventSpec) (EventRef, error) {
	token := g.token()
	if token == "" {
		return EventRef{}, ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ref, err := g.provider.InsertEvent(ctx, token, g.calendarID, spec)
	if err != nil {
		g.logger.ErrorContext(ctx, "event insert failed", "start", spec.Start, "end", spec.End, "error", err)
		return EventRef{}, providerError("create event", err)
	}
	return ref, nil
}

func (g *Gateway) token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.refreshToken
}

func (g *Gateway) setToken(token string) {
	g.mu.Lock()
	g.refreshToken = token
	g.mu.Unlock()
}

func providerError(op string, err error) error {
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}
