package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu sync.Mutex

	exchangeToken string
	exchangeErr   error
	busy          []BusyBlock
	busyErr       error
	ref           EventRef
	insertErr     error
	waitForCancel bool

	gotCode   string
	gotTokens []string
	gotSpec   EventSpec
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://consent.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCode = code
	return f.exchangeToken, f.exchangeErr
}

func (f *fakeProvider) FreeBusy(ctx context.Context, refreshToken, _ string, _, _ time.Time) ([]BusyBlock, error) {
	f.mu.Lock()
	f.gotTokens = append(f.gotTokens, refreshToken)
	wait := f.waitForCancel
	f.mu.Unlock()
	if wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.busy, f.busyErr
}

func (f *fakeProvider) InsertEvent(_ context.Context, refreshToken, _ string, spec EventSpec) (EventRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTokens = append(f.gotTokens, refreshToken)
	f.gotSpec = spec
	return f.ref, f.insertErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T, p Provider, store CredentialStore) *Gateway {
	t.Helper()
	states, err := NewStateSigner([]byte("test-secret"), time.Minute)
	if err != nil {
		t.Fatalf("state signer: %v", err)
	}
	return New(p, store, states, Options{Timeout: time.Second, Logger: testLogger()})
}

func consent(t *testing.T, g *Gateway, code string) error {
	t.Helper()
	consentURL, err := g.BeginConsent()
	if err != nil {
		t.Fatalf("begin consent: %v", err)
	}
	u, err := url.Parse(consentURL)
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	return g.CompleteConsent(context.Background(), code, u.Query().Get("state"))
}

func TestOperationsFailClosedWithoutCredential(t *testing.T) {
	p := &fakeProvider{}
	g := newTestGateway(t, p, nil)

	if g.Authenticated() {
		t.Fatalf("expected unauthenticated gateway")
	}
	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if _, err := g.QueryBusy(context.Background(), start, start.AddDate(0, 1, 0)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from QueryBusy, got %v", err)
	}
	if _, err := g.CreateEvent(context.Background(), EventSpec{Start: start, End: start.Add(time.Hour)}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated from CreateEvent, got %v", err)
	}
	if len(p.gotTokens) != 0 {
		t.Fatalf("provider must not be called without a credential")
	}
}

func TestCompleteConsentStoresAndReplacesCredential(t *testing.T) {
	p := &fakeProvider{exchangeToken: "refresh-1"}
	store := NewMemoryStore()
	g := newTestGateway(t, p, store)

	if err := consent(t, g, "code-1"); err != nil {
		t.Fatalf("complete consent: %v", err)
	}
	if p.gotCode != "code-1" {
		t.Fatalf("code not forwarded: %q", p.gotCode)
	}
	if !g.Authenticated() {
		t.Fatalf("expected authenticated gateway")
	}

	p.exchangeToken = "refresh-2"
	if err := consent(t, g, "code-2"); err != nil {
		t.Fatalf("second consent: %v", err)
	}
	stored, err := store.Load(context.Background())
	if err != nil || stored != "refresh-2" {
		t.Fatalf("expected replaced credential, got %q (%v)", stored, err)
	}

	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if _, err := g.QueryBusy(context.Background(), start, start.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("query busy: %v", err)
	}
	if got := p.gotTokens[len(p.gotTokens)-1]; got != "refresh-2" {
		t.Fatalf("expected newest refresh token on call, got %q", got)
	}
}

func TestCompleteConsentRejectsBadInput(t *testing.T) {
	p := &fakeProvider{exchangeErr: errors.New("invalid_grant")}
	g := newTestGateway(t, p, nil)

	if err := consent(t, g, "expired"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for rejected code, got %v", err)
	}
	if err := g.CompleteConsent(context.Background(), "code", "forged-state"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for forged state, got %v", err)
	}
	p.exchangeErr = nil
	p.exchangeToken = "refresh"
	if err := consent(t, g, "  "); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for blank code, got %v", err)
	}
	if g.Authenticated() {
		t.Fatalf("failed consents must not install a credential")
	}
}

func TestRestoreLoadsStoredCredential(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), "persisted"); err != nil {
		t.Fatalf("save: %v", err)
	}
	p := &fakeProvider{ref: EventRef{ID: "evt"}}
	g := newTestGateway(t, p, store)
	if err := g.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !g.Authenticated() {
		t.Fatalf("expected restored credential")
	}

	empty := newTestGateway(t, p, NewMemoryStore())
	if err := empty.Restore(context.Background()); err != nil {
		t.Fatalf("restore from empty store: %v", err)
	}
	if empty.Authenticated() {
		t.Fatalf("empty store must leave gateway unauthenticated")
	}
}

func TestProviderFailuresAreClassified(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), "refresh")
	p := &fakeProvider{
		busyErr:   errors.New("connection reset"),
		insertErr: ErrConflict,
	}
	g := newTestGateway(t, p, store)
	if err := g.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	start := time.Date(2025, 12, 20, 8, 0, 0, 0, time.UTC)
	_, err := g.QueryBusy(context.Background(), start, start.Add(time.Hour))
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	_, err = g.CreateEvent(context.Background(), EventSpec{Start: start, End: start.Add(time.Hour)})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if errors.Is(err, ErrProvider) {
		t.Fatalf("conflict should not be reported as a generic provider failure")
	}
}

func TestCallsAreBoundedByTimeout(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), "refresh")
	p := &fakeProvider{waitForCancel: true}
	states, _ := NewStateSigner(nil, time.Minute)
	g := New(p, store, states, Options{Timeout: 20 * time.Millisecond, Logger: testLogger()})
	_ = g.Restore(context.Background())

	start := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	began := time.Now()
	_, err := g.QueryBusy(context.Background(), start, start.AddDate(0, 0, 1))
	if !errors.Is(err, ErrProvider) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected provider timeout, got %v", err)
	}
	if time.Since(began) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
}

func TestQueryBusyRejectsEmptyRange(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), "refresh")
	g := newTestGateway(t, &fakeProvider{}, store)
	_ = g.Restore(context.Background())

	at := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if _, err := g.QueryBusy(context.Background(), at, at); err == nil {
		t.Fatalf("expected error for empty range")
	}
}
