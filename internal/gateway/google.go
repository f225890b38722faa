package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var errNoRefreshToken = errors.New("provider issued no refresh token")

// GoogleConfig holds the OAuth2 client registration for Google Calendar.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
	// APIEndpoint overrides the Calendar API base URL.
	APIEndpoint string
	// HTTPClient is used for token and API traffic when set.
	HTTPClient *http.Client
}

// GoogleProvider implements Provider against Google Calendar.
type GoogleProvider struct {
	config      *oauth2.Config
	apiEndpoint string
	httpClient  *http.Client
}

func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google calendar not configured: client id, secret and redirect url are required")
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				calendar.CalendarReadonlyScope,
				calendar.CalendarEventsScope,
			},
			Endpoint: endpoint,
		},
		apiEndpoint: cfg.APIEndpoint,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is issued every time.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (string, error) {
	token, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("exchange code for token: %w", err)
	}
	if token.RefreshToken == "" {
		return "", errNoRefreshToken
	}
	return token.RefreshToken, nil
}

func (p *GoogleProvider) FreeBusy(ctx context.Context, refreshToken, calendarID string, start, end time.Time) ([]BusyBlock, error) {
	srv, err := p.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	req := &calendar.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}
	resp, err := srv.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("query free/busy: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar %q missing from free/busy response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("free/busy for %q: %s", calendarID, cal.Errors[0].Reason)
	}

	blocks := make([]BusyBlock, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		bStart, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", period.Start, err)
		}
		bEnd, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", period.End, err)
		}
		blocks = append(blocks, BusyBlock{Start: bStart, End: bEnd})
	}
	return blocks, nil
}

func (p *GoogleProvider) InsertEvent(ctx context.Context, refreshToken, calendarID string, spec EventSpec) (EventRef, error) {
	srv, err := p.service(ctx, refreshToken)
	if err != nil {
		return EventRef{}, err
	}

	event := &calendar.Event{
		Summary:     spec.Summary,
		Description: spec.Description,
		Start: &calendar.EventDateTime{
			DateTime: spec.Start.Format(time.RFC3339),
			TimeZone: spec.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: spec.End.Format(time.RFC3339),
			TimeZone: spec.TimeZone,
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: int64(spec.ReminderMinutes)},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := srv.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			return EventRef{}, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return EventRef{}, fmt.Errorf("insert event: %w", err)
	}
	return EventRef{ID: created.Id, Link: created.HtmlLink}, nil
}

// service builds a Calendar client for one call. The refresh token is traded
// for a fresh access token up front; nothing is cached between calls.
func (p *GoogleProvider) service(ctx context.Context, refreshToken string) (*calendar.Service, error) {
	ctx = p.clientContext(ctx)

	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))),
	}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

func (p *GoogleProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusConflict || gerr.Code == http.StatusPreconditionFailed
}
