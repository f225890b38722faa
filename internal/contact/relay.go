// Package contact relays contact-form submissions to the business inbox.
package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/mail"
	"strings"
)

var (
	ErrInvalidMessage = errors.New("contact: invalid message")
	ErrSend           = errors.New("contact: send failed")
)

// Message is a contact-form submission.
type Message struct {
	Name          string
	Email         string
	Phone         string
	Service       string
	Body          string
	PreferredDate string
}

// Mail is one outgoing email.
type Mail struct {
	From     string
	To       string
	ReplyTo  string
	Subject  string
	HTMLBody string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

var bodyTemplate = template.Must(template.New("contact").Parse(`<h3>Contact Details</h3>
<ul>
<li><strong>Name:</strong> {{.Name}}</li>
<li><strong>Email:</strong> {{.Email}}</li>
<li><strong>Phone:</strong> {{or .Phone "N/A"}}</li>
<li><strong>Service:</strong> {{or .Service "General Inquiry"}}</li>
<li><strong>Preferred Date:</strong> {{or .PreferredDate "N/A"}}</li>
</ul>
<h3>Message</h3>
<p>{{.Body}}</p>
`))

type Relay struct {
	mailer Mailer
	from   string
	to     string
	logger *slog.Logger
}

// NewRelay sends to `to` from `from`. An empty `to` sends to `from`.
func NewRelay(mailer Mailer, from, to string, logger *slog.Logger) *Relay {
	if to == "" {
		to = from
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{mailer: mailer, from: from, to: to, logger: logger.With("component", "contact")}
}

func (r *Relay) Submit(ctx context.Context, msg Message) error {
	m, err := r.Compose(msg)
	if err != nil {
		return err
	}
	if err := r.mailer.Send(ctx, m); err != nil {
		r.logger.ErrorContext(ctx, "contact mail failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	r.logger.InfoContext(ctx, "contact mail sent", "subject", m.Subject)
	return nil
}

// Compose validates msg and renders the email. User input is HTML-escaped.
func (r *Relay) Compose(msg Message) (Mail, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Body = strings.TrimSpace(msg.Body)
	if msg.Name == "" || msg.Email == "" || msg.Body == "" {
		return Mail{}, fmt.Errorf("%w: name, email and message are required", ErrInvalidMessage)
	}
	addr, err := mail.ParseAddress(msg.Email)
	if err != nil {
		return Mail{}, fmt.Errorf("%w: invalid email %q", ErrInvalidMessage, msg.Email)
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, msg); err != nil {
		return Mail{}, fmt.Errorf("render contact mail: %w", err)
	}
	service := strings.TrimSpace(msg.Service)
	if service == "" {
		service = "General Inquiry"
	}
	return Mail{
		From:     r.from,
		To:       r.to,
		ReplyTo:  addr.Address,
		Subject:  "New Contact Form Submission: " + oneLine(service),
		HTMLBody: body.String(),
	}, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
