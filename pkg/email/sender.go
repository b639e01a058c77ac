// Package email delivers transactional messages through SendGrid.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/activityhub-backend/pkg/config"
)

// Message is a single rendered email.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
	// Tags are attached as SendGrid custom args for tracing deliveries back to outbox rows.
	Tags map[string]string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PermanentError marks a rejection that retrying cannot fix (bad address, bad payload).
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("sendgrid rejected message: status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridSender struct {
	client sendClient
	from   *mail.Email
}

// NewSendGridSender builds a sender from the SendGrid config section.
func NewSendGridSender(cfg config.SendgridConfig) (*SendGridSender, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	return newSender(sendgrid.NewSendClient(apiKey), cfg)
}

func newSender(client sendClient, cfg config.SendgridConfig) (*SendGridSender, error) {
	if client == nil {
		return nil, errors.New("sendgrid client is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	return &SendGridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, from),
	}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.ToEmail)
	if to == "" {
		return &PermanentError{StatusCode: http.StatusBadRequest, Body: "recipient address missing"}
	}
	message := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, to), msg.PlainText, msg.HTML)
	for k, v := range msg.Tags {
		message.SetCustomArg(k, v)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp == nil {
		return errors.New("sendgrid send: empty response")
	}
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	default:
		return &PermanentError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
}
