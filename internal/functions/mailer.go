package functions

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// Email is one outgoing message.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer delivers email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, e Email) (string, error)
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	client *resend.Client
}

// NewResendMailer creates a ResendMailer authenticated with apiKey.
func NewResendMailer(apiKey string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey)}
}

func (m *ResendMailer) Send(ctx context.Context, e Email) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.From,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return sent.Id, nil
}
