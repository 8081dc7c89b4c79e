// Package email delivers operator alerts.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Sender delivers a single HTML e-mail.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes alerts to the log instead of mailing them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, subject, _ string) error {
	s.logger.WarnContext(ctx, "alert email not sent (local)", "to", to, "subject", subject)
	return nil
}

// ResendSender mails alerts through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
		Tags:    []resend.Tag{{Name: "category", Value: "job_failure"}},
	})
	if err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}

// NewSender picks LogSender for ENV=local and ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}
