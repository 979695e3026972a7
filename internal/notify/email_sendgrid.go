package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

const sendGridCategory = "dental-daily-report"

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey string
	From   Sender
}

// SendGridSender delivers report emails through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   Sender
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is set.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   cfg.From.withDefaults(),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.buildMessage(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", logging.MaskEmail(msg.To))
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected report email", "status", response.StatusCode, "body", response.Body, "to", logging.MaskEmail(msg.To))
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("report email sent via sendgrid", "to", logging.MaskEmail(msg.To), "status", response.StatusCode)
	return nil
}

func (s *SendGridSender) buildMessage(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.Name, s.from.Address))
	m.Subject = msg.Subject
	m.AddCategories(sendGridCategory)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	for _, tag := range tagPairs(msg.Tags) {
		p.SetCustomArg(tag[0], tag[1])
	}
	m.AddPersonalizations(p)

	// SendGrid requires text/plain before text/html.
	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	m.AddContent(mail.NewContent("text/plain", text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	return m
}
