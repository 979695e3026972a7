package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	From Sender
}

// SESSender delivers report emails through SES v2.
type SESSender struct {
	client SESAPI
	from   Sender
	logger *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: cfg.From.withDefaults(), logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return errors.New("notify: SES client not configured")
	}

	output, err := s.client.SendEmail(ctx, s.buildInput(msg))
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", logging.MaskEmail(msg.To))
		return fmt.Errorf("notify: SES send: %w", err)
	}

	s.logger.Info("report email sent via SES", "to", logging.MaskEmail(msg.To), "message_id", aws.ToString(output.MessageId))
	return nil
}

func (s *SESSender) buildInput(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = utf8Content(msg.Text)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	for _, tag := range tagPairs(msg.Tags) {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String(tag[0]), Value: aws.String(tag[1])})
	}
	return input
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var (
	_ EmailSender = (*SESSender)(nil)
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
