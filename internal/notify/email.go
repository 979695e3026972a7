package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

const defaultFromName = "Dental Report AI"

// EmailSender sends one message. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered report email. Tags travel to the provider as
// message tags (SES) or custom args (SendGrid) so deliveries can be traced
// back to a job.
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// Sender identifies the From mailbox.
type Sender struct {
	Address string
	Name    string
}

func (s Sender) withDefaults() Sender {
	if strings.TrimSpace(s.Name) == "" {
		s.Name = defaultFromName
	}
	return s
}

func (s Sender) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// tagPairs returns tags sorted by key with names and values reduced to the
// characters every provider accepts.
func tagPairs(tags map[string]string) [][2]string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		name, value := tagSafe(k), tagSafe(tags[k])
		if name == "" || value == "" {
			continue
		}
		pairs = append(pairs, [2]string{name, value})
	}
	return pairs
}

func tagSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == '.' || r == ' ' || r == ':':
			return '_'
		default:
			return -1
		}
	}, s)
}

// StubEmailSender logs instead of sending; used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("report email not sent: no provider configured",
		"to", logging.MaskEmail(msg.To),
		"subject", msg.Subject,
		"tags", msg.Tags,
	)
	return nil
}
