package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/incierge/incierge-intake/pkg/logging"
)

const sesCharset = "UTF-8"

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES v2 sender. ConfigurationSet is optional and
// routes delivery events to whatever destinations the set publishes to.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ConfigurationSet string
}

// SESSender delivers intake mail through Amazon SES v2.
type SESSender struct {
	client sesAPI
	from   string
	cfgSet string
	logger *logging.Logger
}

// NewSESSender returns nil when no client is supplied so callers can fall
// through to the next provider.
func NewSESSender(client *sesv2.Client, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	return newSESSender(client, cfg, logger)
}

func newSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	name := cfg.FromName
	if name == "" {
		name = defaultFromName
	}
	return &SESSender{
		client: client,
		from:   (&netmail.Address{Name: name, Address: cfg.FromEmail}).String(),
		cfgSet: cfg.ConfigurationSet,
		logger: logger,
	}
}

func sesContent(v string) *types.Content {
	if v == "" {
		return nil
	}
	return &types.Content{Data: aws.String(v), Charset: aws.String(sesCharset)}
}

func sesTags(msg EmailMessage) []types.MessageTag {
	var tags []types.MessageTag
	if msg.Kind != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("kind"), Value: aws.String(msg.Kind)})
	}
	if msg.Ticket != "" {
		tags = append(tags, types.MessageTag{Name: aws.String("ticket"), Value: aws.String(msg.Ticket)})
	}
	return tags
}

func (s *SESSender) input(msg EmailMessage) *sesv2.SendEmailInput {
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(sesCharset)},
				Body: &types.Body{
					Text: sesContent(msg.Body),
					Html: sesContent(msg.HTML),
				},
			},
		},
		EmailTags: sesTags(msg),
	}
	if msg.ReplyTo != "" {
		in.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.cfgSet != "" {
		in.ConfigurationSetName = aws.String(s.cfgSet)
	}
	return in
}

// Send submits one message to SES.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return errors.New("notify: SES client not configured")
	}

	out, err := s.client.SendEmail(ctx, s.input(msg))
	if err != nil {
		s.logger.Error("ses send failed", "error", err, "to", msg.To, "kind", msg.Kind, "ticket", msg.Ticket)
		return fmt.Errorf("notify: ses send: %w", err)
	}

	s.logger.Info("email sent via ses",
		"to", msg.To,
		"kind", msg.Kind,
		"ticket", msg.Ticket,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

var _ EmailSender = (*SESSender)(nil)
