package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/notify"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// Email providers accepted by EMAIL_PROVIDER.
const (
	EmailAuto     = "auto"
	EmailSendGrid = "sendgrid"
	EmailSMTP     = "smtp"
	EmailSES      = "ses"
	EmailStub     = "stub"
)

// BuildEmailSender picks a mail transport. In auto mode SendGrid wins, then
// SMTP, then SES when enabled. When nothing usable is configured the stub
// sender is returned together with the reason.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string, string) {
	if logger == nil {
		logger = logging.Default()
	}
	stub := notify.NewStubEmailSender(logger)
	if cfg == nil {
		return stub, EmailStub, "missing config"
	}

	if cfg.MailFrom == "" && cfg.EmailProvider != EmailStub {
		logger.Warn("email delivery disabled; using stub sender", "reason", "MAIL_FROM not set")
		return stub, EmailStub, "MAIL_FROM not set"
	}

	build := map[string]func() (notify.EmailSender, string){
		EmailSendGrid: func() (notify.EmailSender, string) {
			sender := notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.MailFrom,
				FromName:  cfg.SiteName,
			}, logger)
			if sender == nil {
				return nil, "SENDGRID_API_KEY not set"
			}
			return sender, ""
		},
		EmailSMTP: func() (notify.EmailSender, string) {
			sender := notify.NewSMTPSender(notify.SMTPConfig{
				Host:      cfg.SMTPHost,
				Port:      cfg.SMTPPort,
				Username:  cfg.SMTPUsername,
				Password:  cfg.SMTPPassword,
				FromEmail: cfg.MailFrom,
				FromName:  cfg.SiteName,
			}, logger)
			if sender == nil {
				return nil, "SMTP_HOST not set"
			}
			return sender, ""
		},
		EmailSES: func() (notify.EmailSender, string) {
			if !cfg.SESEnabled {
				return nil, "AWS_SES_ENABLED is false"
			}
			if awsCfg == nil {
				return nil, "aws config unavailable"
			}
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.MailFrom,
				FromName:         cfg.SiteName,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger), ""
		},
		EmailStub: func() (notify.EmailSender, string) {
			return stub, ""
		},
	}

	order := []string{EmailSendGrid, EmailSMTP, EmailSES}
	if cfg.EmailProvider != EmailAuto && cfg.EmailProvider != "" {
		order = []string{cfg.EmailProvider}
	}

	var reason string
	for _, name := range order {
		fn, ok := build[name]
		if !ok {
			reason = "unknown EMAIL_PROVIDER " + name
			break
		}
		sender, why := fn()
		if sender != nil {
			logger.Info("email sender selected", "provider", name)
			return sender, name, ""
		}
		reason = why
	}

	logger.Warn("email delivery disabled; using stub sender", "reason", reason)
	return stub, EmailStub, reason
}
