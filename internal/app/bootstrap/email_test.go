package bootstrap

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"

	appconfig "github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/notify"
)

func TestBuildEmailSender(t *testing.T) {
	awsCfg := aws.Config{Region: "ap-northeast-1"}

	tests := []struct {
		name         string
		cfg          appconfig.Config
		aws          *aws.Config
		wantProvider string
		wantType     any
		wantReason   string
	}{
		{
			name:         "auto prefers sendgrid",
			cfg:          appconfig.Config{EmailProvider: EmailAuto, MailFrom: "noreply@incierge.jp", SendGridAPIKey: "SG.key", SMTPHost: "smtp.example.com"},
			wantProvider: EmailSendGrid,
			wantType:     &notify.SendGridSender{},
		},
		{
			name:         "auto falls back to smtp",
			cfg:          appconfig.Config{EmailProvider: EmailAuto, MailFrom: "noreply@incierge.jp", SMTPHost: "smtp.example.com", SMTPPort: 587},
			wantProvider: EmailSMTP,
			wantType:     &notify.SMTPSender{},
		},
		{
			name:         "auto uses ses when enabled",
			cfg:          appconfig.Config{EmailProvider: EmailAuto, MailFrom: "noreply@incierge.jp", SESEnabled: true},
			aws:          &awsCfg,
			wantProvider: EmailSES,
			wantType:     &notify.SESSender{},
		},
		{
			name:         "auto without transports",
			cfg:          appconfig.Config{EmailProvider: EmailAuto, MailFrom: "noreply@incierge.jp"},
			wantProvider: EmailStub,
			wantType:     &notify.StubEmailSender{},
			wantReason:   "AWS_SES_ENABLED is false",
		},
		{
			name:         "explicit smtp without host",
			cfg:          appconfig.Config{EmailProvider: EmailSMTP, MailFrom: "noreply@incierge.jp", SendGridAPIKey: "SG.key"},
			wantProvider: EmailStub,
			wantType:     &notify.StubEmailSender{},
			wantReason:   "SMTP_HOST not set",
		},
		{
			name:         "missing sender address",
			cfg:          appconfig.Config{EmailProvider: EmailAuto, SendGridAPIKey: "SG.key"},
			wantProvider: EmailStub,
			wantType:     &notify.StubEmailSender{},
			wantReason:   "MAIL_FROM not set",
		},
		{
			name:         "unknown provider",
			cfg:          appconfig.Config{EmailProvider: "pigeon", MailFrom: "noreply@incierge.jp"},
			wantProvider: EmailStub,
			wantType:     &notify.StubEmailSender{},
			wantReason:   "unknown EMAIL_PROVIDER pigeon",
		},
		{
			name:         "explicit stub",
			cfg:          appconfig.Config{EmailProvider: EmailStub},
			wantProvider: EmailStub,
			wantType:     &notify.StubEmailSender{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			sender, provider, reason := BuildEmailSender(&cfg, tt.aws, quietLogger())
			assert.Equal(t, tt.wantProvider, provider)
			assert.IsType(t, tt.wantType, sender)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}
