// Package mailer delivers notification mirrors over SMTP using the go-mail
// library. It is optional: when no SMTP host is configured the engine runs
// push-only.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// Config holds connection parameters for the SMTP mailer.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	FromAddr   string
	ToAddrs    string // comma-separated
	Encryption string // "none", "starttls", "ssl_tls"
}

// SMTPMailer sends notification mirrors via SMTP.
type SMTPMailer struct {
	config Config
}

// NewSMTPMailer creates a new SMTPMailer with the given configuration.
func NewSMTPMailer(config Config) *SMTPMailer {
	return &SMTPMailer{config: config}
}

// Send delivers a message using the configured SMTP server.
func (m *SMTPMailer) Send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.config.FromAddr); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}

	for _, r := range strings.Split(m.config.ToAddrs, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if err := msg.To(r); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", r, err)
		}
	}

	msg.Subject("[GearUp] " + subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(m.config.Host,
		mail.WithPort(m.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.config.Username),
		mail.WithPassword(m.config.Password),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(m.config.Encryption)),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	return c.DialAndSendWithContext(ctx, msg)
}

// tlsPolicyFromEncryption converts the encryption string to a go-mail TLSPolicy.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
