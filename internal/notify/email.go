// Package notify delivers encoder failure alerts by webhook, email and event log.
package notify

import (
	"fmt"
	"strings"

	"github.com/oszuidwest/zwfm-videoencoder/internal/config"
	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
	"github.com/wneessen/go-mail"
)

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// EmailConfigFrom converts the configured email settings.
func EmailConfigFrom(cfg config.EmailConfig) *EmailConfig {
	return &EmailConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		FromName:   cfg.FromName,
		Username:   cfg.Username,
		Password:   cfg.Password,
		Recipients: cfg.Recipients,
	}
}

// SendExitAlert sends an email notification for an unexpected encoder exit.
func SendExitAlert(cfg *EmailConfig, event types.ExitEvent) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil // Silently skip if not configured
	}

	lastError := event.LastError
	if lastError == "" {
		lastError = "(no output captured)"
	}

	subject := "[ALERT] Encoder Stopped - ZuidWest Video Encoder"
	body := fmt.Sprintf(
		"The video encoder exited unexpectedly.\n\n"+
			"Exit:       %s\n"+
			"Input:      %s\n"+
			"Output:     %s\n"+
			"Uptime:     %s\n"+
			"Last error: %s\n"+
			"Time:       %s\n\n"+
			"The encoder is not restarted automatically. Please check the input and output.",
		event.Exit, util.RedactURL(event.Input), util.RedactURL(event.Output),
		event.Uptime, lastError, util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// SendTestEmail sends a test email to verify SMTP configuration.
func SendTestEmail(cfg *EmailConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if cfg.Username == "" {
		return fmt.Errorf("email username not configured")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("email recipients not configured")
	}

	subject := "[TEST] ZuidWest Video Encoder"
	body := fmt.Sprintf(
		"Test email from the video encoder.\n\n"+
			"Time: %s\n\n"+
			"SMTP configuration is working correctly.",
		util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

// parseRecipients splits a comma-separated recipient list.
func parseRecipients(list string) []string {
	var recipients []string
	for r := range strings.SplitSeq(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// sendEmail delivers an email message to configured recipients.
func sendEmail(cfg *EmailConfig, subject, body string) error {
	recipients := parseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	} else {
		if err := m.From(cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(cfg.Host, clientOptions(cfg)...)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return util.WrapError("send email", err)
	}

	return nil
}

// clientOptions picks the TLS mode from the port.
func clientOptions(cfg *EmailConfig) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}

	switch cfg.Port {
	case 465: // SMTPS, implicit TLS
		opts = append(opts, mail.WithSSL())
	case 587: // Submission, STARTTLS required
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	default: // Port 25 or custom, opportunistic TLS
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	return opts
}
