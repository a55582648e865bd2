package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// EmailConfig addresses a single SMTP relay and recipient list. There is no
// library in the reference stack for SMTP delivery; net/smtp is the
// standard, idiomatic choice for a plain send-and-forget relay client.
type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	From     string
	To       []string
	Username string
	Password string
}

// EmailTransport sends Events as plain-text mail through an SMTP relay.
type EmailTransport struct {
	cfg  *EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailTransport builds an EmailTransport for cfg.
func NewEmailTransport(cfg *EmailConfig) *EmailTransport {
	return &EmailTransport{cfg: cfg, send: smtp.SendMail}
}

// Send relays event to the configured recipients.
func (e *EmailTransport) Send(event Event) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}

	subject := fmt.Sprintf("[%s] %s: %s", event.Severity, event.Stack, event.Kind)
	body := fmt.Sprintf("Stack: %s\r\nEvent: %s\r\nSeverity: %s\r\n\r\n%s\r\n",
		event.Stack, event.Kind, event.Severity, event.Message)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.cfg.From, strings.Join(e.cfg.To, ", "), subject, body)

	if err := e.send(addr, auth, e.cfg.From, e.cfg.To, []byte(msg)); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
