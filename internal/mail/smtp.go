package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"

	"github.com/spec-kit/supporthub/internal/domain"
)

// SMTPConfig configures the outbound relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender sends plain-text mail through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

// Send writes the message with the mailbox address as sender. Extra headers are
// emitted in a stable order.
func (s *SMTPSender) Send(ctx context.Context, mailbox domain.Mailbox, to, subject, body string, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, _, err := NormalizeAddress(mailbox.Address)
	if err != nil {
		return fmt.Errorf("invalid From address: %w", err)
	}
	rcpt, _, err := NormalizeAddress(to)
	if err != nil {
		return fmt.Errorf("invalid To address: %w", err)
	}

	msg := bytes.Buffer{}
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + rcpt + "\r\n")
	msg.WriteString("Subject: " + SanitizeHeader(subject) + "\r\n")
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.WriteString(SanitizeHeader(k) + ": " + SanitizeHeader(headers[k]) + "\r\n")
	}
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	return s.sendMail(addr, auth, from, []string{rcpt}, msg.Bytes())
}
