// Package mail abstracts the external mailboxes polled for inbound support mail.
package mail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// Message is one inbound mail as handed over by a provider.
type Message struct {
	ExternalID  string            `json:"external_id"`
	From        string            `json:"from"`
	FromName    string            `json:"from_name,omitempty"`
	To          []string          `json:"to,omitempty"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

// Key is the external id, or a digest of the message content when the provider
// handed the message over without one.
func (m Message) Key() string {
	if m.ExternalID != "" {
		return m.ExternalID
	}
	h := sha256.New()
	for _, part := range []string{m.From, m.Subject, m.ReceivedAt.UTC().Format(time.RFC3339Nano), m.Body, m.HTMLBody} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "nokey-" + hex.EncodeToString(h.Sum(nil)[:16])
}

// Attachment carries raw attachment content until it is moved to the blob store.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Provider is the mailbox transport. ListUnseenMessages returns messages received
// at or after since that were not yet marked processed.
type Provider interface {
	ListUnseenMessages(ctx context.Context, mailbox domain.Mailbox, since time.Time) ([]Message, error)
	MarkProcessed(ctx context.Context, mailbox domain.Mailbox, externalID string) error
	Send(ctx context.Context, mailbox domain.Mailbox, to, subject, body string, headers map[string]string) error
}

// Sender delivers outbound mail on behalf of a mailbox.
type Sender interface {
	Send(ctx context.Context, mailbox domain.Mailbox, to, subject, body string, headers map[string]string) error
}
