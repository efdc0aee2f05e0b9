package mail

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/supporthub/internal/domain"
)

// SentMessage is an outbound message captured by MemoryProvider.
type SentMessage struct {
	MailboxID string
	To        string
	Subject   string
	Body      string
	Headers   map[string]string
}

// MemoryProvider keeps mailboxes in process. ListErr, when set, fails every
// listing of the mailbox it is keyed by.
type MemoryProvider struct {
	mu        sync.Mutex
	inbox     map[string][]Message
	processed map[string]map[string]struct{}
	sent      []SentMessage
	ListErr   map[string]error
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		inbox:     make(map[string][]Message),
		processed: make(map[string]map[string]struct{}),
		ListErr:   make(map[string]error),
	}
}

// Deliver queues messages for a mailbox.
func (p *MemoryProvider) Deliver(mailboxID string, msgs ...Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbox[mailboxID] = append(p.inbox[mailboxID], msgs...)
}

// Push matches RedisMailbox.Push so the inbound webhook can feed either drop.
func (p *MemoryProvider) Push(_ context.Context, mailboxID string, msg Message) (bool, error) {
	if msg.ExternalID == "" {
		return false, ErrMissingExternalID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.inbox[mailboxID] {
		if existing.ExternalID == msg.ExternalID {
			return false, nil
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	p.inbox[mailboxID] = append(p.inbox[mailboxID], msg)
	return true, nil
}

// ListUnseenMessages returns unprocessed messages oldest first.
func (p *MemoryProvider) ListUnseenMessages(_ context.Context, mailbox domain.Mailbox, since time.Time) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ListErr[mailbox.ID]; err != nil {
		return nil, err
	}
	var out []Message
	for _, msg := range p.inbox[mailbox.ID] {
		if _, done := p.processed[mailbox.ID][msg.Key()]; done {
			continue
		}
		if !since.IsZero() && msg.ReceivedAt.Before(since) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

// MarkProcessed hides the message from later listings. Messages without an
// external id are addressed by Message.Key.
func (p *MemoryProvider) MarkProcessed(_ context.Context, mailbox domain.Mailbox, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processed[mailbox.ID] == nil {
		p.processed[mailbox.ID] = make(map[string]struct{})
	}
	p.processed[mailbox.ID][externalID] = struct{}{}
	return nil
}

// Reset makes every message unseen again, as a provider redelivering would.
func (p *MemoryProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = make(map[string]map[string]struct{})
}

// Send records the message.
func (p *MemoryProvider) Send(_ context.Context, mailbox domain.Mailbox, to, subject, body string, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	p.sent = append(p.sent, SentMessage{MailboxID: mailbox.ID, To: to, Subject: subject, Body: body, Headers: h})
	return nil
}

// Sent returns a copy of everything sent so far.
func (p *MemoryProvider) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SentMessage(nil), p.sent...)
}
