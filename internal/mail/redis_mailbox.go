package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/supporthub/internal/domain"
)

// ErrMissingExternalID is returned when a message cannot be deduplicated.
var ErrMissingExternalID = errors.New("message has no external id")

// RedisMailbox is a mail drop: an inbound relay (or the HTTP webhook) pushes
// messages into a per-mailbox sorted set scored by receive time, and the
// ingestion worker drains it. Outbound mail goes to the configured Sender or,
// without one, onto a per-mailbox outbox list for an external relay.
type RedisMailbox struct {
	client *redis.Client
	sender Sender
	prefix string
}

// NewRedisMailbox builds the drop. sender may be nil.
func NewRedisMailbox(client *redis.Client, sender Sender) *RedisMailbox {
	return &RedisMailbox{client: client, sender: sender, prefix: "supporthub:mailbox:"}
}

func (r *RedisMailbox) indexKey(mailboxID string) string    { return r.prefix + mailboxID + ":index" }
func (r *RedisMailbox) messagesKey(mailboxID string) string { return r.prefix + mailboxID + ":messages" }
func (r *RedisMailbox) outboxKey(mailboxID string) string   { return r.prefix + mailboxID + ":outbox" }

// Push stores msg unless a message with the same external id is already queued.
// It reports whether the message was new.
func (r *RedisMailbox) Push(ctx context.Context, mailboxID string, msg Message) (bool, error) {
	if msg.ExternalID == "" {
		return false, ErrMissingExternalID
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}

	added, err := r.client.HSetNX(ctx, r.messagesKey(mailboxID), msg.ExternalID, payload).Result()
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	score := float64(msg.ReceivedAt.UnixMilli())
	if err := r.client.ZAdd(ctx, r.indexKey(mailboxID), redis.Z{Score: score, Member: msg.ExternalID}).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// ListUnseenMessages returns queued messages oldest first.
func (r *RedisMailbox) ListUnseenMessages(ctx context.Context, mailbox domain.Mailbox, since time.Time) ([]Message, error) {
	lower := "-inf"
	if !since.IsZero() {
		lower = strconv.FormatInt(since.UnixMilli(), 10)
	}
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(mailbox.ID), &redis.ZRangeBy{Min: lower, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list mailbox %s: %w", mailbox.ID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := r.client.HMGet(ctx, r.messagesKey(mailbox.ID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load mailbox %s: %w", mailbox.ID, err)
	}

	messages := make([]Message, 0, len(payloads))
	for i, raw := range payloads {
		s, ok := raw.(string)
		if !ok {
			// index entry without payload; drop it
			_ = r.client.ZRem(ctx, r.indexKey(mailbox.ID), ids[i]).Err()
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(s), &msg); err != nil {
			// keep the id so the worker can record the failure
			msg = Message{}
		}
		// the index member is the key MarkProcessed removes
		msg.ExternalID = ids[i]
		messages = append(messages, msg)
	}
	return messages, nil
}

// MarkProcessed removes the message from the drop.
func (r *RedisMailbox) MarkProcessed(ctx context.Context, mailbox domain.Mailbox, externalID string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.indexKey(mailbox.ID), externalID)
	pipe.HDel(ctx, r.messagesKey(mailbox.ID), externalID)
	_, err := pipe.Exec(ctx)
	return err
}

type outboundMail struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Send delivers through the Sender when configured, else queues on the outbox.
func (r *RedisMailbox) Send(ctx context.Context, mailbox domain.Mailbox, to, subject, body string, headers map[string]string) error {
	if r.sender != nil {
		return r.sender.Send(ctx, mailbox, to, subject, body, headers)
	}
	payload, err := json.Marshal(outboundMail{
		From:    mailbox.Address,
		To:      SanitizeHeader(to),
		Subject: SanitizeHeader(subject),
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, r.outboxKey(mailbox.ID), payload).Err()
}
