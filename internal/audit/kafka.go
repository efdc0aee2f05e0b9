package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/spec-kit/supporthub/internal/domain"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes entries as JSON, keyed by ticket so a ticket's history
// stays ordered within one partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

// NewKafkaClient builds the producer client.
func NewKafkaClient(brokers []string, clientID string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
}

// NewKafkaSink builds a sink writing to topic.
func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

type kafkaEntry struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenant_id"`
	TicketID   string             `json:"ticket_id"`
	Actor      string             `json:"actor"`
	Action     domain.AuditAction `json:"action"`
	OldValue   map[string]any     `json:"old_value,omitempty"`
	NewValue   map[string]any     `json:"new_value,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func (s *KafkaSink) Record(ctx context.Context, entry domain.TicketHistory) error {
	value, err := json.Marshal(kafkaEntry{
		ID:         entry.ID,
		TenantID:   entry.TenantID,
		TicketID:   entry.TicketID,
		Actor:      entry.Actor,
		Action:     entry.Action,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		OccurredAt: entry.OccurredAt,
	})
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.TenantID + "/" + entry.TicketID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(entry.Action)},
			{Key: "tenant_id", Value: []byte(entry.TenantID)},
		},
	}
	return s.producer.ProduceSync(ctx, record).FirstErr()
}
