package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-ops/internal/models"
)

// Auditor records admin actions.
type Auditor interface {
	Publish(ctx context.Context, ev models.AuditEvent) error
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditProducer publishes audit events to Kafka keyed by target.
type AuditProducer struct {
	writer messageWriter
}

func NewAuditProducer(brokers []string, topic string) *AuditProducer {
	w := &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.LeastBytes{}}
	return &AuditProducer{writer: w}
}

func (k *AuditProducer) Publish(ctx context.Context, ev models.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Target), Value: b})
}

func (k *AuditProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// NopAuditor drops events when no broker is configured.
type NopAuditor struct{}

func (NopAuditor) Publish(context.Context, models.AuditEvent) error { return nil }
