// Package sink mirrors persisted audit batches to Kafka for downstream SIEM
// and archival consumers. The mirror is best-effort: the store write has
// already succeeded by the time a batch reaches here, and a produce failure is
// logged by the buffer, not retried.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"flowaudit/internal/audit"
)

// DefaultTopic is the audit mirror topic.
const DefaultTopic = "audit.events"

// Kafka implements audit.Sink over a franz-go producer.
type Kafka struct {
	client *kgo.Client
	topic  string
	log    *slog.Logger
}

// NewKafka connects a producer and ensures the mirror topic exists. A topic
// that already exists is not an error.
func NewKafka(brokers []string, topic string, log *slog.Logger) (*Kafka, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}

	return &Kafka{
		client: client,
		topic:  topic,
		log:    log.With("component", "kafka_sink"),
	}, nil
}

// Publish produces one JSON record per event, keyed by event ID so replays
// dedupe downstream. Blocks until the whole batch is acked or fails.
func (k *Kafka) Publish(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(e.ID.String()),
			Value: payload,
		})
	}

	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() {
	k.client.Close()
}
