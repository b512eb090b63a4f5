package indexer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/mir/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes commits keyed by generation name.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(p Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: p}
}

func (n *KafkaNotifier) GenerationCommitted(ctx context.Context, ev GenerationCommitted) error {
	return n.publisher.Publish(ctx, kafka.Event{Key: ev.Generation, Value: ev})
}
