package notifier

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
)

// KafkaNotifier publishes lifecycle events to a Kafka topic, keyed by
// payment id so all events for one payment land on the same partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(writer *kafka.Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event models.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return &models.NotificationError{Channel: "kafka", Err: err}
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PaymentID),
		Value: data,
	})
	if err != nil {
		return &models.NotificationError{Channel: "kafka", Err: err}
	}
	return nil
}
