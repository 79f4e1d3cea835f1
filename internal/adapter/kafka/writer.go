package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Writer produces hail events to a Kafka topic.
// It implements pipeline.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishEvents publishes one message per hail event, keyed by product so a
// scan's events land on one partition in order. All messages from one call
// share a run_id header.
func (w *Writer) PublishEvents(ctx context.Context, productID string, events []domain.HailEvent) error {
	if len(events) == 0 {
		return nil
	}
	runID := uuid.NewString()
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(productID, runID, events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d hail events: %w", len(msgs), err)
	}
	w.logger.Debug("hail events published", "product", productID, "run_id", runID, "events", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a HailEvent into a Kafka message.
func serializeToMessage(productID, runID string, event domain.HailEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hail event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(productID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "product_id", Value: []byte(productID)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "dbzh", Value: []byte(strconv.FormatFloat(event.ReflectivityDBZ, 'f', -1, 64))},
		},
	}, nil
}
