package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Reader consumes product notifications from a Kafka topic.
// It implements pipeline.ProductSource and pipeline.Rewinder.
type Reader struct {
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.Mutex
	reader *kafkago.Reader
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	return &Reader{reader: newGroupReader(cfg), cfg: cfg, logger: logger}
}

// newGroupReader commits synchronously, so a fresh reader in the same group
// resumes right after the last acknowledged notice.
func newGroupReader(cfg *config.Config) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

func (r *Reader) current() *kafkago.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reader
}

// ExtractBatch fetches up to batchSize notices, returning early once the
// flush interval passes after the first wait. Offsets are committed through
// each notice's Commit callback. Notices that do not name a valid product are
// dropped; their offsets are committed with the last notice of the batch, or
// right away when the batch is empty, so they never acknowledge a product
// that has not been processed.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.ProductNotice, error) {
	reader := r.current()
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchFlushInterval)
	defer cancel()

	notices := make([]domain.ProductNotice, 0, batchSize)
	var (
		lastMsg kafkago.Message
		dropped []kafkago.Message
	)
	for len(notices) < batchSize {
		msg, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("fetch product notice: %w", err)
		}

		notice, err := mapMessageToNotice(msg)
		if err != nil {
			r.logger.Warn("dropping product notice", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			dropped = append(dropped, msg)
			continue
		}
		notice.Commit = func(ctx context.Context) error {
			return reader.CommitMessages(ctx, msg)
		}
		notices = append(notices, notice)
		lastMsg = msg
	}

	if len(dropped) == 0 {
		return notices, nil
	}
	if len(notices) == 0 {
		if err := reader.CommitMessages(ctx, dropped...); err != nil {
			r.logger.Warn("commit offset failed", "error", err, "messages", len(dropped))
		}
		return notices, nil
	}
	// One call, so each partition commits its highest offset.
	pending := append([]kafkago.Message{lastMsg}, dropped...)
	notices[len(notices)-1].Commit = func(ctx context.Context) error {
		return reader.CommitMessages(ctx, pending...)
	}
	return notices, nil
}

// Rewind drops the fetch position of the current consumer. Kafka-go does not
// allow SetOffset on a group reader, so the consumer is replaced and the new
// one rejoins the group at its committed offsets.
func (r *Reader) Rewind(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reader.Close(); err != nil {
		r.logger.Warn("close consumer for rewind", "error", err)
	}
	r.reader = newGroupReader(r.cfg)
	r.logger.Info("consumer rewound to committed offsets", "topic", r.cfg.KafkaSourceTopic, "group", r.cfg.KafkaGroupID)
	return nil
}

// Close shuts down the consumer.
func (r *Reader) Close() error {
	return r.current().Close()
}

// productMessage is the JSON form of a notice. A bare product identifier is
// accepted as well.
type productMessage struct {
	ProductID string `json:"product_id"`
}

// mapMessageToNotice extracts the product identifier from a Kafka message.
func mapMessageToNotice(msg kafkago.Message) (domain.ProductNotice, error) {
	id := strings.TrimSpace(string(msg.Value))
	if bytes.HasPrefix(bytes.TrimSpace(msg.Value), []byte("{")) {
		var pm productMessage
		if err := json.Unmarshal(msg.Value, &pm); err != nil {
			return domain.ProductNotice{}, fmt.Errorf("decode product notice: %w: %w", domain.ErrMalformedInput, err)
		}
		id = strings.TrimSpace(pm.ProductID)
	}
	if _, err := domain.ParseProductID(id); err != nil {
		return domain.ProductNotice{}, fmt.Errorf("product notice %q: %w: %w", id, domain.ErrMalformedInput, err)
	}
	return domain.ProductNotice{
		ProductID: id,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}
