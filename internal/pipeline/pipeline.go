package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/observability"
)

// ProductSource reads up to batchSize product notices. It may block until
// notices arrive or a flush interval passes, and may return an empty batch.
type ProductSource interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.ProductNotice, error)
}

// Rewinder is implemented by sources that can hand out again the notices
// they returned but that were never committed.
type Rewinder interface {
	Rewind(ctx context.Context) error
}

// ProductProcessor scans a single product.
type ProductProcessor interface {
	ProcessProduct(ctx context.Context, productID string) (Result, error)
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline feeds product notices from a source through a processor, one
// product at a time.
type Pipeline struct {
	source    ProductSource
	processor ProductProcessor
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int

	mu     sync.Mutex
	status domain.ProcessingStatus
}

// New creates a Pipeline with the given stages and observability.
func New(s ProductSource, proc ProductProcessor, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		source:    s,
		processor: proc,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once a product has been processed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any products yet")
	}
	return nil
}

// Status returns a snapshot of the most recent product outcome and running totals.
func (p *Pipeline) Status() domain.ProcessingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) record(productID string, res Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastProduct = productID
	p.status.LastScanTime = res.Timestamp
	p.status.LastEvents = len(res.Events)
	p.status.UpdatedAt = time.Now().UTC()
	if err != nil {
		p.status.Failed++
		p.status.LastError = err.Error()
		return
	}
	p.status.Processed++
	p.status.LastError = ""
}

// Run executes the extract-process loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-process cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	batch, err := p.source.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.ProductsConsumed.Add(float64(len(batch)))
	*backoff = initialBackoff

	for i, notice := range batch {
		res, err := p.processor.ProcessProduct(ctx, notice.ProductID)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.record(notice.ProductID, res, err)
			if errors.Is(err, domain.ErrStoreWrite) {
				p.logger.Error("store write failed", "error", err, "product", notice.ProductID)
				p.rewind(ctx, batch[i:])
				return p.backoffOrStop(ctx, backoff)
			}
			p.logger.Warn("product failed, skipping",
				"error", err,
				"kind", domain.ErrorKind(err),
				"product", notice.ProductID,
				"topic", notice.Topic,
				"partition", notice.Partition,
				"offset", notice.Offset,
			)
			p.commit(ctx, notice)
			continue
		}
		p.record(notice.ProductID, res, nil)
		p.ready.Store(true)
		p.commit(ctx, notice)
	}
	return true
}

// rewind asks the source to redeliver the uncommitted notices, starting with
// pending[0]. Notices the source cannot redeliver are logged one by one.
func (p *Pipeline) rewind(ctx context.Context, pending []domain.ProductNotice) {
	if r, ok := p.source.(Rewinder); ok {
		err := r.Rewind(ctx)
		if err == nil {
			p.logger.Warn("source rewound, products will be redelivered",
				"count", len(pending), "first", pending[0].ProductID)
			return
		}
		p.logger.Error("rewind source failed", "error", err)
	}
	for _, n := range pending {
		p.logger.Error("product not processed",
			"product", n.ProductID,
			"topic", n.Topic,
			"partition", n.Partition,
			"offset", n.Offset,
		)
	}
}

// backoffOrStop sleeps with the current backoff and advances it.
// Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commit acknowledges the notice if the source supports it.
func (p *Pipeline) commit(ctx context.Context, notice domain.ProductNotice) {
	if notice.Commit == nil {
		return
	}
	if err := notice.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", notice.Topic, "partition", notice.Partition, "offset", notice.Offset)
	}
}
