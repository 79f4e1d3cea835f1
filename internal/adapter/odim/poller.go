package odim

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Poller turns a product directory into a notice source by listing it on an
// interval. It implements pipeline.ProductSource and pipeline.Rewinder.
//
// Two watermarks are kept: fetched is the newest product handed out and
// committed the newest one acknowledged through its notice. Rewind moves
// fetched back to committed.
type Poller struct {
	loader       *Loader
	interval     time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	skipExisting bool

	mu        sync.Mutex
	primed    bool
	fetched   string
	committed string
}

// NewPoller creates a poller over loader's directory. When skipExisting is
// set, products already present at the first poll are treated as processed.
func NewPoller(loader *Loader, interval time.Duration, skipExisting bool, clock clockwork.Clock, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		loader:       loader,
		interval:     interval,
		clock:        clock,
		logger:       logger,
		skipExisting: skipExisting,
	}
}

// ExtractBatch returns up to batchSize products newer than the last one
// returned, oldest first. With nothing new it waits one interval and returns
// an empty batch.
func (p *Poller) ExtractBatch(ctx context.Context, batchSize int) ([]domain.ProductNotice, error) {
	ids, err := p.loader.List(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if !p.primed {
		p.primed = true
		if p.skipExisting && len(ids) > 0 {
			p.fetched = ids[len(ids)-1]
			p.committed = p.fetched
			p.logger.Info("skipping staged products", "count", len(ids), "latest", p.fetched)
		}
	}
	fetched := p.fetched
	p.mu.Unlock()

	i := sort.SearchStrings(ids, fetched)
	for i < len(ids) && ids[i] <= fetched {
		i++
	}
	fresh := ids[i:]
	if len(fresh) > batchSize {
		fresh = fresh[:batchSize]
	}

	if len(fresh) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
			return nil, nil
		}
	}

	p.mu.Lock()
	p.fetched = fresh[len(fresh)-1]
	p.mu.Unlock()

	notices := make([]domain.ProductNotice, len(fresh))
	for j, id := range fresh {
		notices[j] = domain.ProductNotice{ProductID: id, Topic: p.loader.dir, Commit: p.commitFunc(id)}
	}
	return notices, nil
}

func (p *Poller) commitFunc(id string) func(context.Context) error {
	return func(context.Context) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if id > p.committed {
			p.committed = id
		}
		return nil
	}
}

// Rewind makes the next ExtractBatch start again after the last committed
// product.
func (p *Poller) Rewind(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetched != p.committed {
		p.logger.Info("rewinding product directory", "from", p.fetched, "to", p.committed)
	}
	p.fetched = p.committed
	return nil
}
