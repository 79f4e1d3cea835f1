package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/observability"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

// EventStore persists hail events.
type EventStore interface {
	Append(ctx context.Context, events []domain.HailEvent) error
}

// EventPublisher forwards a scan's hail events downstream.
type EventPublisher interface {
	PublishEvents(ctx context.Context, productID string, events []domain.HailEvent) error
}

// ProcessorConfig carries the detection settings for a Processor.
type ProcessorConfig struct {
	Thresholds domain.ThresholdConfig
	// Geometry is used when a product carries no usable grid metadata.
	Geometry domain.GridGeometry
	// Publisher is optional.
	Publisher EventPublisher
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Result summarises one processed product.
type Result struct {
	ProductID string
	Timestamp string
	Events    []domain.HailEvent
	Grid      *projection.Grid
	// GeometryFromProduct is false when the configured default geometry was used.
	GeometryFromProduct bool
}

// Processor runs one product through load, mask, extract, and store.
type Processor struct {
	loader     domain.ScanLoader
	grids      *projection.Cache
	store      EventStore
	publisher  EventPublisher
	thresholds domain.ThresholdConfig
	geometry   domain.GridGeometry
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewProcessor validates the thresholds and returns a Processor.
func NewProcessor(loader domain.ScanLoader, grids *projection.Cache, store EventStore, cfg ProcessorConfig, logger *slog.Logger, metrics *observability.Metrics) (*Processor, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Processor{
		loader:     loader,
		grids:      grids,
		store:      store,
		publisher:  cfg.Publisher,
		thresholds: cfg.Thresholds,
		geometry:   cfg.Geometry,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// DefaultProductID names the product expected to be complete right now.
func (p *Processor) DefaultProductID() string {
	return domain.FormatProductID(domain.DefaultProductTime(p.clock.Now()))
}

// ProcessProduct scans one product and appends its hail events to the store.
// Nothing is written when no pixel qualifies. Errors wrap one of the domain
// error kinds and are counted by kind.
func (p *Processor) ProcessProduct(ctx context.Context, productID string) (Result, error) {
	res, err := p.process(ctx, productID)
	if err != nil {
		p.metrics.ProductErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
		return res, err
	}
	return res, nil
}

func (p *Processor) process(ctx context.Context, productID string) (Result, error) {
	start := p.clock.Now()
	res := Result{ProductID: productID}

	raw, err := p.loader.LoadScan(ctx, productID)
	if err != nil {
		return res, err
	}
	scan := raw.Scan
	res.Timestamp = scan.Timestamp

	geometry := p.geometry
	if raw.Geometry != nil {
		geometry = *raw.Geometry
		res.GeometryFromProduct = true
	}
	if scan.Reflectivity.Rows != geometry.Rows || scan.Reflectivity.Columns != geometry.Columns {
		return res, fmt.Errorf("product %s: %w: scan is %dx%d, grid is %dx%d", productID, domain.ErrMalformedInput,
			scan.Reflectivity.Rows, scan.Reflectivity.Columns, geometry.Rows, geometry.Columns)
	}

	grid, err := p.grid(geometry)
	if err != nil {
		return res, fmt.Errorf("product %s: %w", productID, err)
	}
	res.Grid = grid

	reflectivity := scan.CleanReflectivity()
	mask, err := domain.HailMask(reflectivity, scan.Quality, p.thresholds)
	if err != nil {
		return res, fmt.Errorf("product %s: %w", productID, err)
	}
	events, err := domain.ExtractEvents(mask, grid, reflectivity, scan.Timestamp)
	if err != nil {
		return res, fmt.Errorf("product %s: %w", productID, err)
	}
	res.Events = events

	if len(events) > 0 {
		if err := p.store.Append(ctx, events); err != nil {
			return res, fmt.Errorf("product %s: %w", productID, err)
		}
		p.publish(ctx, productID, events)
	}

	p.metrics.ProductsProcessed.Inc()
	p.metrics.HailEvents.Add(float64(len(events)))
	p.metrics.EventsPerScan.Observe(float64(len(events)))
	if m, ok := maxFinite(reflectivity.Values); ok {
		p.metrics.MaxReflectivity.Set(m)
	}
	p.metrics.ScanDuration.Observe(p.clock.Since(start).Seconds())

	p.logger.Info("product processed",
		"product", productID,
		"scan_time", scan.Timestamp,
		"events", len(events),
		"product_geometry", res.GeometryFromProduct,
	)
	return res, nil
}

func (p *Processor) grid(geometry domain.GridGeometry) (*projection.Grid, error) {
	start := time.Now()
	grid, hit, err := p.grids.Get(geometry)
	if hit {
		p.metrics.GridCache.WithLabelValues("hit").Inc()
	} else {
		p.metrics.GridCache.WithLabelValues("miss").Inc()
		if err == nil {
			p.metrics.GridBuildSeconds.Observe(time.Since(start).Seconds())
			p.logger.Debug("grid projected", "rows", geometry.Rows, "columns", geometry.Columns,
				"duration", time.Since(start))
		}
	}
	return grid, err
}

// publish is best effort: the event log is the record of truth and has
// already been written.
func (p *Processor) publish(ctx context.Context, productID string, events []domain.HailEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishEvents(ctx, productID, events); err != nil {
		p.logger.Warn("publish hail events failed", "product", productID, "events", len(events), "error", err)
		return
	}
	p.metrics.EventsPublished.Add(float64(len(events)))
}

func maxFinite(values []float64) (float64, bool) {
	m, ok := math.Inf(-1), false
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > m {
			m, ok = v, true
		}
	}
	return m, ok
}
