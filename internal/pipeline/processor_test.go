package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/csvlog"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/odim"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/observability"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/pipeline"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

const (
	prefix    = "ODC.REF_"
	productID = "202401151430"
	scanTime  = "2024-01-15 14:30:00"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// smallGeometry is a 4x4 grid of 2 km cells whose lower-left corner sits on
// the projection origin. The upper-right corner is derived by projecting the
// grid edge so the geometry is self-consistent.
func smallGeometry(t *testing.T) domain.GridGeometry {
	t.Helper()
	origin := domain.LatLon{Lat: 55, Lon: 10}
	laea, err := projection.NewLAEA(origin)
	require.NoError(t, err)
	x, y, err := laea.Forward(origin)
	require.NoError(t, err)
	ur, err := laea.Inverse(x+3*2000, y+3*2000)
	require.NoError(t, err)
	return domain.GridGeometry{
		CellSizeX:  2000,
		CellSizeY:  2000,
		Columns:    4,
		Rows:       4,
		LowerLeft:  origin,
		UpperRight: ur,
		Origin:     origin,
	}
}

// uniformScan builds a 4x4 scan with every cell at dbz/qind, then applies overrides.
func uniformScan(t *testing.T, dbz, qind float64, overrides map[domain.Cell][2]float64) domain.RadarScan {
	t.Helper()
	refl := make([]float64, 16)
	qual := make([]float64, 16)
	for i := range refl {
		refl[i], qual[i] = dbz, qind
	}
	for c, v := range overrides {
		refl[c.Row*4+c.Col] = v[0]
		qual[c.Row*4+c.Col] = v[1]
	}
	rf, err := domain.NewField(4, 4, refl)
	require.NoError(t, err)
	qf, err := domain.NewField(4, 4, qual)
	require.NoError(t, err)
	return domain.RadarScan{Reflectivity: rf, Quality: qf, Timestamp: scanTime}
}

type fixture struct {
	dir       string
	logPath   string
	metrics   *observability.Metrics
	processor *pipeline.Processor
}

func newFixture(t *testing.T, geometry domain.GridGeometry, store pipeline.EventStore, publisher pipeline.EventPublisher) *fixture {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out", "hail_events.csv")
	if store == nil {
		store = csvlog.NewStore(logPath, discardLogger())
	}
	metrics := observability.NewMetricsForTesting()
	proc, err := pipeline.NewProcessor(
		odim.NewLoader(dir, prefix, discardLogger()),
		projection.NewCache(2),
		store,
		pipeline.ProcessorConfig{
			Thresholds: domain.DefaultThresholds(),
			Geometry:   geometry,
			Publisher:  publisher,
		},
		discardLogger(),
		metrics,
	)
	require.NoError(t, err)
	return &fixture{dir: dir, logPath: logPath, metrics: metrics, processor: proc}
}

func (f *fixture) stage(t *testing.T, scan domain.RadarScan, geometry *domain.GridGeometry) {
	t.Helper()
	require.NoError(t, odim.WriteProduct(f.dir, productID, scan, odim.WriteOptions{Prefix: prefix, Geometry: geometry}))
}

func TestProcessProduct_SingleHailCell(t *testing.T) {
	geometry := smallGeometry(t)
	f := newFixture(t, domain.DefaultGeometry(), nil, nil)
	f.stage(t, uniformScan(t, 10, 0.9, map[domain.Cell][2]float64{
		{Row: 1, Col: 2}: {70, 0.9},
		{Row: 3, Col: 3}: {math.Inf(1), 1},
	}), &geometry)

	res, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, scanTime, ev.ScanTimestamp)
	assert.Equal(t, 70.0, ev.ReflectivityDBZ)
	assert.True(t, res.GeometryFromProduct)

	assert.GreaterOrEqual(t, ev.Latitude, geometry.LowerLeft.Lat)
	assert.LessOrEqual(t, ev.Latitude, geometry.UpperRight.Lat)
	assert.GreaterOrEqual(t, ev.Longitude, geometry.LowerLeft.Lon)
	assert.LessOrEqual(t, ev.Longitude, geometry.UpperRight.Lon)

	want := res.Grid.Locate(1, 2)
	assert.InDelta(t, want.Lat, ev.Latitude, 1e-12)
	assert.InDelta(t, want.Lon, ev.Longitude, 1e-12)

	logged, err := csvlog.ReadFile(f.logPath)
	require.NoError(t, err)
	if diff := cmp.Diff(res.Events, logged); diff != "" {
		t.Fatalf("event log mismatch (-want +got):\n%s", diff)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.ProductsProcessed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.HailEvents), 0)
	assert.InDelta(t, 70, testutil.ToFloat64(f.metrics.MaxReflectivity), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.GridCache.WithLabelValues("miss")), 0)
}

func TestProcessProduct_AppendsAcrossProducts(t *testing.T) {
	geometry := smallGeometry(t)
	f := newFixture(t, geometry, nil, nil)
	f.stage(t, uniformScan(t, 10, 0.9, map[domain.Cell][2]float64{{Row: 0, Col: 0}: {66, 0.95}}), nil)

	for range 2 {
		_, err := f.processor.ProcessProduct(context.Background(), productID)
		require.NoError(t, err)
	}

	logged, err := csvlog.ReadFile(f.logPath)
	require.NoError(t, err)
	assert.Len(t, logged, 2)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.GridCache.WithLabelValues("hit")), 0)
}

func TestProcessProduct_NoHailLeavesLogUntouched(t *testing.T) {
	geometry := smallGeometry(t)
	f := newFixture(t, geometry, nil, nil)
	f.stage(t, uniformScan(t, 64.9, 1, map[domain.Cell][2]float64{
		{Row: 2, Col: 2}: {70, 0.5},
		{Row: 0, Col: 1}: {81, 1},
	}), &geometry)

	existing := []byte("Radar Image Timestamp,Latitude,Longitude,DBZH\n2024-01-15 14:15:00,55.01,10.02,66\n")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.logPath), 0o755))
	require.NoError(t, os.WriteFile(f.logPath, existing, 0o644))

	res, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.NotNil(t, res.Events)

	got, err := os.ReadFile(f.logPath)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

func TestProcessProduct_NoHailCreatesNoLog(t *testing.T) {
	geometry := smallGeometry(t)
	f := newFixture(t, geometry, nil, nil)
	f.stage(t, uniformScan(t, 20, 1, nil), nil)

	_, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)

	_, err = os.Stat(f.logPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessProduct_DefaultGeometryFallback(t *testing.T) {
	geometry := smallGeometry(t)
	f := newFixture(t, geometry, nil, nil)
	f.stage(t, uniformScan(t, 70, 1, nil), nil)

	res, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.False(t, res.GeometryFromProduct)
	assert.Len(t, res.Events, 16)
	assert.Equal(t, geometry, res.Grid.Geometry())
}

func TestProcessProduct_Errors(t *testing.T) {
	t.Run("missing product", func(t *testing.T) {
		f := newFixture(t, smallGeometry(t), nil, nil)
		_, err := f.processor.ProcessProduct(context.Background(), productID)
		require.ErrorIs(t, err, domain.ErrSourceUnavailable)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.ProductErrors.WithLabelValues("source_unavailable")), 0)
	})

	t.Run("scan does not match grid", func(t *testing.T) {
		f := newFixture(t, domain.DefaultGeometry(), nil, nil)
		f.stage(t, uniformScan(t, 70, 1, nil), nil)
		_, err := f.processor.ProcessProduct(context.Background(), productID)
		require.ErrorIs(t, err, domain.ErrMalformedInput)
		assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.ProductErrors.WithLabelValues("malformed_input")), 0)
	})

	t.Run("inconsistent geometry", func(t *testing.T) {
		geometry := smallGeometry(t)
		geometry.UpperRight = domain.LatLon{Lat: 60, Lon: 20}
		f := newFixture(t, geometry, nil, nil)
		f.stage(t, uniformScan(t, 70, 1, nil), nil)
		_, err := f.processor.ProcessProduct(context.Background(), productID)
		require.ErrorIs(t, err, domain.ErrProjection)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t, smallGeometry(t), failingStore{}, nil)
		f.stage(t, uniformScan(t, 70, 1, nil), nil)
		_, err := f.processor.ProcessProduct(context.Background(), productID)
		require.ErrorIs(t, err, domain.ErrStoreWrite)
		assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.ProductsProcessed), 0)
	})
}

func TestProcessProduct_Publishes(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, smallGeometry(t), nil, pub)
	f.stage(t, uniformScan(t, 10, 1, map[domain.Cell][2]float64{{Row: 3, Col: 0}: {75, 1}}), nil)

	res, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, productID, pub.calls[0].productID)
	assert.Equal(t, res.Events, pub.calls[0].events)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.EventsPublished), 0)
}

func TestProcessProduct_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, smallGeometry(t), nil, pub)
	f.stage(t, uniformScan(t, 70, 1, nil), nil)

	_, err := f.processor.ProcessProduct(context.Background(), productID)
	require.NoError(t, err)

	logged, err := csvlog.ReadFile(f.logPath)
	require.NoError(t, err)
	assert.Len(t, logged, 16)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.EventsPublished), 0)
}

func TestNewProcessor_InvalidThresholds(t *testing.T) {
	_, err := pipeline.NewProcessor(nil, projection.NewCache(1), nil, pipeline.ProcessorConfig{
		Thresholds: domain.ThresholdConfig{ReflectivityMin: 80, ReflectivityMax: 65, QualityMin: 0.8},
	}, discardLogger(), observability.NewMetricsForTesting())
	require.Error(t, err)
}

func TestDefaultProductID(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 14, 40, 0, 0, time.UTC))
	proc, err := pipeline.NewProcessor(nil, projection.NewCache(1), nil, pipeline.ProcessorConfig{
		Thresholds: domain.DefaultThresholds(),
		Clock:      clock,
	}, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	assert.Equal(t, "202401151415", proc.DefaultProductID())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, "202401151430", proc.DefaultProductID())
}

type failingStore struct{}

func (failingStore) Append(context.Context, []domain.HailEvent) error {
	return fmt.Errorf("append: %w: disk full", domain.ErrStoreWrite)
}

type publishCall struct {
	productID string
	events    []domain.HailEvent
}

type recordingPublisher struct {
	err   error
	calls []publishCall
}

func (p *recordingPublisher) PublishEvents(_ context.Context, productID string, events []domain.HailEvent) error {
	p.calls = append(p.calls, publishCall{productID: productID, events: events})
	return p.err
}

// flakyStore fails its first Append and then delegates.
type flakyStore struct {
	next   pipeline.EventStore
	failed bool
}

func (s *flakyStore) Append(ctx context.Context, events []domain.HailEvent) error {
	if !s.failed {
		s.failed = true
		return fmt.Errorf("append: %w: disk full", domain.ErrStoreWrite)
	}
	return s.next.Append(ctx, events)
}

func TestPipeline_PollerRecoversFromStoreFailure(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "hail_events.csv")
	ids := []string{"202401151400", "202401151415", "202401151430"}
	scan := uniformScan(t, 10, 0.9, map[domain.Cell][2]float64{{Row: 1, Col: 2}: {70, 1}})
	for _, id := range ids {
		require.NoError(t, odim.WriteProduct(dir, id, scan, odim.WriteOptions{Prefix: prefix}))
	}

	loader := odim.NewLoader(dir, prefix, discardLogger())
	metrics := observability.NewMetricsForTesting()
	proc, err := pipeline.NewProcessor(loader, projection.NewCache(1),
		&flakyStore{next: csvlog.NewStore(logPath, discardLogger())},
		pipeline.ProcessorConfig{Thresholds: domain.DefaultThresholds(), Geometry: smallGeometry(t)},
		discardLogger(), metrics)
	require.NoError(t, err)

	poller := odim.NewPoller(loader, time.Hour, false, clockwork.NewFakeClock(), discardLogger())
	p := pipeline.New(poller, proc, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Status().Processed == 3 }, 2*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	logged, err := csvlog.ReadFile(logPath)
	require.NoError(t, err)
	assert.Len(t, logged, 3, "one event per product, none lost and none duplicated")
	assert.Equal(t, int64(1), p.Status().Failed)
}
