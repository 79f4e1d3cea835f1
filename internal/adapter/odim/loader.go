package odim

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// ManifestExt is the extension of product manifests.
const ManifestExt = ".json"

// DefaultMaxCells bounds the arrays a Loader accepts unless WithMaxCells
// says otherwise: the cell count of the ODC composite grid.
var DefaultMaxCells = domain.DefaultGeometry().Cells()

// Loader reads products named <prefix><id>.json from a directory.
// It implements domain.ScanLoader.
type Loader struct {
	dir      string
	prefix   string
	maxCells int
	logger   *slog.Logger
}

// NewLoader creates a loader over dir for products whose files start with prefix.
func NewLoader(dir, prefix string, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, prefix: prefix, maxCells: DefaultMaxCells, logger: logger}
}

// WithMaxCells sets the largest array, in cells, the loader will read.
// Larger manifest shapes are rejected before anything is allocated.
func (l *Loader) WithMaxCells(n int) *Loader {
	if n > 0 {
		l.maxCells = n
	}
	return l
}

// ManifestPath returns where the manifest for productID is expected.
func (l *Loader) ManifestPath(productID string) string {
	return filepath.Join(l.dir, l.prefix+productID+ManifestExt)
}

// LoadScan reads the DBZH and QIND arrays and the scan time of a product.
// A missing manifest wraps domain.ErrSourceUnavailable; missing datasets,
// attributes or array files wrap domain.ErrMalformedInput.
func (l *Loader) LoadScan(ctx context.Context, productID string) (domain.RawProduct, error) {
	if _, err := domain.ParseProductID(productID); err != nil {
		return domain.RawProduct{}, fmt.Errorf("load product: %w: %w", domain.ErrSourceUnavailable, err)
	}

	path := l.ManifestPath(productID)
	f, err := os.Open(path)
	if err != nil {
		return domain.RawProduct{}, fmt.Errorf("open product %s: %w: %w", productID, domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	var m Manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return domain.RawProduct{}, fmt.Errorf("decode manifest %s: %w: %w", path, domain.ErrMalformedInput, err)
	}

	dbzName, dbzSet, ok := m.dataset(QuantityReflectivity, "dataset1")
	if !ok {
		return domain.RawProduct{}, fmt.Errorf("product %s: %w: no %s dataset", productID, domain.ErrMalformedInput, QuantityReflectivity)
	}
	qindName, qindSet, ok := m.dataset(QuantityQuality, "dataset2")
	if !ok {
		return domain.RawProduct{}, fmt.Errorf("product %s: %w: no %s dataset", productID, domain.ErrMalformedInput, QuantityQuality)
	}

	timestamp, err := domain.FormatScanTimestamp(dbzSet.What.StartDate, dbzSet.What.StartTime)
	if err != nil {
		return domain.RawProduct{}, fmt.Errorf("product %s %s/what: %w", productID, dbzName, err)
	}

	if err := ctx.Err(); err != nil {
		return domain.RawProduct{}, err
	}
	dbz, err := l.readField(dbzSet.Data1)
	if err != nil {
		return domain.RawProduct{}, fmt.Errorf("product %s %s/data1: %w", productID, dbzName, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.RawProduct{}, err
	}
	qind, err := l.readField(qindSet.Data1)
	if err != nil {
		return domain.RawProduct{}, fmt.Errorf("product %s %s/data1: %w", productID, qindName, err)
	}

	product := domain.RawProduct{
		ID: productID,
		Scan: domain.RadarScan{
			Reflectivity: dbz,
			Quality:      qind,
			Timestamp:    timestamp,
		},
	}
	if g, ok := m.Where.Geometry(); ok {
		product.Geometry = &g
	} else {
		l.logger.Debug("product carries no usable grid metadata", "product", productID)
	}
	return product, nil
}

// List returns the identifiers of every product manifest in the directory,
// sorted chronologically.
func (l *Loader) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, l.prefix+"*"+ManifestExt))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, p := range matches {
		if id, ok := domain.ProductIDFromPath(p, l.prefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) readField(d Data) (domain.Field, error) {
	if d.File == "" {
		return domain.Field{}, fmt.Errorf("%w: no array file", domain.ErrMalformedInput)
	}
	rows, cols := d.Shape[0], d.Shape[1]
	if rows <= 0 || cols <= 0 {
		return domain.Field{}, fmt.Errorf("%w: invalid shape %v", domain.ErrMalformedInput, d.Shape)
	}
	if rows > l.maxCells || cols > l.maxCells/rows {
		return domain.Field{}, fmt.Errorf("%w: shape %v exceeds %d cells", domain.ErrMalformedInput, d.Shape, l.maxCells)
	}
	n := rows * cols

	f, err := os.Open(filepath.Join(l.dir, filepath.Base(d.File)))
	if err != nil {
		return domain.Field{}, fmt.Errorf("open array: %w: %w", domain.ErrMalformedInput, err)
	}
	defer f.Close()

	var r io.Reader = f
	if !strings.HasSuffix(d.File, ".gz") {
		info, err := f.Stat()
		if err != nil {
			return domain.Field{}, fmt.Errorf("stat array: %w: %w", domain.ErrMalformedInput, err)
		}
		if info.Size() != 4*int64(n) {
			return domain.Field{}, fmt.Errorf("%w: array is %d bytes, shape %v needs %d",
				domain.ErrMalformedInput, info.Size(), d.Shape, 4*int64(n))
		}
	} else {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return domain.Field{}, fmt.Errorf("open gzip array: %w: %w", domain.ErrMalformedInput, err)
		}
		defer zr.Close()
		r = zr
	}

	values, err := decodeFloat32s(r, n)
	if err != nil {
		return domain.Field{}, err
	}
	return domain.NewField(rows, cols, values)
}

// decodeFloat32s reads exactly n little-endian float32 values.
func decodeFloat32s(r io.Reader, n int) ([]float64, error) {
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read array: %w: %w", domain.ErrMalformedInput, err)
	}
	var extra [1]byte
	if k, _ := r.Read(extra[:]); k > 0 {
		return nil, fmt.Errorf("read array: %w: more than %d values", domain.ErrMalformedInput, n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return out, nil
}
