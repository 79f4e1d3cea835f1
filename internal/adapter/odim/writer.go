package odim

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// WriteOptions controls how WriteProduct stages a product.
type WriteOptions struct {
	Prefix   string
	Compress bool
	// Geometry is written as the where block when set.
	Geometry *domain.GridGeometry
}

// WriteProduct stages a scan in the layout Loader reads. It is used by the
// synthetic product generator and by tests.
func WriteProduct(dir, productID string, scan domain.RadarScan, opts WriteOptions) error {
	if _, err := domain.ParseProductID(productID); err != nil {
		return err
	}
	ts, err := domain.ParseScanTimestamp(scan.Timestamp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create product directory: %w", err)
	}

	base := opts.Prefix + productID
	ext := ".f32"
	if opts.Compress {
		ext += ".gz"
	}
	what := What{StartDate: ts.Format("20060102"), StartTime: ts.Format("150405")}

	m := Manifest{
		What:     What{Object: "COMP", StartDate: what.StartDate, StartTime: what.StartTime},
		Datasets: make(map[string]Dataset, 2),
	}
	if opts.Geometry != nil {
		m.Where = WhereFromGeometry(*opts.Geometry)
	}

	for _, ds := range []struct {
		name     string
		quantity string
		field    domain.Field
	}{
		{"dataset1", QuantityReflectivity, scan.Reflectivity},
		{"dataset2", QuantityQuality, scan.Quality},
	} {
		file := base + "." + ds.name + ext
		if err := writeArray(filepath.Join(dir, file), ds.field.Values, opts.Compress); err != nil {
			return fmt.Errorf("write %s: %w", ds.name, err)
		}
		dsWhat := what
		dsWhat.Quantity = ds.quantity
		m.Datasets[ds.name] = Dataset{
			What:  dsWhat,
			Data1: Data{File: file, Shape: [2]int{ds.field.Rows, ds.field.Columns}},
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, base+ManifestExt), append(data, '\n'), 0o644)
}

func writeArray(path string, values []float64, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	if compress {
		zw := gzip.NewWriter(f)
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}

	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	_, err = w.Write(buf)
	return err
}
