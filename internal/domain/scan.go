package domain

import (
	"context"
	"fmt"
	"math"
)

// Field is a 2-D array of float values stored row-major.
type Field struct {
	Rows    int
	Columns int
	Values  []float64
}

// NewField wraps values as a rows x columns field.
func NewField(rows, columns int, values []float64) (Field, error) {
	if rows <= 0 || columns <= 0 {
		return Field{}, fmt.Errorf("new field: %w: non-positive shape %dx%d", ErrMalformedInput, rows, columns)
	}
	if len(values) != rows*columns {
		return Field{}, fmt.Errorf("new field: %w: %d values for shape %dx%d", ErrMalformedInput, len(values), rows, columns)
	}
	return Field{Rows: rows, Columns: columns, Values: values}, nil
}

// At returns the value at (row, col).
func (f Field) At(row, col int) float64 {
	return f.Values[row*f.Columns+col]
}

// SameShape reports whether two fields have identical dimensions.
func (f Field) SameShape(o Field) bool {
	return f.Rows == o.Rows && f.Columns == o.Columns
}

// RadarScan holds the two co-registered datasets of one product.
type RadarScan struct {
	Reflectivity Field
	Quality      Field
	Timestamp    string
}

// CleanReflectivity returns a copy of the reflectivity field with infinities
// replaced by NaN. The scan itself is left untouched.
func (s RadarScan) CleanReflectivity() Field {
	cleaned := make([]float64, len(s.Reflectivity.Values))
	for i, v := range s.Reflectivity.Values {
		if math.IsInf(v, 0) {
			cleaned[i] = math.NaN()
			continue
		}
		cleaned[i] = v
	}
	return Field{Rows: s.Reflectivity.Rows, Columns: s.Reflectivity.Columns, Values: cleaned}
}

// RawProduct is what a ScanLoader hands back for one product identifier.
// Geometry is nil when the product carries no usable grid metadata.
type RawProduct struct {
	ID       string
	Scan     RadarScan
	Geometry *GridGeometry
}

// ScanLoader reads raw products. Implementations wrap ErrSourceUnavailable
// when the product has no backing file and ErrMalformedInput when expected
// datasets or attributes are absent.
type ScanLoader interface {
	LoadScan(ctx context.Context, productID string) (RawProduct, error)
}
