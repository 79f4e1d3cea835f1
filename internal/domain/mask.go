package domain

import (
	"fmt"
	"math"
)

// ThresholdConfig defines the hail-candidate band. Reflectivity must fall in
// [ReflectivityMin, ReflectivityMax) and quality must be >= QualityMin.
type ThresholdConfig struct {
	ReflectivityMin float64 `json:"dbz_min"`
	ReflectivityMax float64 `json:"dbz_max" validate:"gtfield=ReflectivityMin"`
	QualityMin      float64 `json:"qind_min" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the operational band: 65 <= dBZ < 80, QIND >= 0.8.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		ReflectivityMin: 65,
		ReflectivityMax: 80,
		QualityMin:      0.8,
	}
}

// Validate rejects empty bands and quality minimums outside [0, 1].
func (c ThresholdConfig) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return fmt.Errorf("validate thresholds: %w", err)
	}
	return nil
}

// Matches reports whether a single reflectivity/quality pair is a hail
// candidate. NaN on either side never matches.
func (c ThresholdConfig) Matches(dbz, qind float64) bool {
	if math.IsNaN(dbz) || math.IsInf(dbz, 0) {
		return false
	}
	return dbz >= c.ReflectivityMin && dbz < c.ReflectivityMax && qind >= c.QualityMin
}

// Cell addresses one grid cell.
type Cell struct {
	Row int
	Col int
}

// Mask is a boolean grid of hail candidates, stored row-major.
type Mask struct {
	Rows    int
	Columns int
	cells   []bool
	count   int
}

// At reports whether (row, col) is flagged.
func (m Mask) At(row, col int) bool {
	return m.cells[row*m.Columns+col]
}

// Count returns the number of flagged cells.
func (m Mask) Count() int {
	return m.count
}

// Cells lists the flagged cells in row-major order.
func (m Mask) Cells() []Cell {
	out := make([]Cell, 0, m.count)
	for i, flagged := range m.cells {
		if flagged {
			out = append(out, Cell{Row: i / m.Columns, Col: i % m.Columns})
		}
	}
	return out
}

// HailMask flags every cell whose reflectivity and quality satisfy cfg.
// Infinite reflectivity counts as missing. The two fields must have the same
// shape; a mismatch is a caller error and returns ErrMalformedInput.
func HailMask(reflectivity, quality Field, cfg ThresholdConfig) (Mask, error) {
	if !reflectivity.SameShape(quality) {
		return Mask{}, fmt.Errorf("hail mask: %w: reflectivity is %dx%d, quality is %dx%d",
			ErrMalformedInput, reflectivity.Rows, reflectivity.Columns, quality.Rows, quality.Columns)
	}
	if len(reflectivity.Values) != reflectivity.Rows*reflectivity.Columns ||
		len(quality.Values) != quality.Rows*quality.Columns {
		return Mask{}, fmt.Errorf("hail mask: %w: field length does not match shape", ErrMalformedInput)
	}

	m := Mask{
		Rows:    reflectivity.Rows,
		Columns: reflectivity.Columns,
		cells:   make([]bool, len(reflectivity.Values)),
	}
	for i, dbz := range reflectivity.Values {
		if cfg.Matches(dbz, quality.Values[i]) {
			m.cells[i] = true
			m.count++
		}
	}
	return m, nil
}
