package domain

import "fmt"

// HailEvent is one flagged pixel of one scan.
type HailEvent struct {
	ScanTimestamp   string  `json:"scan_timestamp"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	ReflectivityDBZ float64 `json:"dbzh"`
}

// CellLocator maps grid cells to geographic coordinates. A projected grid
// satisfies it.
type CellLocator interface {
	Shape() (rows, columns int)
	Locate(row, col int) LatLon
}

// ExtractEvents emits one HailEvent per flagged cell of mask, in row-major
// order. The locator and the cleaned reflectivity field must match the mask
// shape. An empty mask yields an empty, non-nil slice.
func ExtractEvents(mask Mask, locator CellLocator, reflectivity Field, timestamp string) ([]HailEvent, error) {
	rows, cols := locator.Shape()
	if rows != mask.Rows || cols != mask.Columns {
		return nil, fmt.Errorf("extract events: %w: grid is %dx%d, mask is %dx%d",
			ErrMalformedInput, rows, cols, mask.Rows, mask.Columns)
	}
	if reflectivity.Rows != mask.Rows || reflectivity.Columns != mask.Columns {
		return nil, fmt.Errorf("extract events: %w: reflectivity is %dx%d, mask is %dx%d",
			ErrMalformedInput, reflectivity.Rows, reflectivity.Columns, mask.Rows, mask.Columns)
	}

	events := make([]HailEvent, 0, mask.Count())
	for _, c := range mask.Cells() {
		pos := locator.Locate(c.Row, c.Col)
		events = append(events, HailEvent{
			ScanTimestamp:   timestamp,
			Latitude:        pos.Lat,
			Longitude:       pos.Lon,
			ReflectivityDBZ: reflectivity.At(c.Row, c.Col),
		})
	}
	return events, nil
}
