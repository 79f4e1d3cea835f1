package domain

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
)

// LatLon is a WGS-84 latitude/longitude pair in degrees.
type LatLon struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// GridGeometry describes the native Cartesian grid of a radar product.
// It is a comparable value so it can key a cache of projected grids.
type GridGeometry struct {
	CellSizeX float64 `json:"xscale" validate:"gt=0"`
	CellSizeY float64 `json:"yscale" validate:"gt=0"`
	Columns   int     `json:"xsize" validate:"gt=0"`
	Rows      int     `json:"ysize" validate:"gt=0"`

	// LowerLeft anchors the grid to the projection plane. UpperRight is only
	// checked against the projected grid.
	LowerLeft  LatLon `json:"lower_left"`
	UpperRight LatLon `json:"upper_right"`

	// Origin is the centre of the Lambert azimuthal equal-area projection.
	Origin LatLon `json:"origin"`
}

// DefaultGeometry returns the grid of the ODC composite: 1900 x 2200 cells of
// 2 km, LAEA centred at 55N 10E.
func DefaultGeometry() GridGeometry {
	return GridGeometry{
		CellSizeX:  2000.0,
		CellSizeY:  2000.0,
		Columns:    1900,
		Rows:       2200,
		LowerLeft:  LatLon{Lat: 31.746215319325056, Lon: -10.434576838640398},
		UpperRight: LatLon{Lat: 67.62103710275053, Lon: 57.81196475014995},
		Origin:     LatLon{Lat: 55.0, Lon: 10.0},
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks that extents and cell sizes are positive and that every
// coordinate is a valid latitude/longitude. Failures wrap ErrProjection.
func (g GridGeometry) Validate() error {
	for _, v := range []float64{
		g.CellSizeX, g.CellSizeY,
		g.LowerLeft.Lat, g.LowerLeft.Lon,
		g.UpperRight.Lat, g.UpperRight.Lon,
		g.Origin.Lat, g.Origin.Lon,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("validate grid geometry: %w: non-finite value", ErrProjection)
		}
	}
	if err := structValidator().Struct(g); err != nil {
		return fmt.Errorf("validate grid geometry: %w: %w", ErrProjection, err)
	}
	return nil
}

// Cells returns the number of cells in the grid.
func (g GridGeometry) Cells() int {
	return g.Rows * g.Columns
}
