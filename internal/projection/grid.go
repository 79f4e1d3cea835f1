package projection

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// CornerTolerance is the largest accepted distance, in degrees of latitude or
// longitude, between a projected corner cell and the documented corner.
const CornerTolerance = 0.5

// Projector maps cells of one grid geometry to geographic coordinates.
// The plane origin of the grid is the forward projection of the lower-left
// corner, so cell (rows-1, 0) lands on GridGeometry.LowerLeft.
type Projector struct {
	geometry domain.GridGeometry
	laea     *LAEA
	x0, y0   float64
}

// NewProjector validates geometry and checks that the projected upper-right
// cell agrees with the documented upper-right corner. Any inconsistency is
// reported as domain.ErrProjection.
func NewProjector(geometry domain.GridGeometry) (*Projector, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}
	laea, err := NewLAEA(geometry.Origin)
	if err != nil {
		return nil, err
	}
	x0, y0, err := laea.Forward(geometry.LowerLeft)
	if err != nil {
		return nil, fmt.Errorf("anchor lower-left corner: %w", err)
	}

	p := &Projector{geometry: geometry, laea: laea, x0: x0, y0: y0}

	ur, err := p.ProjectCell(0, geometry.Columns-1)
	if err != nil {
		return nil, fmt.Errorf("project upper-right cell: %w", err)
	}
	if !near(ur, geometry.UpperRight, CornerTolerance) {
		return nil, fmt.Errorf("%w: upper-right cell projects to (%.4f, %.4f), geometry documents (%.4f, %.4f)",
			domain.ErrProjection, ur.Lat, ur.Lon, geometry.UpperRight.Lat, geometry.UpperRight.Lon)
	}
	return p, nil
}

// Geometry returns the grid geometry the projector was built for.
func (p *Projector) Geometry() domain.GridGeometry {
	return p.geometry
}

// CellXY returns the plane coordinates of a cell. Row 0 is the northern edge,
// so y counts rows up from the bottom of the grid.
func (p *Projector) CellXY(row, col int) (x, y float64) {
	x = p.x0 + float64(col)*p.geometry.CellSizeX
	y = p.y0 + float64(p.geometry.Rows-1-row)*p.geometry.CellSizeY
	return x, y
}

// ProjectCell returns the geographic position of one cell.
func (p *Projector) ProjectCell(row, col int) (domain.LatLon, error) {
	if row < 0 || row >= p.geometry.Rows || col < 0 || col >= p.geometry.Columns {
		return domain.LatLon{}, fmt.Errorf("project cell (%d, %d): %w: outside %dx%d grid",
			row, col, domain.ErrMalformedInput, p.geometry.Rows, p.geometry.Columns)
	}
	return p.laea.Inverse(p.CellXY(row, col))
}

// ProjectCells projects a set of cells, preserving their order.
func (p *Projector) ProjectCells(cells []domain.Cell) ([]domain.LatLon, error) {
	out := make([]domain.LatLon, len(cells))
	for i, c := range cells {
		pos, err := p.ProjectCell(c.Row, c.Col)
		if err != nil {
			return nil, err
		}
		out[i] = pos
	}
	return out, nil
}

// Grid projects every cell of the geometry. Rows are split across
// GOMAXPROCS workers; the result is identical to projecting cell by cell.
func (p *Projector) Grid() (*Grid, error) {
	rows, cols := p.geometry.Rows, p.geometry.Columns
	g := &Grid{
		geometry: p.geometry,
		lats:     make([]float64, rows*cols),
		lons:     make([]float64, rows*cols),
	}

	rowCh := make(chan int)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	nprocs := runtime.GOMAXPROCS(-1)
	for w := 0; w < nprocs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rowCh {
				for c := 0; c < cols; c++ {
					pos, err := p.laea.Inverse(p.CellXY(r, c))
					if err != nil {
						select {
						case errCh <- fmt.Errorf("project cell (%d, %d): %w", r, c, err):
						default:
						}
						continue
					}
					g.lats[r*cols+c] = pos.Lat
					g.lons[r*cols+c] = pos.Lon
				}
			}
		}()
	}
	for r := 0; r < rows; r++ {
		rowCh <- r
	}
	close(rowCh)
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	return g, nil
}

// Grid is the projected latitude/longitude of every cell of one geometry.
// It is read-only after construction and safe to share between goroutines.
type Grid struct {
	geometry domain.GridGeometry
	lats     []float64
	lons     []float64
}

// Geometry returns the grid geometry.
func (g *Grid) Geometry() domain.GridGeometry {
	return g.geometry
}

// Shape returns the number of rows and columns.
func (g *Grid) Shape() (rows, columns int) {
	return g.geometry.Rows, g.geometry.Columns
}

// Locate returns the projected position of (row, col).
func (g *Grid) Locate(row, col int) domain.LatLon {
	i := row*g.geometry.Columns + col
	return domain.LatLon{Lat: g.lats[i], Lon: g.lons[i]}
}

// Corners are the projected positions of the four corner cells.
type Corners struct {
	UpperLeft  domain.LatLon
	UpperRight domain.LatLon
	LowerLeft  domain.LatLon
	LowerRight domain.LatLon
}

// Corners returns the projected corner cells.
func (g *Grid) Corners() Corners {
	last, lastCol := g.geometry.Rows-1, g.geometry.Columns-1
	return Corners{
		UpperLeft:  g.Locate(0, 0),
		UpperRight: g.Locate(0, lastCol),
		LowerLeft:  g.Locate(last, 0),
		LowerRight: g.Locate(last, lastCol),
	}
}

// Extent is the geographic envelope of the projected cells.
type Extent struct {
	Min domain.LatLon
	Max domain.LatLon
}

// Contains reports whether pos lies inside the envelope.
func (e Extent) Contains(pos domain.LatLon) bool {
	return pos.Lat >= e.Min.Lat && pos.Lat <= e.Max.Lat &&
		pos.Lon >= e.Min.Lon && pos.Lon <= e.Max.Lon
}

// Extent returns the latitude/longitude envelope of every cell in the grid.
func (g *Grid) Extent() Extent {
	return Extent{
		Min: domain.LatLon{Lat: floats.Min(g.lats), Lon: floats.Min(g.lons)},
		Max: domain.LatLon{Lat: floats.Max(g.lats), Lon: floats.Max(g.lons)},
	}
}

func near(a, b domain.LatLon, tol float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tol && math.Abs(normalizeLon(a.Lon-b.Lon)) <= tol
}
