// Command synth stages a synthetic radar composite in the layout the product
// loader reads, for local end-to-end runs of detect and the service.
//
// Usage:
//
//	go run ./cmd/synth \
//	  -dir data/products \
//	  -id 202401151430 \
//	  -size 40x30 \
//	  -cells "12,20,70;12,21,66.5"
//
// Background pixels get random sub-hail reflectivity. Each listed cell
// (row,col,dbz) is written with full quality so it is detected when dbz falls
// inside the hail window.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/odim"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

type hailCell struct {
	row, col int
	dbz      float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dir := flag.String("dir", "", "directory to stage the product in (default PRODUCT_DIR)")
	id := flag.String("id", "", "product identifier YYYYMMDDHHMM (default: latest complete quarter hour)")
	size := flag.String("size", "", "grid size as COLSxROWS; the configured grid when empty")
	cellsFlag := flag.String("cells", "", "hail cells as row,col,dbz separated by ';'")
	seed := flag.Uint64("seed", 1, "seed for background reflectivity")
	compress := flag.Bool("compress", true, "gzip the data arrays")
	noWhere := flag.Bool("no-where", false, "omit grid metadata so the configured geometry is used")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *dir == "" {
		*dir = cfg.ProductDir
	}
	if *id == "" {
		*id = domain.FormatProductID(domain.DefaultProductTime(time.Now()))
	}
	productTime, err := domain.ParseProductID(*id)
	if err != nil {
		return err
	}

	geometry := cfg.Geometry
	if *size != "" {
		if geometry, err = resize(geometry, *size); err != nil {
			return err
		}
	}

	cells, err := parseCells(*cellsFlag, geometry)
	if err != nil {
		return err
	}

	scan, err := synthesize(geometry, cells, productTime, rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)))
	if err != nil {
		return err
	}

	opts := odim.WriteOptions{Prefix: cfg.ProductPrefix, Compress: *compress}
	if !*noWhere {
		opts.Geometry = &geometry
	}
	if err := odim.WriteProduct(*dir, *id, scan, opts); err != nil {
		return fmt.Errorf("write product: %w", err)
	}

	log.Printf("wrote %s%s to %s: %dx%d grid, %d hail cell(s)", cfg.ProductPrefix, *id, *dir,
		geometry.Columns, geometry.Rows, len(cells))
	return nil
}

// resize keeps the lower-left anchor and cell size and derives the
// upper-right corner for a grid of the requested size.
func resize(g domain.GridGeometry, size string) (domain.GridGeometry, error) {
	colStr, rowStr, ok := strings.Cut(size, "x")
	cols, err1 := strconv.Atoi(colStr)
	rows, err2 := strconv.Atoi(rowStr)
	if !ok || err1 != nil || err2 != nil || cols <= 0 || rows <= 0 {
		return g, fmt.Errorf("invalid -size %q: want COLSxROWS", size)
	}

	laea, err := projection.NewLAEA(g.Origin)
	if err != nil {
		return g, err
	}
	x0, y0, err := laea.Forward(g.LowerLeft)
	if err != nil {
		return g, err
	}
	ur, err := laea.Inverse(x0+float64(cols-1)*g.CellSizeX, y0+float64(rows-1)*g.CellSizeY)
	if err != nil {
		return g, err
	}
	g.Columns, g.Rows, g.UpperRight = cols, rows, ur
	return g, nil
}

func parseCells(s string, g domain.GridGeometry) ([]hailCell, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var cells []hailCell //nolint:prealloc // entries may be blank
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid cell %q: want row,col,dbz", part)
		}
		row, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		col, err2 := strconv.Atoi(strings.TrimSpace(fields[1]))
		dbz, err3 := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("invalid cell %q: want row,col,dbz", part)
		}
		if row < 0 || row >= g.Rows || col < 0 || col >= g.Columns {
			return nil, fmt.Errorf("cell %q is outside the %dx%d grid", part, g.Columns, g.Rows)
		}
		cells = append(cells, hailCell{row: row, col: col, dbz: dbz})
	}
	return cells, nil
}

func synthesize(g domain.GridGeometry, cells []hailCell, at time.Time, rng *rand.Rand) (domain.RadarScan, error) {
	n := g.Cells()
	refl := make([]float64, n)
	qual := make([]float64, n)
	for i := range refl {
		refl[i] = rng.Float64() * 45
		qual[i] = 0.5 + rng.Float64()*0.5
	}
	for _, c := range cells {
		refl[c.row*g.Columns+c.col] = c.dbz
		qual[c.row*g.Columns+c.col] = 1
	}

	dbz, err := domain.NewField(g.Rows, g.Columns, refl)
	if err != nil {
		return domain.RadarScan{}, err
	}
	qind, err := domain.NewField(g.Rows, g.Columns, qual)
	if err != nil {
		return domain.RadarScan{}, err
	}
	return domain.RadarScan{
		Reflectivity: dbz,
		Quality:      qind,
		Timestamp:    at.UTC().Format(domain.ScanTimestampLayout),
	}, nil
}
