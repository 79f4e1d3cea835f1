// Command detect scans radar composites for hail and appends the detections
// to the event log.
//
// Usage:
//
//	go run ./cmd/detect                           # the latest complete quarter-hour product
//	go run ./cmd/detect 202401151430 202401151445 # specific products
//	go run ./cmd/detect -all                      # every product in PRODUCT_DIR
//	go run ./cmd/detect -corners                  # print the grid corners and exit
//
// Settings come from the same environment variables as the service
// (PRODUCT_DIR, EVENT_LOG_PATH, DBZ_MIN, GRID_*, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/csvlog"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/odim"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/observability"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/pipeline"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

func main() {
	os.Exit(detect())
}

func detect() int {
	all := flag.Bool("all", false, "process every product found in PRODUCT_DIR")
	corners := flag.Bool("corners", false, "print the corner coordinates of the configured grid and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	if *corners {
		return printCorners(os.Stdout, cfg.Geometry)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, *all, flag.Args())
}

func run(ctx context.Context, cfg *config.Config, all bool, ids []string) int {
	logger := observability.NewLogger(cfg)
	loader := odim.NewLoader(cfg.ProductDir, cfg.ProductPrefix, logger).
		WithMaxCells(max(cfg.Geometry.Cells(), odim.DefaultMaxCells))
	store := csvlog.NewStore(cfg.EventLogPath, logger)

	processor, err := pipeline.NewProcessor(loader, projection.NewCache(cfg.GridCacheSize), store,
		pipeline.ProcessorConfig{Thresholds: cfg.Thresholds, Geometry: cfg.Geometry},
		logger, observability.NewMetrics())
	if err != nil {
		fmt.Fprintf(os.Stderr, "detection settings: %v\n", err)
		return 1
	}

	switch {
	case all:
		if ids, err = loader.List(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "list products: %v\n", err)
			return 1
		}
		if len(ids) == 0 {
			fmt.Printf("no products in %s\n", cfg.ProductDir)
			return 0
		}
	case len(ids) == 0:
		ids = []string{processor.DefaultProductID()}
	}

	failed, total := 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := processor.ProcessProduct(ctx, id)
		if err != nil {
			failed++
			fmt.Printf("%s  FAILED (%s): %v\n", id, domain.ErrorKind(err), err)
			continue
		}
		total += len(res.Events)
		fmt.Printf("%s  %s  %d hail pixel(s)\n", id, res.Timestamp, len(res.Events))
	}

	fmt.Printf("\n%d product(s), %d failed, %d event(s) appended to %s\n", len(ids), failed, total, store.Path())
	if failed > 0 {
		return 1
	}
	return 0
}

func printCorners(w io.Writer, geometry domain.GridGeometry) int {
	projector, err := projection.NewProjector(geometry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grid geometry: %v\n", err)
		return 1
	}
	grid, err := projector.Grid()
	if err != nil {
		fmt.Fprintf(os.Stderr, "project grid: %v\n", err)
		return 1
	}
	c := grid.Corners()
	for _, corner := range []struct {
		name string
		pos  domain.LatLon
	}{
		{"upper left", c.UpperLeft},
		{"upper right", c.UpperRight},
		{"lower left", c.LowerLeft},
		{"lower right", c.LowerRight},
	} {
		fmt.Fprintf(w, "%-12s lat %.6f  lon %.6f\n", corner.name, corner.pos.Lat, corner.pos.Lon)
	}
	return 0
}
