// Command validate audits a hail event log: it checks the header, that every
// row parses, that reflectivities respect the detection window, that every
// coordinate lies inside the configured grid, and that no scan was logged
// twice.
//
// Usage:
//
//	go run ./cmd/validate -log hail_events.csv
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/adapter/csvlog"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/config"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
	"github.com/jurlina/remote-sensing-2-hail-events/internal/projection"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// row is one parsed data row with its 1-based line number.
type row struct {
	line  int
	event domain.HailEvent
}

// maxReported caps the detailed errors printed per phase.
const maxReported = 20

func main() {
	logPath := flag.String("log", "", "path to the event log (default EVENT_LOG_PATH)")
	skipExtent := flag.Bool("skip-extent", false, "skip the grid envelope check, which projects the full grid")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if *logPath == "" {
		*logPath = cfg.EventLogPath
	}

	if code := run(*logPath, cfg, *skipExtent); code != 0 {
		os.Exit(code)
	}
}

func run(path string, cfg *config.Config, skipExtent bool) int {
	fmt.Println("=== Hail Event Log Validation ===")
	fmt.Println()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open event log: %v\n", err)
		return 1
	}
	defer f.Close()

	structure, rows := validateStructure(f)
	phases := []*phase{
		structure,
		validateThresholds(rows, cfg.Thresholds),
		validateDuplicates(rows),
	}
	if !skipExtent {
		phases = append(phases, validateExtent(rows, cfg.Geometry))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d events in %s\n", len(rows), path)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Structure ──
// Exactly one header, on the first line, and four parseable fields per row.

func validateStructure(r io.Reader) (*phase, []row) {
	p := &phase{name: "Phase 1: Structure (header and rows)"}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var rows []row
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			if line == 1 {
				p.errorf("log is empty")
			}
			break
		}
		if err != nil {
			p.errorf("line %d: %v", line, err)
			continue
		}

		isHeader := slices.Equal(rec, csvlog.Header)
		switch {
		case line == 1 && !isHeader:
			p.errorf("line 1: header is %q, want %q", rec, csvlog.Header)
		case line > 1 && isHeader:
			p.errorf("line %d: repeated header", line)
		}
		if isHeader {
			continue
		}

		ev, err := parseRow(rec)
		if err != nil {
			p.errorf("line %d: %v", line, err)
			continue
		}
		rows = append(rows, row{line: line, event: ev})
	}
	return p, rows
}

func parseRow(rec []string) (domain.HailEvent, error) {
	if len(rec) != len(csvlog.Header) {
		return domain.HailEvent{}, fmt.Errorf("%d fields, want %d", len(rec), len(csvlog.Header))
	}
	if _, err := domain.ParseScanTimestamp(rec[0]); err != nil {
		return domain.HailEvent{}, fmt.Errorf("timestamp %q: %w", rec[0], err)
	}
	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return domain.HailEvent{}, fmt.Errorf("%s %q: %w", csvlog.Header[i+1], rec[i+1], err)
		}
		vals[i] = v
	}
	return domain.HailEvent{ScanTimestamp: rec[0], Latitude: vals[0], Longitude: vals[1], ReflectivityDBZ: vals[2]}, nil
}

// ── Phase 2: Thresholds ──

func validateThresholds(rows []row, t domain.ThresholdConfig) *phase {
	p := &phase{name: "Phase 2: Reflectivity window"}
	for _, r := range rows {
		dbz := r.event.ReflectivityDBZ
		if dbz < t.ReflectivityMin || dbz >= t.ReflectivityMax {
			p.errorf("line %d: DBZH %g outside [%g, %g)", r.line, dbz, t.ReflectivityMin, t.ReflectivityMax)
		}
	}
	return p
}

// ── Phase 3: Duplicates ──
// A pixel logged twice for one scan means the product was processed twice.

func validateDuplicates(rows []row) *phase {
	p := &phase{name: "Phase 3: Duplicate detections"}
	type key struct {
		ts       string
		lat, lon float64
	}
	seen := make(map[key]int, len(rows))
	for _, r := range rows {
		k := key{r.event.ScanTimestamp, r.event.Latitude, r.event.Longitude}
		if first, ok := seen[k]; ok {
			p.errorf("line %d duplicates line %d (%s)", r.line, first, r.event.ScanTimestamp)
			continue
		}
		seen[k] = r.line
	}
	return p
}

// ── Phase 4: Grid envelope ──

func validateExtent(rows []row, geometry domain.GridGeometry) *phase {
	p := &phase{name: "Phase 4: Grid envelope"}

	projector, err := projection.NewProjector(geometry)
	if err != nil {
		p.errorf("grid geometry: %v", err)
		return p
	}
	grid, err := projector.Grid()
	if err != nil {
		p.errorf("project grid: %v", err)
		return p
	}
	extent := grid.Extent()
	for _, r := range rows {
		pos := domain.LatLon{Lat: r.event.Latitude, Lon: r.event.Longitude}
		if !extent.Contains(pos) {
			p.errorf("line %d: (%g, %g) outside grid envelope [%g..%g, %g..%g]", r.line,
				pos.Lat, pos.Lon, extent.Min.Lat, extent.Max.Lat, extent.Min.Lon, extent.Max.Lon)
		}
	}
	return p
}
