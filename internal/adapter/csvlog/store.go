// Package csvlog persists hail events to an append-only CSV event log.
package csvlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Header is the fixed column header of the event log.
var Header = []string{"Radar Image Timestamp", "Latitude", "Longitude", "DBZH"}

// Store appends events to a CSV file. It is the single writer for its path:
// concurrent Append calls are serialised, and each call issues one write so
// rows from different scans never interleave.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a store for path. The file is created on first append.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the log location.
func (s *Store) Path() string {
	return s.path
}

// Append writes events as rows. A missing or empty file gets the header
// first; an existing file only gains data rows. Nothing is written for an
// empty batch. There is no rollback: a crash mid-write can leave a truncated
// last row.
func (s *Store) Append(ctx context.Context, events []domain.HailEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w: %w", domain.ErrStoreWrite, err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w: %w", domain.ErrStoreWrite, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat event log: %w: %w", domain.ErrStoreWrite, err)
	}

	payload, err := encodeRows(events, info.Size() == 0)
	if err != nil {
		return fmt.Errorf("encode events: %w: %w", domain.ErrStoreWrite, err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("append event log: %w: %w", domain.ErrStoreWrite, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w: %w", domain.ErrStoreWrite, err)
	}

	s.logger.Debug("appended hail events", "path", s.path, "events", len(events), "header", info.Size() == 0)
	return nil
}

func encodeRows(events []domain.HailEvent, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if withHeader {
		if err := w.Write(Header); err != nil {
			return nil, err
		}
	}
	for _, e := range events {
		if err := w.Write(encodeEvent(e)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeEvent(e domain.HailEvent) []string {
	return []string{
		e.ScanTimestamp,
		formatFloat(e.Latitude),
		formatFloat(e.Longitude),
		formatFloat(e.ReflectivityDBZ),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ErrBadHeader is returned by Read when the first row is not Header.
var ErrBadHeader = errors.New("event log header mismatch")

// Read parses an event log. It fails on a missing or wrong header and on any
// row that does not decode; row numbers in errors are 1-based file lines.
func Read(r io.Reader) ([]domain.HailEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: %w", ErrBadHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range Header {
		if header[i] != Header[i] {
			return nil, fmt.Errorf("%w: column %d is %q", ErrBadHeader, i+1, header[i])
		}
	}

	var events []domain.HailEvent
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("read line %d: %w", line, err)
		}
		e, err := decodeEvent(rec)
		if err != nil {
			return events, fmt.Errorf("decode line %d: %w", line, err)
		}
		events = append(events, e)
	}
}

// ReadFile opens and parses the event log at path.
func ReadFile(path string) ([]domain.HailEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func decodeEvent(rec []string) (domain.HailEvent, error) {
	if _, err := domain.ParseScanTimestamp(rec[0]); err != nil {
		return domain.HailEvent{}, err
	}
	lat, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return domain.HailEvent{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return domain.HailEvent{}, fmt.Errorf("longitude: %w", err)
	}
	dbz, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return domain.HailEvent{}, fmt.Errorf("dbzh: %w", err)
	}
	return domain.HailEvent{ScanTimestamp: rec[0], Latitude: lat, Longitude: lon, ReflectivityDBZ: dbz}, nil
}
