package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ProductIDLayout is the time layout of a product identifier (YYYYMMDDHHMM).
const ProductIDLayout = "200601021504"

// ScanTimestampLayout is the layout written to the event log.
const ScanTimestampLayout = "2006-01-02 15:04:05"

// productLag is how far behind wall-clock time the newest complete composite is.
const productLag = 12 * time.Minute

// ParseProductID validates a product identifier and returns its nominal time in UTC.
func ParseProductID(id string) (time.Time, error) {
	t, err := time.Parse(ProductIDLayout, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse product id %q: %w", id, err)
	}
	return t.UTC(), nil
}

// FormatProductID renders t as a product identifier.
func FormatProductID(t time.Time) string {
	return t.UTC().Format(ProductIDLayout)
}

// DefaultProductTime picks the product to process when none is requested:
// the quarter hour at or before now minus the publication lag.
func DefaultProductTime(now time.Time) time.Time {
	return now.UTC().Add(-productLag).Truncate(15 * time.Minute)
}

// ProductIDFromPath extracts the identifier from a file name such as
// "ODC.REF_202401151430.json". The prefix is stripped, then everything from
// the first dot after it.
func ProductIDFromPath(path, prefix string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(base, prefix)
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		rest = rest[:i]
	}
	if _, err := ParseProductID(rest); err != nil {
		return "", false
	}
	return rest, true
}

// FormatScanTimestamp combines ODIM startdate (YYYYMMDD) and starttime
// (HHMMSS, or HHMM) into "YYYY-MM-DD HH:MM:SS".
func FormatScanTimestamp(startDate, startTime string) (string, error) {
	startDate = strings.TrimSpace(startDate)
	startTime = strings.TrimSpace(startTime)
	if len(startTime) == 4 {
		startTime += "00"
	}
	t, err := time.Parse("20060102150405", startDate+startTime)
	if err != nil {
		return "", fmt.Errorf("scan timestamp %q %q: %w: %w", startDate, startTime, ErrMalformedInput, err)
	}
	return t.Format(ScanTimestampLayout), nil
}

// ParseScanTimestamp parses a timestamp in the event log layout as UTC.
func ParseScanTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(ScanTimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse scan timestamp %q: %w", s, err)
	}
	return t, nil
}
