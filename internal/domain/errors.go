package domain

import "errors"

// Error kinds reported by the pipeline. Adapters wrap one of these so callers
// can decide with errors.Is whether to skip a product or stop.
var (
	// ErrSourceUnavailable means the product could not be located or opened.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedInput means the product is missing data or metadata, or its
	// arrays do not agree in shape.
	ErrMalformedInput = errors.New("malformed input")

	// ErrProjection means the grid geometry is inconsistent.
	ErrProjection = errors.New("projection failure")

	// ErrStoreWrite means detections could not be persisted.
	ErrStoreWrite = errors.New("store write failure")
)

// ErrorKind maps an error to a short label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrProjection):
		return "projection"
	case errors.Is(err, ErrStoreWrite):
		return "store_write"
	default:
		return "unknown"
	}
}
