package domain

import "context"

// ProductNotice announces that a product is staged and ready to scan.
// Offsets are only meaningful for broker-backed sources.
type ProductNotice struct {
	ProductID string
	Topic     string
	Partition int
	Offset    int64

	// Commit acknowledges the notice. It is nil for sources without offsets.
	Commit func(ctx context.Context) error
}
