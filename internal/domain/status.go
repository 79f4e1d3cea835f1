package domain

import "time"

// ProcessingStatus is a snapshot of pipeline progress for operators.
type ProcessingStatus struct {
	LastProduct  string    `json:"last_product,omitempty"`
	LastScanTime string    `json:"last_scan_time,omitempty"`
	LastEvents   int       `json:"last_events"`
	Processed    int64     `json:"processed"`
	Failed       int64     `json:"failed"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}
