package models

import (
	"time"

	"gorm.io/gorm"
)

// RateLimitRecord tracks sync request frequency and processed batch ids
// per child. It is read before validation and rewritten inside the same
// transaction that commits the batch, under a row lock, so concurrent
// submissions for one child serialize on it.
type RateLimitRecord struct {
	ChildUID string `gorm:"primaryKey;size:64" json:"child_uid"`
	// RequestTimestamps holds epoch-millisecond times of recent sync
	// requests, pruned to the sliding window on every commit.
	RequestTimestamps Int64List `gorm:"type:text" json:"request_timestamps"`
	// ProcessedBatches holds every batch id ever applied for this child.
	ProcessedBatches StringList `gorm:"type:text" json:"processed_batches"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BeforeSave keeps UpdatedAt current on both insert and update paths.
func (r *RateLimitRecord) BeforeSave(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// HasBatch reports whether batchID was already applied.
func (r *RateLimitRecord) HasBatch(batchID string) bool {
	return r.ProcessedBatches.Contains(batchID)
}

// RequestsSince counts recorded requests at or after the window start.
func (r *RateLimitRecord) RequestsSince(windowStartMs int64) int {
	n := 0
	for _, ts := range r.RequestTimestamps {
		if ts > windowStartMs {
			n++
		}
	}
	return n
}

// Prune drops request timestamps older than the window start.
func (r *RateLimitRecord) Prune(windowStartMs int64) {
	kept := r.RequestTimestamps[:0]
	for _, ts := range r.RequestTimestamps {
		if ts > windowStartMs {
			kept = append(kept, ts)
		}
	}
	r.RequestTimestamps = kept
}
