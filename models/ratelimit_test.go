package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitRecord_HasBatch(t *testing.T) {
	rec := &RateLimitRecord{ProcessedBatches: StringList{"a", "b"}}

	assert.True(t, rec.HasBatch("a"))
	assert.False(t, rec.HasBatch("c"))
	assert.False(t, (&RateLimitRecord{}).HasBatch("a"))
}

func TestRateLimitRecord_RequestsSince(t *testing.T) {
	now := time.Now().UnixMilli()
	rec := &RateLimitRecord{RequestTimestamps: Int64List{
		now - 120_000, // outside a one minute window
		now - 30_000,
		now - 1_000,
	}}

	assert.Equal(t, 2, rec.RequestsSince(now-60_000))
	assert.Equal(t, 3, rec.RequestsSince(now-300_000))
	assert.Equal(t, 0, rec.RequestsSince(now))
}

func TestRateLimitRecord_Prune(t *testing.T) {
	now := time.Now().UnixMilli()
	rec := &RateLimitRecord{RequestTimestamps: Int64List{
		now - 120_000,
		now - 90_000,
		now - 10_000,
	}}

	rec.Prune(now - 60_000)

	assert.Equal(t, Int64List{now - 10_000}, rec.RequestTimestamps)

	// Pruning an empty record is a no-op.
	empty := &RateLimitRecord{}
	empty.Prune(now)
	assert.Empty(t, empty.RequestTimestamps)
}
