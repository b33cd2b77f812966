package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edutime/edutime-server/models"
)

func TestCheckGuard_NilRecordPasses(t *testing.T) {
	err := CheckGuard(nil, "batch-1", time.Now(), time.Minute, 10)
	assert.NoError(t, err)
}

func TestCheckGuard_DuplicateBatch(t *testing.T) {
	rec := &models.RateLimitRecord{
		ChildUID:         "child-1",
		ProcessedBatches: models.StringList{"batch-1", "batch-2"},
	}
	err := CheckGuard(rec, "batch-1", time.Now(), time.Minute, 10)
	assert.ErrorIs(t, err, ErrDuplicateBatch)

	err = CheckGuard(rec, "batch-3", time.Now(), time.Minute, 10)
	assert.NoError(t, err)
}

func TestCheckGuard_RateLimited(t *testing.T) {
	now := time.Now()

	// Ten requests inside the window: the eleventh is refused.
	var recent models.Int64List
	for i := 0; i < 10; i++ {
		recent = append(recent, now.Add(-time.Duration(i)*time.Second).UnixMilli())
	}
	rec := &models.RateLimitRecord{ChildUID: "child-1", RequestTimestamps: recent}

	err := CheckGuard(rec, "batch-x", now, time.Minute, 10)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCheckGuard_OldRequestsFallOutOfWindow(t *testing.T) {
	now := time.Now()

	var stale models.Int64List
	for i := 0; i < 10; i++ {
		stale = append(stale, now.Add(-2*time.Minute).UnixMilli())
	}
	rec := &models.RateLimitRecord{ChildUID: "child-1", RequestTimestamps: stale}

	err := CheckGuard(rec, "batch-x", now, time.Minute, 10)
	assert.NoError(t, err)
}

func TestCheckGuard_DuplicateWinsOverRateLimit(t *testing.T) {
	now := time.Now()
	var recent models.Int64List
	for i := 0; i < 10; i++ {
		recent = append(recent, now.UnixMilli())
	}
	rec := &models.RateLimitRecord{
		ChildUID:          "child-1",
		RequestTimestamps: recent,
		ProcessedBatches:  models.StringList{"batch-1"},
	}

	// Checked in order: a replayed batch reports DuplicateBatch even when
	// the window is also full, so callers treat it as already applied.
	err := CheckGuard(rec, "batch-1", now, time.Minute, 10)
	assert.ErrorIs(t, err, ErrDuplicateBatch)
}
