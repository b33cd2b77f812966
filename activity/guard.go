package activity

import (
	"time"

	"github.com/edutime/edutime-server/models"
)

// CheckGuard applies the idempotency and rate rules to a child's
// RateLimitRecord: a known batch id fails with ErrDuplicateBatch, and a
// full request window fails with ErrRateLimited. Both abort the batch
// before any per-event work.
//
// This runs twice per batch: once before validation as a cheap fail-fast,
// and again inside the commit transaction under a row lock, where it is
// authoritative. Two concurrent submissions can both pass the first check;
// only one survives the second.
func CheckGuard(rec *models.RateLimitRecord, batchID string, now time.Time, window time.Duration, maxRequests int) error {
	if rec == nil {
		return nil
	}

	if rec.HasBatch(batchID) {
		return ErrDuplicateBatch
	}

	windowStart := now.UnixMilli() - window.Milliseconds()
	if rec.RequestsSince(windowStart) >= maxRequests {
		return ErrRateLimited
	}

	return nil
}
