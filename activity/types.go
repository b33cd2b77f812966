// Package activity implements the offline activity sync pipeline: it takes
// batches of locally recorded events from client devices, validates them
// against cheating (forged hashes, impossible durations, overlapping time
// windows, replayed batches) and converts accepted study time into wallet
// balance in a single atomic commit.
package activity

import "time"

// ActivityEvent is one client-recorded activity interval. Events are not
// persisted as-is; accepted ones become Session rows.
type ActivityEvent struct {
	PackageName     string  `json:"packageName" binding:"required"`
	DurationSeconds int64   `json:"durationSeconds" binding:"required,gt=0"`
	ClientHash      string  `json:"clientHash" binding:"required"`
	Type            string  `json:"type" binding:"required,oneof=study leisure break"`
	SubjectID       *string `json:"subjectId"`
	// Client clock, epoch milliseconds.
	StartTimestamp int64   `json:"startTimestamp" binding:"required"`
	EndTimestamp   int64   `json:"endTimestamp" binding:"required"`
	SessionID      *string `json:"sessionId"`
}

// DeviceInfo describes the submitting device, recorded on every session.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId" binding:"required"`
	OSVersion  string `json:"osVersion"`
	AppVersion string `json:"appVersion"`
	Timezone   string `json:"timezone"`
}

// SyncRequest is the batch sync envelope. BatchID is the client-chosen
// idempotency key: resubmitting the same batch has no additional effect.
type SyncRequest struct {
	ChildID             string          `json:"childId" binding:"required"`
	Events              []ActivityEvent `json:"events"`
	DeviceInfo          DeviceInfo      `json:"deviceInfo" binding:"required"`
	BatchID             string          `json:"batchId" binding:"required"`
	ClientSyncTimestamp int64           `json:"clientSyncTimestamp"`
}

// SyncError reports why a single event was rejected.
type SyncError struct {
	EventIndex int    `json:"eventIndex"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// SyncResponse aggregates per-event outcomes for one batch.
type SyncResponse struct {
	Success         bool        `json:"success"`
	ProcessedEvents int         `json:"processedEvents"`
	RejectedEvents  int         `json:"rejectedEvents"`
	WalletBalance   *int64      `json:"walletBalance,omitempty"`
	Errors          []SyncError `json:"errors"`
	ServerTimestamp int64       `json:"serverTimestamp"`
	// AlreadyProcessed is set when the batch id was applied by an earlier
	// submission; the counters are zero and no ledger change happened.
	AlreadyProcessed bool `json:"alreadyProcessed,omitempty"`
}

// Per-event rejection codes.
const (
	CodeInvalidHash      = "INVALID_HASH"
	CodeFutureTimestamp  = "FUTURE_TIMESTAMP"
	CodeDurationTooShort = "DURATION_TOO_SHORT"
	CodeOverlappingEvent = "OVERLAPPING_EVENT"
	CodeDuplicateEvent   = "DUPLICATE_EVENT"
	// Advisory codes: the event is accepted with a corrected duration.
	CodeDurationAdjusted = "DURATION_ADJUSTED"
	CodeDurationCapped   = "DURATION_CAPPED"
)

// Interval is a half-open [Start, End) time window in epoch milliseconds.
type Interval struct {
	Start int64
	End   int64
}

// Overlaps reports whether two intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && iv.End > other.Start
}

// Config carries the pipeline tuning knobs and the anti-cheat shared secret.
type Config struct {
	Secret               string
	MaxEventsPerBatch    int
	MaxRequestsPerWindow int
	RateWindow           time.Duration
	MaxTimeDrift         time.Duration
	MaxEventDuration     time.Duration
	MinEventDuration     time.Duration
	DefaultRatio         float64
}

// DefaultConfig mirrors the limits enforced by the production service.
func DefaultConfig(secret string) Config {
	return Config{
		Secret:               secret,
		MaxEventsPerBatch:    100,
		MaxRequestsPerWindow: 10,
		RateWindow:           time.Minute,
		MaxTimeDrift:         5 * time.Minute,
		MaxEventDuration:     8 * time.Hour,
		MinEventDuration:     10 * time.Second,
		DefaultRatio:         1.0,
	}
}
