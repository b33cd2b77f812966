package activity

import (
	"sort"
	"time"
)

// Outcome is the per-event validation result. Rejection is nil for
// accepted events; AppliedDuration carries the possibly corrected duration
// that the ledger applier will persist.
type Outcome struct {
	Index           int
	Event           *ActivityEvent
	Rejection       *SyncError
	AppliedDuration int64
	// Advisory is DURATION_ADJUSTED or DURATION_CAPPED when the duration
	// was corrected; the event is still accepted.
	Advisory string
}

// Accepted reports whether the event survived validation.
func (o *Outcome) Accepted() bool {
	return o.Rejection == nil
}

// Validator applies the anti-cheat checks to one batch. All checks are
// in-memory; the historical session windows are fetched by the caller
// before validation starts.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator with the given limits.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs integrity, temporal and overlap checks over a batch.
// Events are checked in client-submitted order; the intra-batch overlap
// pass uses a time-sorted view but the returned slice preserves original
// index order. The first rejection wins; rejected events are not
// re-evaluated by later rules.
func (v *Validator) Validate(childID string, events []ActivityEvent, history []Interval, now time.Time) []Outcome {
	outcomes := make([]Outcome, len(events))

	for i := range events {
		ev := &events[i]
		outcomes[i] = Outcome{Index: i, Event: ev, AppliedDuration: ev.DurationSeconds}

		if !VerifyEventHash(v.cfg.Secret, childID, ev) {
			outcomes[i].Rejection = &SyncError{
				EventIndex: i,
				Code:       CodeInvalidHash,
				Message:    "event integrity check failed",
			}
			continue
		}

		v.checkTemporal(&outcomes[i], now)
	}

	v.checkBatchOverlaps(outcomes)
	v.checkHistoryOverlaps(outcomes, history)

	return outcomes
}

// checkTemporal validates the event clock against the server clock and
// reconciles the claimed duration with the timestamp window.
func (v *Validator) checkTemporal(o *Outcome, now time.Time) {
	ev := o.Event
	serverMs := now.UnixMilli()

	if ev.EndTimestamp > serverMs+v.cfg.MaxTimeDrift.Milliseconds() {
		o.Rejection = &SyncError{
			EventIndex: o.Index,
			Code:       CodeFutureTimestamp,
			Message:    "event timestamp is in the future",
		}
		return
	}

	clientDurationMs := ev.EndTimestamp - ev.StartTimestamp
	reportedMs := ev.DurationSeconds * 1000

	// A claimed duration that disagrees with the timestamps by more than
	// 10% and more than a minute is corrected, not rejected: the window is
	// the trustworthy part because it is covered by the hash.
	diff := clientDurationMs - reportedMs
	if diff < 0 {
		diff = -diff
	}
	if diff > reportedMs/10 && diff > 60_000 {
		o.AppliedDuration = clientDurationMs / 1000
		o.Advisory = CodeDurationAdjusted
		return
	}

	maxSeconds := int64(v.cfg.MaxEventDuration / time.Second)
	if ev.DurationSeconds > maxSeconds {
		o.AppliedDuration = maxSeconds
		o.Advisory = CodeDurationCapped
		return
	}

	if ev.DurationSeconds < int64(v.cfg.MinEventDuration/time.Second) {
		o.Rejection = &SyncError{
			EventIndex: o.Index,
			Code:       CodeDurationTooShort,
			Message:    "event duration too short",
		}
	}
}

// checkBatchOverlaps rejects events that collide with an earlier event in
// the same batch. Surviving events are sorted by start time and each is
// compared with its immediate predecessor.
func (v *Validator) checkBatchOverlaps(outcomes []Outcome) {
	order := make([]*Outcome, 0, len(outcomes))
	for i := range outcomes {
		if outcomes[i].Accepted() {
			order = append(order, &outcomes[i])
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return order[a].Event.StartTimestamp < order[b].Event.StartTimestamp
	})

	for i := 1; i < len(order); i++ {
		prev, curr := order[i-1], order[i]
		if curr.Event.StartTimestamp < prev.Event.EndTimestamp {
			curr.Rejection = &SyncError{
				EventIndex: curr.Index,
				Code:       CodeOverlappingEvent,
				Message:    "event overlaps with another event in the batch",
			}
		}
	}
}

// checkHistoryOverlaps rejects events whose window intersects a session
// already committed within the trailing history window.
func (v *Validator) checkHistoryOverlaps(outcomes []Outcome, history []Interval) {
	if len(history) == 0 {
		return
	}
	for i := range outcomes {
		o := &outcomes[i]
		if !o.Accepted() {
			continue
		}
		window := Interval{Start: o.Event.StartTimestamp, End: o.Event.EndTimestamp}
		for _, existing := range history {
			if window.Overlaps(existing) {
				o.Rejection = &SyncError{
					EventIndex: o.Index,
					Code:       CodeDuplicateEvent,
					Message:    "event overlaps with existing session",
				}
				break
			}
		}
	}
}
