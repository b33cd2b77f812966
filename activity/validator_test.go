package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChild = "child-1"

func testValidator() *Validator {
	return NewValidator(DefaultConfig(testSecret))
}

// eventAt builds a signed event whose window starts at start and spans
// durationSeconds, with the claimed duration matching the window.
func eventAt(start time.Time, durationSeconds int64) ActivityEvent {
	return signedEvent(testChild, ActivityEvent{
		PackageName:     "com.example.math",
		DurationSeconds: durationSeconds,
		Type:            "study",
		StartTimestamp:  start.UnixMilli(),
		EndTimestamp:    start.Add(time.Duration(durationSeconds) * time.Second).UnixMilli(),
	})
}

func TestValidate_AcceptsCleanEvent(t *testing.T) {
	now := time.Now()
	events := []ActivityEvent{eventAt(now.Add(-1*time.Hour), 1800)}

	outcomes := testValidator().Validate(testChild, events, nil, now)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Accepted())
	assert.Equal(t, int64(1800), outcomes[0].AppliedDuration)
	assert.Empty(t, outcomes[0].Advisory)
}

func TestValidate_RejectsBadHash(t *testing.T) {
	now := time.Now()
	ev := eventAt(now.Add(-1*time.Hour), 1800)
	ev.ClientHash = "not-a-valid-hash"

	outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeInvalidHash, outcomes[0].Rejection.Code)
}

func TestValidate_HashCheckedForOtherChild(t *testing.T) {
	// A hash signed for one child must not validate for another.
	now := time.Now()
	ev := eventAt(now.Add(-1*time.Hour), 1800)

	outcomes := testValidator().Validate("child-2", []ActivityEvent{ev}, nil, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeInvalidHash, outcomes[0].Rejection.Code)
}

func TestValidate_RejectsFutureTimestamp(t *testing.T) {
	now := time.Now()
	ev := eventAt(now.Add(10*time.Minute), 1800)

	outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeFutureTimestamp, outcomes[0].Rejection.Code)
}

func TestValidate_AllowsSmallClockDrift(t *testing.T) {
	// An end timestamp within the 5 minute drift allowance passes.
	now := time.Now()
	ev := eventAt(now.Add(2*time.Minute).Add(-30*time.Minute), 1800)

	outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)
	assert.True(t, outcomes[0].Accepted())
}

func TestValidate_DurationPolicy(t *testing.T) {
	now := time.Now()

	t.Run("nine hour claim capped at eight", func(t *testing.T) {
		ev := eventAt(now.Add(-10*time.Hour), 32400)
		outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

		require.True(t, outcomes[0].Accepted())
		assert.Equal(t, int64(28800), outcomes[0].AppliedDuration)
		assert.Equal(t, CodeDurationCapped, outcomes[0].Advisory)
	})

	t.Run("five second claim rejected", func(t *testing.T) {
		ev := eventAt(now.Add(-1*time.Hour), 5)
		outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

		require.NotNil(t, outcomes[0].Rejection)
		assert.Equal(t, CodeDurationTooShort, outcomes[0].Rejection.Code)
	})

	t.Run("claim disagreeing with window adjusted", func(t *testing.T) {
		// Claims 100s but the timestamps span 400s.
		start := now.Add(-1 * time.Hour)
		ev := signedEvent(testChild, ActivityEvent{
			PackageName:     "com.example.math",
			DurationSeconds: 100,
			Type:            "study",
			StartTimestamp:  start.UnixMilli(),
			EndTimestamp:    start.Add(400 * time.Second).UnixMilli(),
		})

		outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

		require.True(t, outcomes[0].Accepted())
		assert.Equal(t, int64(400), outcomes[0].AppliedDuration)
		assert.Equal(t, CodeDurationAdjusted, outcomes[0].Advisory)
	})

	t.Run("small disagreement tolerated", func(t *testing.T) {
		// 30s off on an 1800s claim: inside both the 10% and 60s tolerances.
		start := now.Add(-1 * time.Hour)
		ev := signedEvent(testChild, ActivityEvent{
			PackageName:     "com.example.math",
			DurationSeconds: 1800,
			Type:            "study",
			StartTimestamp:  start.UnixMilli(),
			EndTimestamp:    start.Add(1830 * time.Second).UnixMilli(),
		})

		outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, nil, now)

		require.True(t, outcomes[0].Accepted())
		assert.Equal(t, int64(1800), outcomes[0].AppliedDuration)
		assert.Empty(t, outcomes[0].Advisory)
	})
}

func TestValidate_IntraBatchOverlap(t *testing.T) {
	now := time.Now()
	base := now.Add(-3 * time.Hour)

	first := eventAt(base, 1800)
	// Starts 10 minutes into the first event's window.
	second := eventAt(base.Add(10*time.Minute), 1800)

	outcomes := testValidator().Validate(testChild, []ActivityEvent{first, second}, nil, now)

	assert.True(t, outcomes[0].Accepted())
	require.NotNil(t, outcomes[1].Rejection)
	assert.Equal(t, CodeOverlappingEvent, outcomes[1].Rejection.Code)
}

func TestValidate_IntraBatchOverlapIgnoresSubmissionOrder(t *testing.T) {
	// Overlap is detected on the time-sorted view; results stay in
	// submission order. Submitting the later event first changes nothing.
	now := time.Now()
	base := now.Add(-3 * time.Hour)

	later := eventAt(base.Add(10*time.Minute), 1800)
	earlier := eventAt(base, 1800)

	outcomes := testValidator().Validate(testChild, []ActivityEvent{later, earlier}, nil, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeOverlappingEvent, outcomes[0].Rejection.Code)
	assert.Equal(t, 0, outcomes[0].Rejection.EventIndex)
	assert.True(t, outcomes[1].Accepted())
}

func TestValidate_AdjacentEventsDoNotOverlap(t *testing.T) {
	now := time.Now()
	base := now.Add(-3 * time.Hour)

	first := eventAt(base, 1800)
	second := eventAt(base.Add(1800*time.Second), 1800)

	outcomes := testValidator().Validate(testChild, []ActivityEvent{first, second}, nil, now)

	assert.True(t, outcomes[0].Accepted())
	assert.True(t, outcomes[1].Accepted())
}

func TestValidate_HistoricalOverlap(t *testing.T) {
	now := time.Now()
	base := now.Add(-3 * time.Hour)
	ev := eventAt(base, 1800)

	history := []Interval{{
		Start: base.Add(-10 * time.Minute).UnixMilli(),
		End:   base.Add(10 * time.Minute).UnixMilli(),
	}}

	outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, history, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeDuplicateEvent, outcomes[0].Rejection.Code)
}

func TestValidate_FirstRejectionWins(t *testing.T) {
	// A bad hash is reported as INVALID_HASH even when the event would
	// also collide with history.
	now := time.Now()
	base := now.Add(-3 * time.Hour)
	ev := eventAt(base, 1800)
	ev.ClientHash = "garbage"

	history := []Interval{{Start: base.UnixMilli(), End: base.Add(time.Hour).UnixMilli()}}

	outcomes := testValidator().Validate(testChild, []ActivityEvent{ev}, history, now)

	require.NotNil(t, outcomes[0].Rejection)
	assert.Equal(t, CodeInvalidHash, outcomes[0].Rejection.Code)
}

func TestValidate_PreservesIndexOrder(t *testing.T) {
	now := time.Now()
	base := now.Add(-6 * time.Hour)

	events := []ActivityEvent{
		eventAt(base.Add(2*time.Hour), 1800),
		eventAt(base, 1800),
		eventAt(base.Add(4*time.Hour), 1800),
	}

	outcomes := testValidator().Validate(testChild, events, nil, now)

	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.True(t, o.Accepted())
	}
}
