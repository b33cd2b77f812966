package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutime/edutime-server/models"
)

// fakeStore is an in-memory Store with the same guard-inside-commit
// semantics as the production implementation.
type fakeStore struct {
	cfg      Config
	users    map[string]*models.User
	families map[string]*models.Family
	rate     map[string]*models.RateLimitRecord
	windows  []Interval
	ratio    float64

	balance        int64
	lifetimeEarned int64
	sessions       []models.Session
	commits        int
	commitErr      error
}

func newFakeStore(cfg Config) *fakeStore {
	child := "child-1"
	parent := "parent-1"
	familyID := "family-1"
	return &fakeStore{
		cfg: cfg,
		users: map[string]*models.User{
			child:      {UID: child, Role: models.RoleChild, FamilyID: &familyID},
			parent:     {UID: parent, Role: models.RoleParent, FamilyID: &familyID},
			"outsider": {UID: "outsider", Role: models.RoleChild},
		},
		families: map[string]*models.Family{
			familyID: {
				ID:         familyID,
				OwnerUID:   parent,
				ParentUIDs: models.StringList{parent},
				ChildUIDs:  models.StringList{child},
			},
		},
		rate:  map[string]*models.RateLimitRecord{},
		ratio: 1.0,
	}
}

func (f *fakeStore) User(_ context.Context, uid string) (*models.User, error) {
	if u, ok := f.users[uid]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) Family(_ context.Context, id string) (*models.Family, error) {
	if fam, ok := f.families[id]; ok {
		return fam, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) RateState(_ context.Context, childUID string) (*models.RateLimitRecord, error) {
	return f.rate[childUID], nil
}

func (f *fakeStore) SessionWindows(_ context.Context, _ string, _ time.Time) ([]Interval, error) {
	return f.windows, nil
}

func (f *fakeStore) StudyRatio(_ context.Context, _ string) (float64, error) {
	return f.ratio, nil
}

func (f *fakeStore) WalletBalance(_ context.Context, _ string) (int64, error) {
	return f.balance, nil
}

func (f *fakeStore) Commit(_ context.Context, c *Commit) (int64, error) {
	if f.commitErr != nil {
		return 0, f.commitErr
	}

	rec := f.rate[c.ChildUID]
	if rec == nil {
		rec = &models.RateLimitRecord{ChildUID: c.ChildUID}
		f.rate[c.ChildUID] = rec
	}
	if err := CheckGuard(rec, c.BatchID, c.ReceivedAt, f.cfg.RateWindow, f.cfg.MaxRequestsPerWindow); err != nil {
		return 0, err
	}

	f.sessions = append(f.sessions, c.Sessions...)
	f.balance += c.TotalEarnedSeconds
	f.lifetimeEarned += c.TotalEarnedSeconds
	rec.RequestTimestamps = append(rec.RequestTimestamps, c.ReceivedAt.UnixMilli())
	rec.ProcessedBatches = append(rec.ProcessedBatches, c.BatchID)
	f.commits++
	return f.balance, nil
}

func newTestPipeline(store *fakeStore) *Pipeline {
	return NewPipeline(store, store.cfg, zap.NewNop().Sugar())
}

func studyRequest(batchID string, events ...ActivityEvent) *SyncRequest {
	return &SyncRequest{
		ChildID:             testChild,
		Events:              events,
		DeviceInfo:          DeviceInfo{DeviceID: "device-1", AppVersion: "1.4.0"},
		BatchID:             batchID,
		ClientSyncTimestamp: time.Now().UnixMilli(),
	}
}

func TestSync_HappyPath(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)
	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-1", ev))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ProcessedEvents)
	assert.Equal(t, 0, resp.RejectedEvents)
	require.NotNil(t, resp.WalletBalance)
	assert.Equal(t, int64(1800), *resp.WalletBalance)
	assert.Equal(t, int64(1800), store.balance)
	require.Len(t, store.sessions, 1)
	assert.Equal(t, int64(1800), store.sessions[0].EarnedSeconds)
	assert.Equal(t, "device-1", store.sessions[0].DeviceID)
}

func TestSync_Idempotence(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)

	first, err := p.Sync(context.Background(), testChild, studyRequest("batch-1", ev))
	require.NoError(t, err)
	require.Equal(t, 1, first.ProcessedEvents)

	// Same batch id again: no additional ledger effect, reported as
	// already applied.
	second, err := p.Sync(context.Background(), testChild, studyRequest("batch-1", ev))
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, 0, second.ProcessedEvents)
	require.NotNil(t, second.WalletBalance)
	assert.Equal(t, int64(1800), *second.WalletBalance)

	assert.Equal(t, 1, store.commits)
	assert.Equal(t, int64(1800), store.balance)
	assert.Len(t, store.sessions, 1)
}

func TestSync_LifetimeEarnedMonotonic(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	base := time.Now().Add(-12 * time.Hour)
	prev := int64(0)
	for i := 0; i < 5; i++ {
		ev := eventAt(base.Add(time.Duration(i)*time.Hour), 1800)
		_, err := p.Sync(context.Background(), testChild, studyRequest(fmt.Sprintf("batch-%d", i), ev))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, store.lifetimeEarned, prev)
		prev = store.lifetimeEarned
	}
	assert.Equal(t, int64(5*1800), store.lifetimeEarned)
}

func TestSync_RatioApplied(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	store.ratio = 0.5
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1801)
	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-1", ev))

	require.NoError(t, err)
	require.NotNil(t, resp.WalletBalance)
	// floor(1801 * 0.5) = 900
	assert.Equal(t, int64(900), *resp.WalletBalance)
}

func TestSync_LeisureEarnsNothing(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)
	ev.Type = "leisure"
	ev = signedEvent(testChild, ev)

	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-1", ev))

	require.NoError(t, err)
	assert.Equal(t, 1, resp.ProcessedEvents)
	assert.Equal(t, int64(0), store.balance)
	// The session is still recorded for overlap bookkeeping.
	require.Len(t, store.sessions, 1)
	assert.Equal(t, int64(0), store.sessions[0].EarnedSeconds)
}

func TestSync_EndToEndScenario(t *testing.T) {
	// One valid 1800s study event plus one leisure event overlapping an
	// already persisted session: 1 processed, 1 rejected, balance +1800.
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	now := time.Now()
	study := eventAt(now.Add(-2*time.Hour), 1800)

	leisureStart := now.Add(-5 * time.Hour)
	leisure := signedEvent(testChild, ActivityEvent{
		PackageName:     "com.example.game",
		DurationSeconds: 1200,
		Type:            "leisure",
		StartTimestamp:  leisureStart.UnixMilli(),
		EndTimestamp:    leisureStart.Add(1200 * time.Second).UnixMilli(),
	})
	store.windows = []Interval{{
		Start: leisureStart.Add(-5 * time.Minute).UnixMilli(),
		End:   leisureStart.Add(10 * time.Minute).UnixMilli(),
	}}

	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-e2e", study, leisure))

	require.NoError(t, err)
	assert.Equal(t, 1, resp.ProcessedEvents)
	assert.Equal(t, 1, resp.RejectedEvents)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].EventIndex)
	assert.Equal(t, CodeDuplicateEvent, resp.Errors[0].Code)
	require.NotNil(t, resp.WalletBalance)
	assert.Equal(t, int64(1800), *resp.WalletBalance)
	assert.Equal(t, 1, store.commits)
}

func TestSync_EmptyBatchTrivialSuccess(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-empty"))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, resp.ProcessedEvents)
	assert.Equal(t, 0, resp.RejectedEvents)
	assert.Equal(t, 0, store.commits)
}

func TestSync_OversizedBatchRejected(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	events := make([]ActivityEvent, 101)
	base := time.Now().Add(-20 * time.Hour)
	for i := range events {
		events[i] = eventAt(base.Add(time.Duration(i)*10*time.Minute), 60)
	}

	_, err := p.Sync(context.Background(), testChild, studyRequest("batch-big", events...))

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, CodeInvalidArgument, be.Code)
	assert.Equal(t, 0, store.commits)
}

func TestSync_RateLimited(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	now := time.Now()
	var recent models.Int64List
	for i := 0; i < 10; i++ {
		recent = append(recent, now.Add(-time.Duration(i)*time.Second).UnixMilli())
	}
	store.rate[testChild] = &models.RateLimitRecord{ChildUID: testChild, RequestTimestamps: recent}

	ev := eventAt(now.Add(-1*time.Hour), 1800)
	_, err := p.Sync(context.Background(), testChild, studyRequest("batch-11th", ev))

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, store.commits)
}

func TestSync_AuthorizationGate(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)

	t.Run("child syncs for itself", func(t *testing.T) {
		_, err := p.Sync(context.Background(), testChild, studyRequest("batch-a", ev))
		assert.NoError(t, err)
	})

	t.Run("parent syncs for child", func(t *testing.T) {
		_, err := p.Sync(context.Background(), "parent-1", studyRequest("batch-b",
			eventAt(time.Now().Add(-8*time.Hour), 1800)))
		assert.NoError(t, err)
	})

	t.Run("unrelated user denied", func(t *testing.T) {
		_, err := p.Sync(context.Background(), "outsider", studyRequest("batch-c", ev))
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("unknown caller denied", func(t *testing.T) {
		_, err := p.Sync(context.Background(), "ghost", studyRequest("batch-d", ev))
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("missing caller unauthenticated", func(t *testing.T) {
		_, err := p.Sync(context.Background(), "", studyRequest("batch-e", ev))
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestSync_AllRejectedStillRecordsBatch(t *testing.T) {
	// A batch whose every event fails validation still marks the batch id
	// as processed so a retry does not revalidate it.
	store := newFakeStore(DefaultConfig(testSecret))
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 5) // too short
	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-bad", ev))

	require.NoError(t, err)
	assert.Equal(t, 0, resp.ProcessedEvents)
	assert.Equal(t, 1, resp.RejectedEvents)
	assert.Equal(t, 1, store.commits)
	assert.True(t, store.rate[testChild].HasBatch("batch-bad"))

	second, err := p.Sync(context.Background(), testChild, studyRequest("batch-bad", ev))
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
}

func TestSync_CommitDuplicateRace(t *testing.T) {
	// The precheck passed but another submission committed the batch
	// first; the commit-level guard reports it and the pipeline resolves
	// to an already-processed success.
	store := newFakeStore(DefaultConfig(testSecret))
	store.commitErr = ErrDuplicateBatch
	store.balance = 1800
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)
	resp, err := p.Sync(context.Background(), testChild, studyRequest("batch-race", ev))

	require.NoError(t, err)
	assert.True(t, resp.AlreadyProcessed)
	require.NotNil(t, resp.WalletBalance)
	assert.Equal(t, int64(1800), *resp.WalletBalance)
}

func TestSync_CommitFailureAbortsWholeBatch(t *testing.T) {
	store := newFakeStore(DefaultConfig(testSecret))
	store.commitErr = fmt.Errorf("connection reset")
	p := newTestPipeline(store)

	ev := eventAt(time.Now().Add(-1*time.Hour), 1800)
	_, err := p.Sync(context.Background(), testChild, studyRequest("batch-f", ev))

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, CodeCommitFailed, be.Code)
	assert.Equal(t, int64(0), store.balance)
	assert.Empty(t, store.sessions)
}
