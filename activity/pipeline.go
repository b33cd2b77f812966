package activity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutime/edutime-server/models"
)

// historyWindow is how far back committed sessions are checked for
// collisions with incoming events.
const historyWindow = 24 * time.Hour

// Pipeline runs the full batch sync flow: authorization gate, idempotency
// and rate guard, anti-cheat validation, ratio resolution and the atomic
// ledger commit. One Pipeline is shared across requests; all state lives in
// the injected Store.
type Pipeline struct {
	store     Store
	cfg       Config
	validator *Validator
	log       *zap.SugaredLogger
}

// NewPipeline wires a pipeline against a store.
func NewPipeline(store Store, cfg Config, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		store:     store,
		cfg:       cfg,
		validator: NewValidator(cfg),
		log:       log,
	}
}

// Sync processes one batch to completion. Batch-level failures return a
// *BatchError; per-event rejections are reported inside the response and
// never abort the batch. A duplicate batch id resolves to an
// already-processed success so client retry loops converge.
func (p *Pipeline) Sync(ctx context.Context, callerUID string, req *SyncRequest) (*SyncResponse, error) {
	now := time.Now()

	if err := p.authorize(ctx, callerUID, req.ChildID); err != nil {
		return nil, err
	}

	if len(req.Events) > p.cfg.MaxEventsPerBatch {
		return nil, invalidArgument(fmt.Sprintf("maximum %d events per batch", p.cfg.MaxEventsPerBatch))
	}

	// Fail-fast guard read. The commit re-checks the same rules under a
	// row lock, so a race between two submissions cannot double-apply.
	rec, err := p.store.RateState(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}
	if err := CheckGuard(rec, req.BatchID, now, p.cfg.RateWindow, p.cfg.MaxRequestsPerWindow); err != nil {
		if errors.Is(err, ErrDuplicateBatch) {
			return p.alreadyProcessed(ctx, req.ChildID, now), nil
		}
		return nil, err
	}

	if len(req.Events) == 0 {
		return &SyncResponse{
			Success:         true,
			Errors:          []SyncError{},
			ServerTimestamp: now.UnixMilli(),
		}, nil
	}

	if drift := now.UnixMilli() - req.ClientSyncTimestamp; drift > p.cfg.MaxTimeDrift.Milliseconds() || drift < -p.cfg.MaxTimeDrift.Milliseconds() {
		p.log.Warnw("large time drift detected",
			"childId", req.ChildID, "driftMs", drift, "clientTime", req.ClientSyncTimestamp)
	}

	history, err := p.store.SessionWindows(ctx, req.ChildID, now.Add(-historyWindow))
	if err != nil {
		return nil, err
	}
	ratio, err := p.store.StudyRatio(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}

	outcomes := p.validator.Validate(req.ChildID, req.Events, history, now)

	commit := &Commit{
		ChildUID:   req.ChildID,
		BatchID:    req.BatchID,
		ReceivedAt: now,
	}
	rejections := []SyncError{}
	for i := range outcomes {
		o := &outcomes[i]
		if !o.Accepted() {
			rejections = append(rejections, *o.Rejection)
			continue
		}
		session := p.buildSession(req, o, ratio, now)
		commit.TotalEarnedSeconds += session.EarnedSeconds
		commit.Sessions = append(commit.Sessions, session)
	}

	balance, err := p.store.Commit(ctx, commit)
	if err != nil {
		if errors.Is(err, ErrDuplicateBatch) {
			return p.alreadyProcessed(ctx, req.ChildID, now), nil
		}
		var be *BatchError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, &BatchError{Code: CodeCommitFailed, Message: err.Error()}
	}

	p.log.Infow("sync completed",
		"childId", req.ChildID,
		"batchId", req.BatchID,
		"processedEvents", len(commit.Sessions),
		"rejectedEvents", len(rejections),
		"totalEarnedSeconds", commit.TotalEarnedSeconds,
	)

	return &SyncResponse{
		Success:         true,
		ProcessedEvents: len(commit.Sessions),
		RejectedEvents:  len(rejections),
		WalletBalance:   &balance,
		Errors:          rejections,
		ServerTimestamp: now.UnixMilli(),
	}, nil
}

// buildSession converts an accepted event into its persisted Session row,
// applying the study ratio to compute earned time.
func (p *Pipeline) buildSession(req *SyncRequest, o *Outcome, ratio float64, now time.Time) models.Session {
	ev := o.Event
	var earned int64
	if ev.Type == models.KindStudy {
		earned = int64(math.Floor(float64(o.AppliedDuration) * ratio))
	}
	return models.Session{
		ID:              uuid.NewString(),
		UserUID:         req.ChildID,
		PackageName:     ev.PackageName,
		Kind:            ev.Type,
		SubjectID:       ev.SubjectID,
		DurationSeconds: o.AppliedDuration,
		EarnedSeconds:   earned,
		StartedAt:       time.UnixMilli(ev.StartTimestamp),
		EndedAt:         time.UnixMilli(ev.EndTimestamp),
		DeviceID:        req.DeviceInfo.DeviceID,
		AppVersion:      req.DeviceInfo.AppVersion,
		SyncedAt:        now,
	}
}

// alreadyProcessed builds the replay response for a duplicate batch id:
// success with zero counts and the current balance, no ledger effect.
func (p *Pipeline) alreadyProcessed(ctx context.Context, childUID string, now time.Time) *SyncResponse {
	resp := &SyncResponse{
		Success:          true,
		AlreadyProcessed: true,
		Errors:           []SyncError{},
		ServerTimestamp:  now.UnixMilli(),
	}
	if balance, err := p.store.WalletBalance(ctx, childUID); err == nil {
		resp.WalletBalance = &balance
	}
	return resp
}
