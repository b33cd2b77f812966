package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutime/edutime-server/activity"
	"github.com/edutime/edutime-server/config"
	"github.com/edutime/edutime-server/utils"
)

// SyncController exposes the offline activity sync endpoint.
type SyncController struct {
	pipeline *activity.Pipeline
}

// NewSyncController builds the pipeline from application config.
func NewSyncController(db *gorm.DB) *SyncController {
	cfg := config.Get()
	pcfg := activity.Config{
		Secret:               cfg.AntiCheatSecret,
		MaxEventsPerBatch:    cfg.SyncMaxEventsPerBatch,
		MaxRequestsPerWindow: cfg.SyncMaxRequestsPerMin,
		RateWindow:           time.Minute,
		MaxTimeDrift:         time.Duration(cfg.SyncMaxTimeDriftSeconds) * time.Second,
		MaxEventDuration:     time.Duration(cfg.SyncMaxEventSeconds) * time.Second,
		MinEventDuration:     time.Duration(cfg.SyncMinEventSeconds) * time.Second,
		DefaultRatio:         cfg.DefaultStudyRatio,
	}
	store := activity.NewStore(db, pcfg)
	return &SyncController{
		pipeline: activity.NewPipeline(store, pcfg, utils.Sugar),
	}
}

// SyncActivity handles POST /sync/activity: one batch in, one aggregated
// result out. Per-event rejections ride inside a 200 response; only
// batch-level failures produce an error status.
func (s *SyncController) SyncActivity(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req activity.SyncRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid sync request: "+err.Error())
		return
	}

	resp, err := s.pipeline.Sync(ctx.Request.Context(), callerUID, &req)
	if err != nil {
		status, code := batchErrorStatus(err)
		utils.Error(ctx, status, code, err.Error())
		return
	}

	utils.Success(ctx, resp)
}

// batchErrorStatus maps pipeline batch errors onto HTTP statuses.
func batchErrorStatus(err error) (int, int) {
	var be *activity.BatchError
	if !errors.As(err, &be) {
		return http.StatusInternalServerError, 50020
	}
	switch be.Code {
	case activity.CodeUnauthenticated:
		return http.StatusUnauthorized, 40111
	case activity.CodePermissionDenied:
		return http.StatusForbidden, 40310
	case activity.CodeInvalidArgument:
		return http.StatusBadRequest, 40021
	case activity.CodeRateLimited:
		return http.StatusTooManyRequests, 42910
	default:
		return http.StatusInternalServerError, 50021
	}
}
