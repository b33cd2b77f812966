package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutime/edutime-server/models"
	"github.com/edutime/edutime-server/utils"
)

// SessionController serves the committed session history produced by the
// sync pipeline.
type SessionController struct {
	db *gorm.DB
}

// NewSessionController creates a new controller instance.
func NewSessionController(db *gorm.DB) *SessionController {
	return &SessionController{db: db}
}

// ListSessions returns session history for the caller or one of their
// children, newest first.
func (s *SessionController) ListSessions(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	target := ctx.DefaultQuery("childId", callerUID)
	allowed, err := canActFor(s.db, callerUID, target)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to check permissions")
		return
	}
	if !allowed {
		utils.Error(ctx, http.StatusForbidden, 40318, "not authorized for this user")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := s.db.Where("user_uid = ?", target)
	if kind := ctx.Query("type"); kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Model(&models.Session{}).Count(&total).Error; err != nil {
		total = 0
	}

	var sessions []models.Session
	if err := query.Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sessions).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to load sessions")
		return
	}

	utils.Success(ctx, gin.H{
		"items":     sessions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
