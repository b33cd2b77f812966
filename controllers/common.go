package controllers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutime/edutime-server/middleware"
	"github.com/edutime/edutime-server/models"
)

func getUID(ctx *gin.Context) (string, bool) {
	value, exists := ctx.Get(middleware.ContextUIDKey)
	if !exists {
		return "", false
	}
	uid, ok := value.(string)
	return uid, ok && uid != ""
}

// canActFor reports whether callerUID may read or mutate state belonging to
// childUID: the caller is the child, or a parent whose family lists the child.
func canActFor(db *gorm.DB, callerUID, childUID string) (bool, error) {
	if callerUID == childUID {
		return true, nil
	}

	var caller models.User
	if err := db.First(&caller, "uid = ?", callerUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if caller.Role != models.RoleParent || caller.FamilyID == nil {
		return false, nil
	}

	var family models.Family
	if err := db.First(&family, "id = ?", *caller.FamilyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return family.HasChild(childUID), nil
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}
