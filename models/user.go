package models

import (
	"time"

	"gorm.io/gorm"
)

// Family roles.
const (
	RoleParent   = "PARENT"
	RoleChild    = "CHILD"
	RoleObserver = "OBSERVER"
)

// User represents an account, either a parent or a child. The UID is the
// identity carried in auth tokens.
type User struct {
	UID         string         `gorm:"primaryKey;size:64" json:"uid"`
	DisplayName string         `gorm:"size:128" json:"display_name"`
	Email       string         `gorm:"size:255" json:"email"`
	Role        string         `gorm:"size:16;not null;default:CHILD" json:"role"`
	FamilyID    *string        `gorm:"size:64;index" json:"family_id"`
	Timezone    string         `gorm:"size:64" json:"timezone"`
	Status      string         `gorm:"size:16;not null;default:active" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
