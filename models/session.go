package models

import (
	"time"

	"gorm.io/gorm"
)

// Activity kinds accepted by the sync pipeline.
const (
	KindStudy   = "study"
	KindLeisure = "leisure"
	KindBreak   = "break"
)

// Session is the persisted outcome of one accepted activity event.
// Rows are immutable once written; only the sync pipeline creates them.
type Session struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	UserUID     string  `gorm:"size:64;not null;index:idx_sessions_user_started" json:"user_uid"`
	PackageName string  `gorm:"size:255;not null" json:"package_name"`
	Kind        string  `gorm:"size:16;not null" json:"kind"`
	SubjectID   *string `gorm:"size:64" json:"subject_id"`
	// DurationSeconds is the applied duration after adjustment/capping.
	DurationSeconds int64 `gorm:"not null" json:"duration_seconds"`
	// EarnedSeconds is the leisure time credited for this session (study only).
	EarnedSeconds int64     `gorm:"not null;default:0" json:"earned_seconds"`
	StartedAt     time.Time `gorm:"not null;index:idx_sessions_user_started" json:"started_at"`
	EndedAt       time.Time `gorm:"not null" json:"ended_at"`
	DeviceID      string    `gorm:"size:128" json:"device_id"`
	AppVersion    string    `gorm:"size:32" json:"app_version"`
	// SyncedAt is the server receipt time of the batch that carried this event.
	SyncedAt  time.Time `gorm:"not null" json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate hook ensures the creation timestamp is set.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return nil
}
