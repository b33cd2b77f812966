package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Family groups parents and children and carries the household settings
// that drive time conversion.
type Family struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id"`
	Name       string     `gorm:"size:128;not null" json:"name"`
	OwnerUID   string     `gorm:"size:64;not null;index" json:"owner_uid"`
	ParentUIDs StringList `gorm:"type:text" json:"parent_uids"`
	ChildUIDs  StringList `gorm:"type:text" json:"child_uids"`
	// GlobalRatio converts accepted study seconds into earned leisure seconds.
	GlobalRatio float64 `gorm:"not null;default:1" json:"global_ratio"`
	// PINHash is the bcrypt hash of the parental-controls PIN; empty when unset.
	PINHash    string    `gorm:"size:255" json:"-"`
	InviteCode string    `gorm:"size:16;index" json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (f *Family) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	return nil
}

// HasChild reports whether the given uid is a child of this family.
func (f *Family) HasChild(uid string) bool {
	return f.ChildUIDs.Contains(uid)
}

// HasParent reports whether the given uid is a parent of this family.
func (f *Family) HasParent(uid string) bool {
	return f.ParentUIDs.Contains(uid)
}

// SetPIN stores a bcrypt hash of the parental-controls PIN.
func (f *Family) SetPIN(pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	f.PINHash = string(hash)
	return nil
}

// VerifyPIN checks a plaintext PIN against the stored hash.
// A family without a PIN rejects all attempts.
func (f *Family) VerifyPIN(pin string) bool {
	if f.PINHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(f.PINHash), []byte(pin)) == nil
}
