package models

import (
	"time"

	"gorm.io/gorm"
)

// Wallet stores a user's earned time balance. Time earned through study
// sessions can be spent on leisure. Balances are whole seconds; the balance
// never goes below zero and the lifetime counters never decrease.
type Wallet struct {
	UserUID           string     `gorm:"primaryKey;size:64" json:"user_uid"`
	BalanceSeconds    int64      `gorm:"not null;default:0" json:"balance_seconds"`
	LifetimeEarned    int64      `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeSpent     int64      `gorm:"not null;default:0" json:"lifetime_spent"`
	LastTransactionAt *time.Time `json:"last_transaction_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	return nil
}

// CanSpend reports whether the wallet covers a spend of amountSeconds.
func (w *Wallet) CanSpend(amountSeconds int64) bool {
	return amountSeconds > 0 && w.BalanceSeconds >= amountSeconds
}
