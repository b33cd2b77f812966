package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction types for wallet operations.
const (
	TxEarn       = "EARN"
	TxSpend      = "SPEND"
	TxBonus      = "BONUS"
	TxAdjustment = "ADJUSTMENT"
	TxPenalty    = "PENALTY"
)

// Transaction records a wallet balance change. Rows are append-only; they
// are never updated or deleted outside account removal.
type Transaction struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	WalletUID string `gorm:"size:64;not null;index" json:"wallet_uid"`
	Type      string `gorm:"size:16;not null" json:"type"`
	// AmountSeconds is positive for EARN/BONUS and negative for SPEND/PENALTY.
	AmountSeconds int64  `gorm:"not null" json:"amount_seconds"`
	BalanceAfter  int64  `gorm:"not null" json:"balance_after"`
	Description   string `gorm:"size:255" json:"description"`
	// BatchID references the sync batch that produced an EARN transaction.
	BatchID     *string   `gorm:"size:128;index" json:"batch_id"`
	SessionID   *string   `gorm:"size:64" json:"session_id"`
	InitiatedBy *string   `gorm:"size:64" json:"initiated_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeforeCreate hook ensures the creation timestamp is set.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return nil
}
