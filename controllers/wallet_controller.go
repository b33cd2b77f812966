package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutime/edutime-server/models"
	"github.com/edutime/edutime-server/utils"
)

// WalletController handles wallet balance reads, leisure spending and
// parent-initiated manual adjustments.
type WalletController struct {
	db *gorm.DB
}

// NewWalletController creates a new controller instance.
func NewWalletController(db *gorm.DB) *WalletController {
	return &WalletController{db: db}
}

var errInsufficientBalance = errors.New("insufficient balance")

// GetWallet returns the wallet of the caller, or of a child of the caller
// when ?childId= is given.
func (w *WalletController) GetWallet(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	target := ctx.DefaultQuery("childId", callerUID)
	allowed, err := canActFor(w.db, callerUID, target)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to check permissions")
		return
	}
	if !allowed {
		utils.Error(ctx, http.StatusForbidden, 40311, "not authorized for this wallet")
		return
	}

	var wallet models.Wallet
	if err := w.db.First(&wallet, "user_uid = ?", target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A user without any activity simply has an empty wallet.
			wallet = models.Wallet{UserUID: target}
		} else {
			utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to load wallet")
			return
		}
	}

	utils.Success(ctx, wallet)
}

type spendRequest struct {
	AmountSeconds int64  `json:"amountSeconds" binding:"required,gt=0"`
	Description   string `json:"description"`
}

// Spend deducts leisure time from the caller's own wallet. The balance can
// never go negative; a spend that exceeds it is rejected whole.
func (w *WalletController) Spend(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req spendRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid spend request")
		return
	}

	var balanceAfter int64
	err := w.db.Transaction(func(tx *gorm.DB) error {
		var wallet models.Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wallet, "user_uid = ?", callerUID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errInsufficientBalance
			}
			return err
		}

		if !wallet.CanSpend(req.AmountSeconds) {
			return errInsufficientBalance
		}

		now := time.Now()
		wallet.BalanceSeconds -= req.AmountSeconds
		wallet.LifetimeSpent += req.AmountSeconds
		wallet.LastTransactionAt = &now
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}
		balanceAfter = wallet.BalanceSeconds

		desc := req.Description
		if desc == "" {
			desc = "Leisure time spent"
		}
		record := models.Transaction{
			ID:            uuid.NewString(),
			WalletUID:     callerUID,
			Type:          models.TxSpend,
			AmountSeconds: -req.AmountSeconds,
			BalanceAfter:  wallet.BalanceSeconds,
			Description:   desc,
		}
		return tx.Create(&record).Error
	})

	if err != nil {
		if errors.Is(err, errInsufficientBalance) {
			utils.Error(ctx, http.StatusBadRequest, 40041, "insufficient balance")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to record spend")
		return
	}

	utils.Success(ctx, gin.H{"balance_seconds": balanceAfter})
}

type adjustRequest struct {
	ChildID string `json:"childId" binding:"required"`
	Type    string `json:"type" binding:"required,oneof=BONUS ADJUSTMENT PENALTY"`
	// AmountSeconds is positive for BONUS/PENALTY; ADJUSTMENT takes it signed.
	AmountSeconds int64  `json:"amountSeconds" binding:"required"`
	Description   string `json:"description"`
	PIN           string `json:"pin" binding:"required"`
}

// Adjust applies a parent-initiated manual balance change (bonus, penalty
// or signed adjustment), gated by the family PIN. A deduction larger than
// the balance clamps the wallet to zero.
func (w *WalletController) Adjust(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req adjustRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid adjust request")
		return
	}
	if req.ChildID == callerUID {
		utils.Error(ctx, http.StatusForbidden, 40312, "cannot adjust own wallet")
		return
	}

	var caller models.User
	if err := w.db.First(&caller, "uid = ?", callerUID).Error; err != nil {
		utils.Error(ctx, http.StatusForbidden, 40313, "caller profile not found")
		return
	}
	if caller.Role != models.RoleParent || caller.FamilyID == nil {
		utils.Error(ctx, http.StatusForbidden, 40314, "parent role required")
		return
	}

	var family models.Family
	if err := w.db.First(&family, "id = ?", *caller.FamilyID).Error; err != nil {
		utils.Error(ctx, http.StatusForbidden, 40315, "family not found")
		return
	}
	if !family.HasChild(req.ChildID) {
		utils.Error(ctx, http.StatusForbidden, 40316, "child not in family")
		return
	}
	if !family.VerifyPIN(req.PIN) {
		utils.Error(ctx, http.StatusForbidden, 40317, "invalid parental PIN")
		return
	}

	delta := req.AmountSeconds
	switch req.Type {
	case models.TxBonus:
		if delta < 0 {
			delta = -delta
		}
	case models.TxPenalty:
		if delta > 0 {
			delta = -delta
		}
	}

	var balanceAfter int64
	err := w.db.Transaction(func(tx *gorm.DB) error {
		var wallet models.Wallet
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wallet, "user_uid = ?", req.ChildID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			wallet = models.Wallet{UserUID: req.ChildID}
			if err := tx.Create(&wallet).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		applied := delta
		if applied < 0 && wallet.BalanceSeconds+applied < 0 {
			// Clamp deductions so the balance never goes negative.
			applied = -wallet.BalanceSeconds
		}

		now := time.Now()
		wallet.BalanceSeconds += applied
		if applied > 0 {
			wallet.LifetimeEarned += applied
		}
		wallet.LastTransactionAt = &now
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}
		balanceAfter = wallet.BalanceSeconds

		desc := req.Description
		if desc == "" {
			desc = "Manual adjustment by parent"
		}
		initiator := callerUID
		record := models.Transaction{
			ID:            uuid.NewString(),
			WalletUID:     req.ChildID,
			Type:          req.Type,
			AmountSeconds: applied,
			BalanceAfter:  wallet.BalanceSeconds,
			Description:   desc,
			InitiatedBy:   &initiator,
		}
		return tx.Create(&record).Error
	})

	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to apply adjustment")
		return
	}

	utils.Success(ctx, gin.H{"balance_seconds": balanceAfter})
}

// ListTransactions returns the audit trail for a wallet, newest first.
func (w *WalletController) ListTransactions(ctx *gin.Context) {
	callerUID, ok := getUID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	target := ctx.DefaultQuery("childId", callerUID)
	allowed, err := canActFor(w.db, callerUID, target)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to check permissions")
		return
	}
	if !allowed {
		utils.Error(ctx, http.StatusForbidden, 40311, "not authorized for this wallet")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var total int64
	if err := w.db.Model(&models.Transaction{}).Where("wallet_uid = ?", target).Count(&total).Error; err != nil {
		total = 0
	}

	var txs []models.Transaction
	if err := w.db.Where("wallet_uid = ?", target).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to load transactions")
		return
	}

	utils.Success(ctx, gin.H{
		"items":     txs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
