package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutime/edutime-server/models"
	"github.com/edutime/edutime-server/utils"
)

// ErrNotFound is returned by Store lookups for missing records.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the pipeline. Everything before
// Commit is read-only; Commit is the single atomic write of a batch.
type Store interface {
	// User fetches a user profile, ErrNotFound when absent.
	User(ctx context.Context, uid string) (*models.User, error)
	// Family fetches a family, ErrNotFound when absent.
	Family(ctx context.Context, id string) (*models.Family, error)
	// RateState returns the child's rate limit record, nil when absent.
	RateState(ctx context.Context, childUID string) (*models.RateLimitRecord, error)
	// SessionWindows returns the committed session intervals starting at or
	// after since, used for historical overlap detection.
	SessionWindows(ctx context.Context, childUID string, since time.Time) ([]Interval, error)
	// StudyRatio resolves the child's study-to-leisure conversion ratio.
	StudyRatio(ctx context.Context, childUID string) (float64, error)
	// WalletBalance reads the current balance, 0 when the wallet is missing.
	WalletBalance(ctx context.Context, uid string) (int64, error)
	// Commit atomically applies a validated batch and returns the
	// post-commit wallet balance. It re-checks the idempotency and rate
	// rules under a lock and fails with ErrDuplicateBatch or ErrRateLimited
	// without side effects when a concurrent submission won the race.
	Commit(ctx context.Context, c *Commit) (int64, error)
}

// Commit is the write set produced by a validated batch.
type Commit struct {
	ChildUID           string
	BatchID            string
	ReceivedAt         time.Time
	Sessions           []models.Session
	TotalEarnedSeconds int64
}

type gormStore struct {
	db  *gorm.DB
	cfg Config
}

// NewStore wraps a gorm DB in the pipeline's Store interface.
func NewStore(db *gorm.DB, cfg Config) Store {
	return &gormStore{db: db, cfg: cfg}
}

func (s *gormStore) User(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "uid = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) Family(ctx context.Context, id string) (*models.Family, error) {
	var family models.Family
	err := s.db.WithContext(ctx).First(&family, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &family, nil
}

func (s *gormStore) RateState(ctx context.Context, childUID string) (*models.RateLimitRecord, error) {
	var rec models.RateLimitRecord
	err := s.db.WithContext(ctx).First(&rec, "child_uid = ?", childUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) SessionWindows(ctx context.Context, childUID string, since time.Time) ([]Interval, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Select("started_at", "ended_at").
		Where("user_uid = ? AND started_at >= ?", childUID, since).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	windows := make([]Interval, 0, len(sessions))
	for _, sess := range sessions {
		windows = append(windows, Interval{
			Start: sess.StartedAt.UnixMilli(),
			End:   sess.EndedAt.UnixMilli(),
		})
	}
	return windows, nil
}

func ratioCacheKey(childUID string) string {
	return "family:ratio:" + childUID
}

// StudyRatio resolves the family's global ratio with a short Redis cache in
// front of the two-step user -> family lookup.
func (s *gormStore) StudyRatio(ctx context.Context, childUID string) (float64, error) {
	var cached float64
	if utils.CacheGetJSON(ratioCacheKey(childUID), &cached) && cached > 0 {
		return cached, nil
	}

	ratio := s.cfg.DefaultRatio
	user, err := s.User(ctx, childUID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if user != nil && user.FamilyID != nil {
		family, err := s.Family(ctx, *user.FamilyID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
		if family != nil && family.GlobalRatio > 0 {
			ratio = family.GlobalRatio
		}
	}

	utils.CacheSetJSON(ratioCacheKey(childUID), ratio, 10*time.Minute)
	return ratio, nil
}

func (s *gormStore) WalletBalance(ctx context.Context, uid string) (int64, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).First(&wallet, "user_uid = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return wallet.BalanceSeconds, nil
}

// Commit performs the all-or-nothing batch write: sessions, wallet
// increment, EARN transaction and rate limit state, in one DB transaction.
// The rate limit row is locked first, which serializes concurrent batches
// for the same child.
func (s *gormStore) Commit(ctx context.Context, c *Commit) (int64, error) {
	var balance int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.RateLimitRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "child_uid = ?", c.ChildUID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = models.RateLimitRecord{ChildUID: c.ChildUID}
		} else if err != nil {
			return err
		}

		// Authoritative re-check: the pre-validation guard read was not
		// part of this transaction.
		if err := CheckGuard(&rec, c.BatchID, c.ReceivedAt, s.cfg.RateWindow, s.cfg.MaxRequestsPerWindow); err != nil {
			return err
		}

		if len(c.Sessions) > 0 {
			if err := tx.Create(&c.Sessions).Error; err != nil {
				return err
			}
		}

		var wallet models.Wallet
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wallet, "user_uid = ?", c.ChildUID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			wallet = models.Wallet{UserUID: c.ChildUID}
			if err := tx.Create(&wallet).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if c.TotalEarnedSeconds > 0 {
			wallet.BalanceSeconds += c.TotalEarnedSeconds
			wallet.LifetimeEarned += c.TotalEarnedSeconds
			at := c.ReceivedAt
			wallet.LastTransactionAt = &at
			if err := tx.Save(&wallet).Error; err != nil {
				return err
			}

			batchID := c.BatchID
			earn := models.Transaction{
				ID:            uuid.NewString(),
				WalletUID:     c.ChildUID,
				Type:          models.TxEarn,
				AmountSeconds: c.TotalEarnedSeconds,
				BalanceAfter:  wallet.BalanceSeconds,
				Description:   fmt.Sprintf("Sync: %d study sessions", len(c.Sessions)),
				BatchID:       &batchID,
			}
			if err := tx.Create(&earn).Error; err != nil {
				return err
			}
		}
		balance = wallet.BalanceSeconds

		rec.Prune(c.ReceivedAt.UnixMilli() - s.cfg.RateWindow.Milliseconds())
		rec.RequestTimestamps = append(rec.RequestTimestamps, c.ReceivedAt.UnixMilli())
		rec.ProcessedBatches = append(rec.ProcessedBatches, c.BatchID)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
