package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/database"
	"muenzbox/internal/models"
	"muenzbox/internal/repository"
)

// RefillResult reports what a weekly refill applied to one child
type RefillResult struct {
	ChildID          int64
	Coins            map[models.DeviceClass]int
	PocketMoneyCents int64
}

// LedgerService pairs every balance mutation with exactly one audit row
// inside a single transaction.
type LedgerService struct {
	db       *database.DB
	children *repository.ChildRepository
	ledger   *repository.LedgerRepository
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *database.DB, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		db:       db,
		children: repository.NewChildRepository(db),
		ledger:   repository.NewLedgerRepository(db),
		now:      time.Now,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// SetClock replaces the time source
func (s *LedgerService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *LedgerService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyDelta adds delta to current within [0, hi] without overflowing.
func applyDelta(current, delta, hi int) int {
	switch {
	case delta > hi-current:
		return hi
	case delta < -current:
		return 0
	}
	return current + delta
}

// Adjust applies delta to one coin balance, clamped to [0, max], and logs the
// effective delta. A clamp that leaves the balance unchanged writes nothing.
func (s *LedgerService) Adjust(ctx context.Context, childID int64, class models.DeviceClass, delta int, reason models.LogReason) (int, error) {
	if !class.Valid() {
		return 0, ErrInvalidDeviceClass
	}

	var balance int
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		child, err := children.GetForUpdate(ctx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}

		current := child.Coins(class)
		balance = applyDelta(current, delta, child.MaxCoins(class))
		effective := balance - current
		if effective == 0 {
			return nil
		}

		now := s.timestamp()
		if err := children.SetCoins(ctx, childID, class, balance, now); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).InsertCoinLog(ctx, &models.CoinLogEntry{
			ChildID: childID, CoinType: class, Delta: effective, Reason: reason, CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("child_id", childID).Str("device_class", string(class)).
		Int("delta", delta).Int("balance", balance).Str("reason", string(reason)).Msg("coins adjusted")
	return balance, nil
}

// Debit spends exactly n coins inside the caller's transaction. It never
// applies a partial debit.
func (s *LedgerService) Debit(ctx context.Context, tx *database.Tx, childID int64, class models.DeviceClass, n int) error {
	now := s.timestamp()
	ok, err := s.children.WithTx(tx).DebitCoins(ctx, childID, class, n, now)
	if err != nil {
		return err
	}
	if !ok {
		child, err := s.children.WithTx(tx).GetByID(ctx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}
		return insufficientCoins(child.Coins(class))
	}
	return s.ledger.WithTx(tx).InsertCoinLog(ctx, &models.CoinLogEntry{
		ChildID: childID, CoinType: class, Delta: -n, Reason: models.ReasonSession, CreatedAt: now,
	})
}

// RefillChild credits one child's weekly allowance in its own transaction.
// Coins are capped and only nonzero deltas are logged; pocket money has no cap.
func (s *LedgerService) RefillChild(ctx context.Context, childID int64) (RefillResult, error) {
	result := RefillResult{ChildID: childID, Coins: map[models.DeviceClass]int{}}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		ledger := s.ledger.WithTx(tx)

		child, err := children.GetForUpdate(ctx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}
		now := s.timestamp()

		for _, class := range models.DeviceClasses {
			current := child.Coins(class)
			target := current + child.WeeklyCoins(class)
			if limit := child.MaxCoins(class); target > limit {
				target = limit
			}
			delta := target - current
			if delta <= 0 {
				continue
			}
			if err := children.SetCoins(ctx, childID, class, target, now); err != nil {
				return err
			}
			if err := ledger.InsertCoinLog(ctx, &models.CoinLogEntry{
				ChildID: childID, CoinType: class, Delta: delta, Reason: models.ReasonWeeklyRefill, CreatedAt: now,
			}); err != nil {
				return err
			}
			result.Coins[class] = delta
		}

		if weekly := child.PocketMoneyWeeklyCents; weekly > 0 {
			if err := children.SetPocketMoney(ctx, childID, child.PocketMoneyCents+weekly, now); err != nil {
				return err
			}
			if err := ledger.InsertPocketMoneyLog(ctx, &models.PocketMoneyLogEntry{
				ChildID: childID, DeltaCents: weekly, Reason: models.ReasonWeeklyRefill, CreatedAt: now,
			}); err != nil {
				return err
			}
			result.PocketMoneyCents = weekly
		}
		return nil
	})
	if err != nil {
		return RefillResult{}, fmt.Errorf("failed to refill child %d: %w", childID, err)
	}
	return result, nil
}

// AdjustPocketMoney applies deltaCents with a floor of zero and logs the
// effective change.
func (s *LedgerService) AdjustPocketMoney(ctx context.Context, childID int64, deltaCents int64, note string) (int64, error) {
	var balance int64
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		child, err := children.GetForUpdate(ctx, childID)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}

		switch current := child.PocketMoneyCents; {
		case deltaCents > math.MaxInt64-current:
			balance = math.MaxInt64
		case deltaCents < -current:
			balance = 0
		default:
			balance = current + deltaCents
		}
		effective := balance - child.PocketMoneyCents
		if effective == 0 {
			return nil
		}

		now := s.timestamp()
		if err := children.SetPocketMoney(ctx, childID, balance, now); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).InsertPocketMoneyLog(ctx, &models.PocketMoneyLogEntry{
			ChildID: childID, DeltaCents: effective, Reason: models.ReasonAdminAdjust, Note: note, CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Int64("child_id", childID).Int64("delta_cents", deltaCents).
		Int64("balance_cents", balance).Msg("pocket money adjusted")
	return balance, nil
}

// ListCoinLog returns coin log entries, newest first
func (s *LedgerService) ListCoinLog(ctx context.Context, filter models.LogFilter) ([]models.CoinLogEntry, error) {
	return s.ledger.ListCoinLog(ctx, filter.Normalize())
}

// ListPocketMoneyLog returns pocket money log entries, newest first
func (s *LedgerService) ListPocketMoneyLog(ctx context.Context, filter models.LogFilter) ([]models.PocketMoneyLogEntry, error) {
	return s.ledger.ListPocketMoneyLog(ctx, filter.Normalize())
}
