package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/credentials"
	"muenzbox/internal/database"
	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/security"
	"muenzbox/internal/timewindow"
	"muenzbox/internal/validation"
)

// ChildView is the admin representation of a child
type ChildView struct {
	ID                     int64                 `json:"id"`
	Name                   string                `json:"name"`
	Avatar                 string                `json:"avatar"`
	SwitchCoins            int                   `json:"switch_coins"`
	SwitchCoinsWeekly      int                   `json:"switch_coins_weekly"`
	SwitchCoinsMax         int                   `json:"switch_coins_max"`
	TVCoins                int                   `json:"tv_coins"`
	TVCoinsWeekly          int                   `json:"tv_coins_weekly"`
	TVCoinsMax             int                   `json:"tv_coins_max"`
	PocketMoneyCents       int64                 `json:"pocket_money_cents"`
	PocketMoneyWeeklyCents int64                 `json:"pocket_money_weekly_cents"`
	AllowedPeriods         []timewindow.Interval `json:"allowed_periods"`
	WeekendPeriods         []timewindow.Interval `json:"weekend_periods"`
	CreatedAt              time.Time             `json:"created_at"`
}

func newChildView(c *models.Child) ChildView {
	s := timewindow.ScheduleFor(c)
	return ChildView{
		ID: c.ID, Name: c.Name, Avatar: c.Avatar,
		SwitchCoins: c.SwitchCoins, SwitchCoinsWeekly: c.SwitchCoinsWeekly, SwitchCoinsMax: c.SwitchCoinsMax,
		TVCoins: c.TVCoins, TVCoinsWeekly: c.TVCoinsWeekly, TVCoinsMax: c.TVCoinsMax,
		PocketMoneyCents: c.PocketMoneyCents, PocketMoneyWeeklyCents: c.PocketMoneyWeeklyCents,
		AllowedPeriods: nonNil(s.Weekday), WeekendPeriods: nonNil(s.Weekend),
		CreatedAt: c.CreatedAt,
	}
}

func nonNil(intervals []timewindow.Interval) []timewindow.Interval {
	if intervals == nil {
		return []timewindow.Interval{}
	}
	return intervals
}

// ChildInput carries admin edits. Nil fields are left unchanged on update.
type ChildInput struct {
	Name                   *string                `json:"name"`
	PIN                    *string                `json:"pin"`
	Avatar                 *string                `json:"avatar"`
	SwitchCoins            *int                   `json:"switch_coins"`
	SwitchCoinsWeekly      *int                   `json:"switch_coins_weekly"`
	SwitchCoinsMax         *int                   `json:"switch_coins_max"`
	TVCoins                *int                   `json:"tv_coins"`
	TVCoinsWeekly          *int                   `json:"tv_coins_weekly"`
	TVCoinsMax             *int                   `json:"tv_coins_max"`
	PocketMoneyWeeklyCents *int64                 `json:"pocket_money_weekly_cents"`
	AllowedPeriods         *[]timewindow.Interval `json:"allowed_periods"`
	WeekendPeriods         *[]timewindow.Interval `json:"weekend_periods"`
}

// ChildService handles admin management of children
type ChildService struct {
	db       *database.DB
	children *repository.ChildRepository
	sessions *repository.SessionRepository
	ledger   *repository.LedgerRepository
	now      func() time.Time
	logger   zerolog.Logger
}

// NewChildService creates a new child service
func NewChildService(db *database.DB, logger zerolog.Logger) *ChildService {
	return &ChildService{
		db:       db,
		children: repository.NewChildRepository(db),
		sessions: repository.NewSessionRepository(db),
		ledger:   repository.NewLedgerRepository(db),
		now:      time.Now,
		logger:   logger.With().Str("component", "children").Logger(),
	}
}

func (s *ChildService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// ListPublic returns the selection screen entries
func (s *ChildService) ListPublic(ctx context.Context) ([]models.ChildSummary, error) {
	children, err := s.children.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.ChildSummary, 0, len(children))
	for _, c := range children {
		summaries = append(summaries, models.ChildSummary{ID: c.ID, Name: c.Name, Avatar: c.Avatar})
	}
	return summaries, nil
}

// List returns all children for the admin panel
func (s *ChildService) List(ctx context.Context) ([]ChildView, error) {
	children, err := s.children.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ChildView, 0, len(children))
	for i := range children {
		views = append(views, newChildView(&children[i]))
	}
	return views, nil
}

// Get returns one child
func (s *ChildService) Get(ctx context.Context, id int64) (*ChildView, error) {
	child, err := s.children.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	view := newChildView(child)
	return &view, nil
}

// Create adds a child. Without a PIN one is generated and returned.
func (s *ChildService) Create(ctx context.Context, in ChildInput) (*ChildView, string, error) {
	if in.Name == nil {
		return nil, "", invalidInput("name", "name is required")
	}

	pin := ""
	if in.PIN != nil {
		pin = *in.PIN
	} else {
		generated, err := credentials.GeneratePIN()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate pin: %w", err)
		}
		pin = generated
	}
	if err := validation.ValidatePIN(pin); err != nil {
		return nil, "", validationFailed(err)
	}

	now := s.timestamp()
	child := &models.Child{CreatedAt: now, UpdatedAt: now}
	if in.Avatar == nil {
		avatar, err := credentials.RandomAvatar()
		if err != nil {
			return nil, "", fmt.Errorf("failed to pick avatar: %w", err)
		}
		child.Avatar = avatar
	}
	coinChanges, err := applyChildInput(child, in)
	if err != nil {
		return nil, "", err
	}

	hash, err := security.HashPIN(pin)
	if err != nil {
		return nil, "", err
	}
	child.PINHash = hash

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := s.children.WithTx(tx).Create(ctx, child); err != nil {
			return err
		}
		return s.logCoinChanges(ctx, tx, child.ID, coinChanges, now)
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().Int64("child_id", child.ID).Str("name", child.Name).Msg("child created")
	view := newChildView(child)
	return &view, pin, nil
}

// Update applies the non-nil fields of in. Balances stay within [0, max]
// and every balance change is logged as an admin adjustment.
func (s *ChildService) Update(ctx context.Context, id int64, in ChildInput) (*ChildView, error) {
	var updated *models.Child
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		children := s.children.WithTx(tx)
		child, err := children.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if child == nil {
			return ErrChildNotFound
		}

		coinChanges, err := applyChildInput(child, in)
		if err != nil {
			return err
		}
		if in.PIN != nil {
			if err := validation.ValidatePIN(*in.PIN); err != nil {
				return validationFailed(err)
			}
			hash, err := security.HashPIN(*in.PIN)
			if err != nil {
				return err
			}
			child.PINHash = hash
		}

		now := s.timestamp()
		child.UpdatedAt = now
		if err := children.Update(ctx, child); err != nil {
			return err
		}
		updated = child
		return s.logCoinChanges(ctx, tx, id, coinChanges, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("child_id", id).Msg("child updated")
	view := newChildView(updated)
	return &view, nil
}

func (s *ChildService) logCoinChanges(ctx context.Context, tx *database.Tx, childID int64, changes map[models.DeviceClass]int, now time.Time) error {
	ledger := s.ledger.WithTx(tx)
	for _, class := range models.DeviceClasses {
		delta := changes[class]
		if delta == 0 {
			continue
		}
		if err := ledger.InsertCoinLog(ctx, &models.CoinLogEntry{
			ChildID: childID, CoinType: class, Delta: delta, Reason: models.ReasonAdminAdjust, CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// applyChildInput validates in and copies it onto child. It returns the
// resulting balance change per coin type.
func applyChildInput(child *models.Child, in ChildInput) (map[models.DeviceClass]int, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName("name", name); err != nil {
			return nil, validationFailed(err)
		}
		child.Name = name
	}
	if in.Avatar != nil {
		child.Avatar = *in.Avatar
	}

	changes := map[models.DeviceClass]int{}
	coinFields := []struct {
		class              models.DeviceClass
		coins, weekly, max *int
		curWeekly, curMax  *int
	}{
		{models.ClassSwitch, in.SwitchCoins, in.SwitchCoinsWeekly, in.SwitchCoinsMax, &child.SwitchCoinsWeekly, &child.SwitchCoinsMax},
		{models.ClassTV, in.TVCoins, in.TVCoinsWeekly, in.TVCoinsMax, &child.TVCoinsWeekly, &child.TVCoinsMax},
	}
	for _, f := range coinFields {
		if f.weekly != nil {
			*f.curWeekly = *f.weekly
		}
		if f.max != nil {
			*f.curMax = *f.max
		}
		if err := validation.ValidateCoinSettings(string(f.class), *f.curWeekly, *f.curMax); err != nil {
			return nil, validationFailed(err)
		}

		current := child.Coins(f.class)
		target := current
		if f.coins != nil {
			if *f.coins < 0 {
				return nil, invalidInput(string(f.class)+"_coins", "must not be negative")
			}
			target = *f.coins
		}
		target = clamp(target, 0, *f.curMax)
		if target != current {
			child.SetCoins(f.class, target)
			changes[f.class] = target - current
		}
	}

	if in.PocketMoneyWeeklyCents != nil {
		if *in.PocketMoneyWeeklyCents < 0 {
			return nil, invalidInput("pocket_money_weekly_cents", "must not be negative")
		}
		child.PocketMoneyWeeklyCents = *in.PocketMoneyWeeklyCents
	}
	if in.AllowedPeriods != nil {
		if err := validation.ValidateIntervals("allowed_periods", *in.AllowedPeriods); err != nil {
			return nil, validationFailed(err)
		}
		child.AllowedPeriods = timewindow.EncodeIntervals(*in.AllowedPeriods)
	}
	if in.WeekendPeriods != nil {
		if err := validation.ValidateIntervals("weekend_periods", *in.WeekendPeriods); err != nil {
			return nil, validationFailed(err)
		}
		child.WeekendPeriods = timewindow.EncodeIntervals(*in.WeekendPeriods)
	}
	return changes, nil
}

// Delete removes a child together with its sessions and logs
func (s *ChildService) Delete(ctx context.Context, id int64) error {
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := s.sessions.WithTx(tx).DeleteByChild(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).DeleteByChild(ctx, id); err != nil {
			return err
		}
		deleted, err := s.children.WithTx(tx).Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrChildNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("child_id", id).Msg("child deleted")
	return nil
}

// RegeneratePIN replaces a child's PIN with a new random one and returns it
func (s *ChildService) RegeneratePIN(ctx context.Context, id int64) (string, error) {
	child, err := s.children.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if child == nil {
		return "", ErrChildNotFound
	}

	pin, err := credentials.GeneratePIN()
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	hash, err := security.HashPIN(pin)
	if err != nil {
		return "", err
	}
	if err := s.children.SetPINHash(ctx, id, hash, s.timestamp()); err != nil {
		return "", err
	}

	s.logger.Info().Int64("child_id", id).Msg("pin regenerated")
	return pin, nil
}
