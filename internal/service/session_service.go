package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/database"
	"muenzbox/internal/metrics"
	"muenzbox/internal/models"
	"muenzbox/internal/notify"
	"muenzbox/internal/repository"
	"muenzbox/internal/timewindow"
)

// MaxConsoleCoinsPerSession caps a single console session independently of the balance.
const MaxConsoleCoinsPerSession = 2

// Hardware is the best-effort device side of a session.
type Hardware interface {
	Unlock(ctx context.Context, dev *models.Device) bool
	Lock(ctx context.Context, dev *models.Device) bool
	UnlockConsole(ctx context.Context, minutes int) bool
	LockConsole(ctx context.Context) bool
	HasConsole() bool
}

// ChildStatus is what a child sees after logging in
type ChildStatus struct {
	ID               int64                 `json:"id"`
	Name             string                `json:"name"`
	Avatar           string                `json:"avatar"`
	SwitchCoins      int                   `json:"switch_coins"`
	SwitchCoinsMax   int                   `json:"switch_coins_max"`
	TVCoins          int                   `json:"tv_coins"`
	TVCoinsMax       int                   `json:"tv_coins_max"`
	PocketMoneyCents int64                 `json:"pocket_money_cents"`
	ActivePeriods    []timewindow.Interval `json:"active_periods"`
	IsWeekend        bool                  `json:"is_weekend"`
	Allowed          bool                  `json:"allowed_now"`
	ActiveSession    *models.Session       `json:"active_session"`
}

// SessionService is the only writer of session state transitions
type SessionService struct {
	db        *database.DB
	children  *repository.ChildRepository
	sessions  *repository.SessionRepository
	devices   *repository.DeviceRepository
	ledger    *LedgerService
	evaluator *timewindow.Evaluator
	hardware  Hardware
	metrics   metrics.Provider
	notifier  notify.Notifier
	now       func() time.Time
	logger    zerolog.Logger
}

// NewSessionService creates a new session service. A nil provider or
// notifier disables metrics or alerts.
func NewSessionService(db *database.DB, ledger *LedgerService, evaluator *timewindow.Evaluator, hardware Hardware,
	provider metrics.Provider, notifier notify.Notifier, logger zerolog.Logger) *SessionService {
	if provider == nil {
		provider = metrics.Noop()
	}
	return &SessionService{
		db:        db,
		children:  repository.NewChildRepository(db),
		sessions:  repository.NewSessionRepository(db),
		devices:   repository.NewDeviceRepository(db),
		ledger:    ledger,
		evaluator: evaluator,
		hardware:  hardware,
		metrics:   provider,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger.With().Str("component", "sessions").Logger(),
	}
}

// SetClock replaces the time source
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SessionService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Start validates a request and, in one transaction, debits the coins and
// creates the session. The unlock runs after commit and only sets HardwareOK.
func (s *SessionService) Start(ctx context.Context, p models.Principal, childID int64, class models.DeviceClass, coins int) (*models.Session, error) {
	if !p.IsChild(childID) {
		return nil, ErrForbidden
	}
	if !class.Valid() {
		return nil, ErrInvalidDeviceClass
	}
	if coins < 1 {
		return nil, ErrInvalidCoinAmount
	}
	if class == models.ClassSwitch && coins > MaxConsoleCoinsPerSession {
		return nil, ErrSessionCapExceeded
	}

	child, err := s.children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}

	now := s.timestamp()
	if allowed, windows := s.evaluator.Allowed(timewindow.ScheduleFor(child), now); !allowed {
		return nil, outsideWindow(windows)
	}
	if available := child.Coins(class); available < coins {
		return nil, insufficientCoins(available)
	}
	active, err := s.sessions.GetActiveByChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrSessionActive
	}

	session := &models.Session{
		ChildID:     childID,
		DeviceClass: class,
		StartedAt:   now,
		EndsAt:      models.SessionEnd(now, coins),
		CoinsUsed:   coins,
		Status:      models.StatusActive,
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		sessions := s.sessions.WithTx(tx)
		active, err := sessions.GetActiveByChild(ctx, childID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrSessionActive
		}
		if err := s.ledger.Debit(ctx, tx, childID, class, coins); err != nil {
			return err
		}
		return sessions.Create(ctx, session)
	})
	if err != nil {
		if s.db.Dialect.IsUniqueViolation(err) {
			return nil, ErrSessionActive
		}
		return nil, err
	}

	s.metrics.SessionStarted(string(class))
	s.logger.Info().Int64("session_id", session.ID).Int64("child_id", childID).
		Str("device_class", string(class)).Int("coins", coins).Time("ends_at", session.EndsAt).Msg("session started")

	hwCtx := context.WithoutCancel(ctx)
	session.HardwareOK = s.unlock(hwCtx, child.Name, session)
	if err := s.sessions.SetHardwareOK(hwCtx, session.ID, session.HardwareOK); err != nil {
		s.logger.Error().Err(err).Int64("session_id", session.ID).Msg("failed to store hardware status")
	}
	return session, nil
}

// End completes the caller's own active session.
func (s *SessionService) End(ctx context.Context, p models.Principal, sessionID int64) (*models.Session, error) {
	if p.Role != models.RoleChild {
		return nil, ErrForbidden
	}
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !p.IsChild(session.ChildID) {
		return nil, ErrForbidden
	}
	return s.finish(ctx, session, models.StatusCompleted)
}

// Cancel is the parental override for any active session.
func (s *SessionService) Cancel(ctx context.Context, p models.Principal, sessionID int64) (*models.Session, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	session, err := s.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, session, models.StatusCancelled)
}

func (s *SessionService) activeSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.IsActive() {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) finish(ctx context.Context, session *models.Session, status models.SessionStatus) (*models.Session, error) {
	now := s.timestamp()
	ok, err := s.sessions.Finish(ctx, session.ID, status, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}

	session.Status = status
	session.EndedAt = &now
	s.metrics.SessionEnded(string(session.DeviceClass), string(status))
	s.logger.Info().Int64("session_id", session.ID).Int64("child_id", session.ChildID).
		Str("status", string(status)).Msg("session ended")

	s.lock(context.WithoutCancel(ctx), session)
	return session, nil
}

// ExpireDue completes every active session whose end time has passed and
// locks its device. Each session is handled on its own; a failure is logged
// and the sweep continues. It returns the number of sessions completed.
func (s *SessionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.sessions.ListDue(ctx, now.UTC())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		session := &due[i]
		ok, err := s.sessions.Finish(ctx, session.ID, models.StatusCompleted, now.UTC().Truncate(time.Second))
		if err != nil {
			s.logger.Error().Err(err).Int64("session_id", session.ID).Msg("failed to expire session")
			continue
		}
		if !ok {
			continue
		}
		session.Status = models.StatusCompleted
		expired++
		s.metrics.SessionEnded(string(session.DeviceClass), string(models.StatusCompleted))
		s.logger.Info().Int64("session_id", session.ID).Int64("child_id", session.ChildID).
			Str("device_class", string(session.DeviceClass)).Msg("session expired")
		s.lock(ctx, session)
	}
	return expired, nil
}

func (s *SessionService) unlock(ctx context.Context, childName string, session *models.Session) bool {
	switch session.DeviceClass {
	case models.ClassSwitch:
		if !s.hardware.HasConsole() {
			s.logger.Debug().Int64("session_id", session.ID).Msg("no console bridge, schedule only")
			return false
		}
		ok := s.hardware.UnlockConsole(ctx, session.CoinsUsed*models.MinutesPerCoin)
		if !ok {
			s.alert(ctx, childName, session.DeviceClass, "unlock")
		}
		return ok
	default:
		dev := s.activeDevice(ctx, session.DeviceClass)
		if dev == nil {
			return false
		}
		ok := s.hardware.Unlock(ctx, dev)
		if !ok && controlsHardware(dev) {
			s.alert(ctx, childName, session.DeviceClass, "unlock")
		}
		return ok
	}
}

func (s *SessionService) lock(ctx context.Context, session *models.Session) bool {
	var ok, controlled bool
	switch session.DeviceClass {
	case models.ClassSwitch:
		if !s.hardware.HasConsole() {
			return false
		}
		ok, controlled = s.hardware.LockConsole(ctx), true
	default:
		dev := s.activeDevice(ctx, session.DeviceClass)
		if dev == nil {
			return false
		}
		ok, controlled = s.hardware.Lock(ctx, dev), controlsHardware(dev)
	}

	if !ok && controlled {
		name := ""
		if child, err := s.children.GetByID(ctx, session.ChildID); err == nil && child != nil {
			name = child.Name
		}
		s.alert(ctx, name, session.DeviceClass, "lock")
	}
	return ok
}

func (s *SessionService) activeDevice(ctx context.Context, class models.DeviceClass) *models.Device {
	dev, err := s.devices.ActiveByClass(ctx, class)
	if err != nil {
		s.logger.Error().Err(err).Str("device_class", string(class)).Msg("failed to resolve device")
		return nil
	}
	if dev == nil {
		s.logger.Debug().Str("device_class", string(class)).Msg("no active device, hardware skipped")
	}
	return dev
}

// controlsHardware reports whether a failed call on dev means broken hardware
// rather than a bookkeeping-only configuration.
func controlsHardware(dev *models.Device) bool {
	switch dev.ControlMethod {
	case models.ControlMikroTik, models.ControlFritzBox, models.ControlMock:
		return true
	}
	return false
}

func (s *SessionService) alert(ctx context.Context, childName string, class models.DeviceClass, action string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.HardwareFailure(ctx, childName, class, action); err != nil {
		s.logger.Error().Err(err).Str("device_class", string(class)).Str("action", action).Msg("failed to send alert")
	}
}

// ActiveSession returns the child's running session, or nil.
func (s *SessionService) ActiveSession(ctx context.Context, p models.Principal, childID int64) (*models.Session, error) {
	if !p.IsChild(childID) {
		return nil, ErrForbidden
	}
	return s.sessions.GetActiveByChild(ctx, childID)
}

// Status returns balances and the time windows in force for the child.
func (s *SessionService) Status(ctx context.Context, p models.Principal, childID int64) (*ChildStatus, error) {
	if !p.IsChild(childID) {
		return nil, ErrForbidden
	}
	child, err := s.children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	active, err := s.sessions.GetActiveByChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	allowed, windows := s.evaluator.Allowed(timewindow.ScheduleFor(child), now)
	return &ChildStatus{
		ID:               child.ID,
		Name:             child.Name,
		Avatar:           child.Avatar,
		SwitchCoins:      child.SwitchCoins,
		SwitchCoinsMax:   child.SwitchCoinsMax,
		TVCoins:          child.TVCoins,
		TVCoinsMax:       child.TVCoinsMax,
		PocketMoneyCents: child.PocketMoneyCents,
		ActivePeriods:    windows,
		IsWeekend:        s.evaluator.IsWeekendOrHoliday(now),
		Allowed:          allowed,
		ActiveSession:    active,
	}, nil
}

// List returns sessions newest first for the admin panel.
func (s *SessionService) List(ctx context.Context, filter models.LogFilter) ([]models.SessionWithChild, error) {
	return s.sessions.List(ctx, filter)
}
