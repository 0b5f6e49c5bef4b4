// Package scheduler runs the background sweep: session expiry every tick and
// the weekly coin refill on Saturdays.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/database"
	"muenzbox/internal/metrics"
	"muenzbox/internal/repository"
	"muenzbox/internal/service"
)

const dateLayout = "2006-01-02"

// Expirer completes sessions whose end time has passed.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Refiller applies the weekly allowance to one child.
type Refiller interface {
	RefillChild(ctx context.Context, childID int64) (service.RefillResult, error)
}

// Scheduler owns the last processed refill date. It is loaded from settings
// on first use so a restart on a Saturday does not refill twice.
type Scheduler struct {
	sessions Expirer
	ledger   Refiller
	children *repository.ChildRepository
	settings *repository.SettingsRepository
	loc      *time.Location
	interval time.Duration
	metrics  metrics.Provider
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastRefill string
	loaded     bool
}

// New creates a scheduler that ticks every interval in the household time zone loc
func New(sessions Expirer, ledger Refiller, db database.DBTX, loc *time.Location, interval time.Duration,
	provider metrics.Provider, logger zerolog.Logger) *Scheduler {
	if provider == nil {
		provider = metrics.Noop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		sessions: sessions,
		ledger:   ledger,
		children: repository.NewChildRepository(db),
		settings: repository.NewSettingsRepository(db),
		loc:      loc,
		interval: interval,
		metrics:  provider,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run ticks once immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Str("timezone", s.loc.String()).Msg("scheduler started")

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick expires due sessions and runs the weekly refill when it is due.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	expired, err := s.sessions.ExpireDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to expire sessions")
	} else if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("sessions expired")
	}

	s.refillIfDue(ctx, now)
	s.metrics.ObserveTick(time.Since(started), expired)
}

// LastRefill returns the last processed refill date as YYYY-MM-DD, or "".
func (s *Scheduler) LastRefill() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefill
}

func (s *Scheduler) refillIfDue(ctx context.Context, now time.Time) {
	local := now.In(s.loc)
	if local.Weekday() != time.Saturday {
		return
	}

	if !s.loaded {
		last, err := s.settings.Get(ctx, repository.LastWeeklyRefillKey)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to load last refill date")
			return
		}
		s.lastRefill, s.loaded = last, true
	}

	today := local.Format(dateLayout)
	if s.lastRefill == today {
		return
	}
	// Without any recorded refill only the midnight hour starts one. A later
	// start records today so the next Saturday is caught up even after downtime.
	if s.lastRefill == "" && local.Hour() != 0 {
		s.recordRefill(ctx, today)
		s.logger.Info().Str("date", today).Msg("no weekly refill recorded yet, first refill next saturday")
		return
	}

	ids, err := s.children.IDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list children for refill")
		return
	}

	refilled := 0
	for _, id := range ids {
		result, err := s.ledger.RefillChild(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int64("child_id", id).Msg("weekly refill failed")
			continue
		}
		refilled++
		for class, coins := range result.Coins {
			s.metrics.CoinsRefilled(string(class), coins)
		}
	}

	s.recordRefill(ctx, today)
	s.logger.Info().Str("date", today).Int("children", refilled).Int("failed", len(ids)-refilled).Msg("weekly refill done")
}

func (s *Scheduler) recordRefill(ctx context.Context, date string) {
	s.lastRefill = date
	if err := s.settings.Set(ctx, repository.LastWeeklyRefillKey, date); err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to persist refill date")
	}
}
