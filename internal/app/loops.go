package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quizward/quizward/internal/domain"
)

// EmitterConfig drives the broadcast round loop.
type EmitterConfig struct {
	Interval    time.Duration
	ActiveFrom  time.Duration // offset from midnight, local time
	ActiveUntil time.Duration
}

// RunRoundEmitter opens a broadcast round every interval inside the active
// window. Nothing in here is fatal: an empty bank, a storage hiccup or a
// dispatch failure is logged and the ticker keeps running.
func (s *GameService) RunRoundEmitter(ctx context.Context, cfg EmitterConfig) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := s.now()
		if !withinWindow(now, cfg.ActiveFrom, cfg.ActiveUntil) {
			continue
		}

		r, err := s.OpenBroadcastRound(ctx)
		if errors.Is(err, domain.ErrEmptyBank) {
			log.Printf("round emitter: nothing to send, skipping cycle")
			continue
		}
		if err != nil {
			log.Printf("round emitter: open round: %v", err)
			continue
		}
		if s.dispatcher != nil {
			if err := s.dispatcher.DeliverRound(ctx, r); err != nil {
				log.Printf("round emitter: deliver round %s: %v", r.ID, err)
			}
		}
		s.engine.Sweep()
	}
}

// RunSeasonTicker polls the season and weekly boundaries. Boundary handling
// is idempotent, so the poll interval only affects announcement latency.
func (s *GameService) RunSeasonTicker(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := s.now()
		if err := s.CheckSeason(ctx, now); err != nil {
			log.Printf("season check: %v", err)
		}
		if err := s.CheckWeekly(ctx, now); err != nil {
			log.Printf("weekly check: %v", err)
		}
	}
}

// CheckSeason closes the active season if its boundary has been crossed:
// snapshot and reset happen atomically inside the store, the season record
// is advanced past the boundary, and the top ranks are congratulated.
func (s *GameService) CheckSeason(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	active := s.activeSeason
	s.mu.Unlock()

	if !s.sched.CheckBoundary(now, active) {
		return nil
	}

	var summary domain.SeasonSummary
	if _, err := s.participants.UpdateAll(ctx, func(all []domain.Participant) []domain.Participant {
		var reset []domain.Participant
		summary, reset = s.sched.CloseSeason(active, all)
		return reset
	}); err != nil {
		return err
	}

	next := s.sched.NextSeason(now, active)
	next.LastWeeklyBonusAt = active.LastWeeklyBonusAt
	if err := s.seasons.Save(ctx, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.activeSeason = next
	s.mu.Unlock()

	log.Printf("season %s closed, %d ranks archived; season %s started", active.ID, len(summary.Top), next.ID)
	s.announce(ctx, summary, "season %q is over! You finished #%d with %d points (+%d bonus archived).")
	s.broadcastLeaderboard(ctx)
	return nil
}

// CheckWeekly applies the weekly bonus once per week boundary.
func (s *GameService) CheckWeekly(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	due := weekStart(now).After(s.lastWeekly)
	active := s.activeSeason
	s.mu.Unlock()
	if !due {
		return nil
	}

	var summary domain.SeasonSummary
	if _, err := s.participants.UpdateAll(ctx, func(all []domain.Participant) []domain.Participant {
		var updated []domain.Participant
		summary, updated = s.sched.ApplyWeeklyBonus(active, all, s.policy.Level)
		return updated
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastWeekly = weekStart(now)
	active.LastWeeklyBonusAt = s.lastWeekly
	s.activeSeason = active
	s.mu.Unlock()
	if err := s.seasons.Save(ctx, active); err != nil {
		return err
	}

	log.Printf("weekly bonus applied to %d participants", len(summary.Top))
	s.announce(ctx, summary, "weekly ranking %q: you placed #%d with %d points and earned a +%d bonus!")
	s.broadcastLeaderboard(ctx)
	return nil
}

func (s *GameService) announce(ctx context.Context, summary domain.SeasonSummary, format string) {
	if s.dispatcher == nil {
		return
	}
	for _, rank := range summary.Top {
		text := fmt.Sprintf(format, summary.Label, rank.Rank, rank.Points, rank.Bonus)
		if err := s.dispatcher.Notify(ctx, rank.ID, text); err != nil {
			log.Printf("notify %d: %v", rank.ID, err)
		}
	}
}

func withinWindow(now time.Time, from, until time.Duration) bool {
	if from == until {
		return true // no window configured
	}
	offset := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	if from < until {
		return offset >= from && offset <= until
	}
	// window wraps midnight
	return offset >= from || offset <= until
}

// weekStart returns the Monday 00:00 that starts now's week.
func weekStart(now time.Time) time.Time {
	day := now
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}
