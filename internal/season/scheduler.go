package season

import (
	"fmt"
	"sort"
	"time"

	"github.com/quizward/quizward/internal/domain"
)

// BoundaryFunc reports whether a season boundary has been crossed and, if
// so, the instant of that boundary. Advancing StartedAt past the returned
// instant keeps repeated polling idempotent.
type BoundaryFunc func(now, startedAt time.Time) (time.Time, bool)

// QuarterBoundary crosses on the first instant of each calendar quarter.
func QuarterBoundary(now, startedAt time.Time) (time.Time, bool) {
	b := nextQuarterStart(startedAt)
	if now.Before(b) {
		return time.Time{}, false
	}
	return b, true
}

func nextQuarterStart(t time.Time) time.Time {
	y, m := t.Year(), t.Month()
	q := (int(m)-1)/3*3 + 1 // 1, 4, 7, 10
	next := time.Date(y, time.Month(q), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 3, 0)
	return next
}

// IntervalBoundary crosses once the configured duration has elapsed.
func IntervalBoundary(interval time.Duration) BoundaryFunc {
	return func(now, startedAt time.Time) (time.Time, bool) {
		b := startedAt.Add(interval)
		if now.Before(b) {
			return time.Time{}, false
		}
		return b, true
	}
}

// Scheduler drives the season lifecycle: boundary detection, season close
// with top-N bonuses, and the weekly bonus that leaves totals intact.
type Scheduler struct {
	boundary    BoundaryFunc
	seasonBonus []int
	weeklyBonus []int
	clock       func() time.Time
}

func NewScheduler(boundary BoundaryFunc, seasonBonus, weeklyBonus []int) *Scheduler {
	return NewSchedulerWithClock(boundary, seasonBonus, weeklyBonus, time.Now)
}

func NewSchedulerWithClock(boundary BoundaryFunc, seasonBonus, weeklyBonus []int, clock func() time.Time) *Scheduler {
	return &Scheduler{
		boundary:    boundary,
		seasonBonus: seasonBonus,
		weeklyBonus: weeklyBonus,
		clock:       clock,
	}
}

// CheckBoundary reports whether the active season's boundary has been
// crossed at now.
func (s *Scheduler) CheckBoundary(now time.Time, active domain.Season) bool {
	_, crossed := s.boundary(now, active.StartedAt)
	return crossed
}

// NextSeason builds the successor season starting at the crossed boundary,
// so the same boundary is never triggered twice.
func (s *Scheduler) NextSeason(now time.Time, active domain.Season) domain.Season {
	b, crossed := s.boundary(now, active.StartedAt)
	if !crossed {
		return active
	}
	return domain.Season{
		ID:        fmt.Sprintf("season-%s", b.Format("2006-01-02")),
		StartedAt: b,
		Label:     b.Format("Jan 2006"),
	}
}

// CloseSeason ranks the snapshot, applies the season bonus ladder to the top
// ranks, then zeroes points, streak and weekly points and resets level to 1
// for everyone. The returned states replace the snapshot; the summary keeps
// the pre-reset standing for notification. Calling it again on the zeroed
// result ranks all-zero states deterministically and is harmless.
func (s *Scheduler) CloseSeason(active domain.Season, snapshot []domain.Participant) (domain.SeasonSummary, []domain.Participant) {
	ranked := Rank(snapshot, byPoints)

	summary := domain.SeasonSummary{
		SeasonID: active.ID,
		Label:    active.Label,
		ClosedAt: s.clock(),
	}
	for i, p := range ranked {
		if i >= len(s.seasonBonus) {
			break
		}
		if p.Points == 0 {
			break // an already-reset board earns no bonus
		}
		summary.Top = append(summary.Top, domain.SeasonRank{
			Rank:        i + 1,
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Points:      p.Points + s.seasonBonus[i],
			Bonus:       s.seasonBonus[i],
		})
	}

	reset := make([]domain.Participant, len(ranked))
	for i, p := range ranked {
		p.Points = 0
		p.Streak = 0
		p.PointsThisWeek = 0
		p.Level = 1
		reset[i] = p
	}
	return summary, reset
}

// ApplyWeeklyBonus grants the weekly ladder by weekly points and zeroes only
// PointsThisWeek, leaving totals, streaks and levels untouched. The bonus is
// added to total points, as the weekly ranking rewards the running season.
func (s *Scheduler) ApplyWeeklyBonus(active domain.Season, snapshot []domain.Participant, level func(points int) int) (domain.SeasonSummary, []domain.Participant) {
	ranked := Rank(snapshot, byWeeklyPoints)

	summary := domain.SeasonSummary{
		SeasonID: active.ID,
		Label:    "weekly",
		ClosedAt: s.clock(),
	}
	updated := make([]domain.Participant, len(ranked))
	for i, p := range ranked {
		if i < len(s.weeklyBonus) && p.PointsThisWeek > 0 {
			p.Points += s.weeklyBonus[i]
			if level != nil {
				p.Level = level(p.Points)
			}
			summary.Top = append(summary.Top, domain.SeasonRank{
				Rank:        i + 1,
				ID:          p.ID,
				DisplayName: p.DisplayName,
				Points:      p.PointsThisWeek,
				Bonus:       s.weeklyBonus[i],
			})
		}
		p.PointsThisWeek = 0
		updated[i] = p
	}
	return summary, updated
}

func byPoints(p domain.Participant) int       { return p.Points }
func byWeeklyPoints(p domain.Participant) int { return p.PointsThisWeek }

// Rank sorts a copy of the snapshot: higher score first, ties broken by the
// earlier LastAnswerAt (first to reach the score wins), then by id so the
// order is fully deterministic.
func Rank(snapshot []domain.Participant, score func(domain.Participant) int) []domain.Participant {
	ranked := append([]domain.Participant(nil), snapshot...)
	sort.Slice(ranked, func(i, j int) bool {
		if score(ranked[i]) != score(ranked[j]) {
			return score(ranked[i]) > score(ranked[j])
		}
		if !ranked[i].LastAnswerAt.Equal(ranked[j].LastAnswerAt) {
			return ranked[i].LastAnswerAt.Before(ranked[j].LastAnswerAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}
