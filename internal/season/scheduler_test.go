package season

import (
	"testing"
	"time"

	"github.com/quizward/quizward/internal/domain"
)

func TestQuarterBoundaryIdempotent(t *testing.T) {
	started := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	active := domain.Season{ID: "s1", StartedAt: started}
	sched := newTestScheduler(QuarterBoundary)

	mid := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if sched.CheckBoundary(mid, active) {
		t.Fatalf("boundary fired mid-quarter")
	}

	crossed := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	if !sched.CheckBoundary(crossed, active) {
		t.Fatalf("boundary did not fire after quarter turn")
	}

	next := sched.NextSeason(crossed, active)
	if !next.StartedAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next season started at %v", next.StartedAt)
	}
	// Polling again with the advanced season must not re-trigger.
	if sched.CheckBoundary(crossed, next) {
		t.Fatalf("same boundary re-triggered after advancing")
	}
}

func TestIntervalBoundary(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	active := domain.Season{ID: "s1", StartedAt: started}
	sched := newTestScheduler(IntervalBoundary(30 * 24 * time.Hour))

	if sched.CheckBoundary(started.Add(29*24*time.Hour), active) {
		t.Fatalf("interval boundary fired early")
	}
	if !sched.CheckBoundary(started.Add(31*24*time.Hour), active) {
		t.Fatalf("interval boundary did not fire")
	}
}

func TestCloseSeasonZeroesEveryoneAndIsIdempotent(t *testing.T) {
	sched := newTestScheduler(QuarterBoundary)
	active := domain.Season{ID: "s1", Label: "Q1"}
	snapshot := []domain.Participant{
		{ID: 1, DisplayName: "Alice", Points: 300, Streak: 2, PointsThisWeek: 40, Level: 6},
		{ID: 2, DisplayName: "Bob", Points: 900, Streak: 4, PointsThisWeek: 70, Level: 18},
	}

	summary, reset := sched.CloseSeason(active, snapshot)
	if len(summary.Top) != 2 || summary.Top[0].ID != 2 {
		t.Fatalf("expected Bob first, got %+v", summary.Top)
	}
	if summary.Top[0].Bonus != 500 || summary.Top[0].Points != 1400 {
		t.Fatalf("expected rank 1 bonus 500 on 900 points, got %+v", summary.Top[0])
	}
	for _, p := range reset {
		if p.Points != 0 || p.Streak != 0 || p.PointsThisWeek != 0 || p.Level != 1 {
			t.Fatalf("participant %d not fully reset: %+v", p.ID, p)
		}
	}

	// Closing again right away finds all zeros and grants nothing twice.
	again, reset2 := sched.CloseSeason(active, reset)
	if len(again.Top) != 0 {
		t.Fatalf("second close granted bonuses: %+v", again.Top)
	}
	for _, p := range reset2 {
		if p.Points != 0 {
			t.Fatalf("second close produced points: %+v", p)
		}
	}
}

func TestCloseSeasonTieBreakIsDeterministic(t *testing.T) {
	sched := NewSchedulerWithClock(QuarterBoundary, []int{500, 400, 300}, nil, time.Now)
	early := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	snapshot := []domain.Participant{
		{ID: 11, DisplayName: "Late", Points: 900, LastAnswerAt: late},
		{ID: 7, DisplayName: "Early", Points: 900, LastAnswerAt: early},
		{ID: 3, DisplayName: "Third", Points: 300, LastAnswerAt: early},
	}

	summary, _ := sched.CloseSeason(domain.Season{ID: "s1"}, snapshot)
	if len(summary.Top) != 3 {
		t.Fatalf("expected 3 ranks, got %d", len(summary.Top))
	}
	// First to reach the score wins the tie, every time.
	if summary.Top[0].ID != 7 || summary.Top[0].Bonus != 500 {
		t.Fatalf("expected Early at rank 1 with 500, got %+v", summary.Top[0])
	}
	if summary.Top[1].ID != 11 || summary.Top[1].Bonus != 400 {
		t.Fatalf("expected Late at rank 2 with 400, got %+v", summary.Top[1])
	}
	if summary.Top[2].ID != 3 || summary.Top[2].Bonus != 300 {
		t.Fatalf("expected Third at rank 3 with 300, got %+v", summary.Top[2])
	}
}

func TestWeeklyBonusKeepsTotals(t *testing.T) {
	sched := NewSchedulerWithClock(QuarterBoundary, nil, []int{730, 500, 250}, time.Now)
	snapshot := []domain.Participant{
		{ID: 1, DisplayName: "Alice", Points: 200, PointsThisWeek: 140, Streak: 3, Level: 4},
		{ID: 2, DisplayName: "Bob", Points: 600, PointsThisWeek: 35, Streak: 1, Level: 12},
		{ID: 3, DisplayName: "Cara", Points: 100, PointsThisWeek: 0},
	}

	level := func(points int) int { return 1 + max(0, points-50)/50 }
	summary, updated := sched.ApplyWeeklyBonus(domain.Season{ID: "s1"}, snapshot, level)

	if len(summary.Top) != 2 {
		t.Fatalf("expected 2 weekly winners, got %+v", summary.Top)
	}
	if summary.Top[0].ID != 1 || summary.Top[0].Bonus != 730 {
		t.Fatalf("expected Alice rank 1 with 730, got %+v", summary.Top[0])
	}

	byID := map[int64]domain.Participant{}
	for _, p := range updated {
		byID[p.ID] = p
	}
	if byID[1].Points != 930 || byID[1].Streak != 3 {
		t.Fatalf("expected Alice at 930 with streak kept, got %+v", byID[1])
	}
	if byID[1].Level != level(930) {
		t.Fatalf("expected level recomputed from points, got %+v", byID[1])
	}
	if byID[2].Points != 1100 {
		t.Fatalf("expected Bob at 1100, got %+v", byID[2])
	}
	if byID[3].Points != 100 {
		t.Fatalf("expected Cara unchanged, got %+v", byID[3])
	}
	for _, p := range updated {
		if p.PointsThisWeek != 0 {
			t.Fatalf("weekly points not cleared for %d", p.ID)
		}
	}
}

func newTestScheduler(boundary BoundaryFunc) *Scheduler {
	return NewSchedulerWithClock(boundary, []int{500, 400, 300}, []int{730, 500, 250}, time.Now)
}
