package app_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/quizward/quizward/internal/app"
	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/infra/memory"
	"github.com/quizward/quizward/internal/round"
	"github.com/quizward/quizward/internal/scoring"
	"github.com/quizward/quizward/internal/season"
)

func TestRegisterAndAnswerFlow(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Now)

	alice, created, err := service.Register(ctx, 1, "Alice")
	if err != nil || !created {
		t.Fatalf("register: created=%v err=%v", created, err)
	}
	if alice.Points != 50 || alice.Level != 1 {
		t.Fatalf("expected starting state 50/level 1, got %+v", alice)
	}

	r, err := service.OpenRoundFor(ctx, 1)
	if err != nil {
		t.Fatalf("open round: %v", err)
	}

	result, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Outcome != domain.OutcomeCorrect || result.Award.Points != 35 {
		t.Fatalf("expected correct +35, got %+v", result)
	}
	if result.State.Points != 85 || result.State.Level != 1 {
		t.Fatalf("expected 85 points level 1, got %+v", result.State)
	}

	lb, err := service.Leaderboard(ctx)
	if err != nil || len(lb.Entries) != 1 || lb.Entries[0].Points != 85 {
		t.Fatalf("leaderboard: %+v err=%v", lb, err)
	}
}

func TestDuplicateAnswerDoesNotScore(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Now)
	_, _, _ = service.Register(ctx, 1, "Alice")

	r, _ := service.OpenRoundFor(ctx, 1)
	first, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex)
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}
	second, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex)
	if err != nil {
		t.Fatalf("second answer: %v", err)
	}
	if second.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v", second.Outcome)
	}

	p, _, _ := service.Register(ctx, 1, "Alice")
	if p.Points != first.State.Points {
		t.Fatalf("duplicate changed points: %d vs %d", p.Points, first.State.Points)
	}
}

func TestLateAnswerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	service, _ := newTestService(t, func() time.Time { return now })
	_, _, _ = service.Register(ctx, 1, "Alice")

	r, _ := service.OpenRoundFor(ctx, 1)
	now = now.Add(10 * time.Minute)

	result, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Outcome != domain.OutcomeExpired {
		t.Fatalf("expected expired, got %v", result.Outcome)
	}

	p, _, _ := service.Register(ctx, 1, "Alice")
	if p.Points != 50 {
		t.Fatalf("expired answer changed points: %d", p.Points)
	}
}

func TestBroadcastRoundReachesAllParticipants(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Now)
	_, _, _ = service.Register(ctx, 1, "Alice")
	_, _, _ = service.Register(ctx, 2, "Bob")

	r, err := service.OpenBroadcastRound(ctx)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(r.RecipientIDs) != 2 {
		t.Fatalf("expected 2 recipients, got %v", r.RecipientIDs)
	}

	// Each recipient resolves independently on the shared round.
	if res, _ := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex); res.Outcome != domain.OutcomeCorrect {
		t.Fatalf("alice: %v", res.Outcome)
	}
	wrong := (r.CorrectIndex + 1) % len(r.ShuffledOptions)
	if res, _ := service.HandleAnswer(ctx, r.ID, 2, wrong); res.Outcome != domain.OutcomeIncorrect {
		t.Fatalf("bob: %v", res.Outcome)
	}
}

func TestSeasonCloseThroughService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	service, _ := newTestService(t, func() time.Time { return now })
	_, _, _ = service.Register(ctx, 1, "Alice")
	_, _, _ = service.Register(ctx, 2, "Bob")

	r, _ := service.OpenBroadcastRound(ctx)
	if _, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Cross the quarter boundary.
	now = time.Date(2026, 4, 1, 0, 30, 0, 0, time.UTC)
	if err := service.CheckSeason(ctx, now); err != nil {
		t.Fatalf("season check: %v", err)
	}

	lb, _ := service.Leaderboard(ctx)
	for _, e := range lb.Entries {
		if e.Points != 0 || e.Level != 1 {
			t.Fatalf("expected zeroed board, got %+v", e)
		}
	}

	// The same boundary never fires twice.
	if err := service.CheckSeason(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("second season check: %v", err)
	}
}

func TestWeeklyBonusThroughService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday
	service, _ := newTestService(t, func() time.Time { return now })
	_, _, _ = service.Register(ctx, 1, "Alice")

	r, _ := service.OpenRoundFor(ctx, 1)
	if _, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// Cross into the next week.
	now = time.Date(2026, 3, 9, 0, 30, 0, 0, time.UTC) // Monday
	if err := service.CheckWeekly(ctx, now); err != nil {
		t.Fatalf("weekly check: %v", err)
	}

	p, _, _ := service.Register(ctx, 1, "Alice")
	if p.PointsThisWeek != 0 {
		t.Fatalf("weekly points not cleared: %+v", p)
	}
	if p.Points != 85+730 {
		t.Fatalf("expected weekly bonus on totals, got %d", p.Points)
	}

	// Re-running within the same week grants nothing more.
	if err := service.CheckWeekly(ctx, now.Add(time.Hour)); err != nil {
		t.Fatalf("second weekly check: %v", err)
	}
	again, _, _ := service.Register(ctx, 1, "Alice")
	if again.Points != p.Points {
		t.Fatalf("weekly bonus applied twice: %d", again.Points)
	}
}

func TestWeeklyBonusSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday
	clock := func() time.Time { return now }

	store := memory.NewParticipantStore()
	seasons := memory.NewSeasonStore()
	questions := []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
	}

	first := newServiceSharing(t, store, seasons, questions, clock)
	_, _, _ = first.Register(ctx, 1, "Alice")
	r, _ := first.OpenRoundFor(ctx, 1)
	if _, err := first.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// A fresh process started after the boundary picks up the persisted
	// weekly marker and still grants the missed bonus.
	now = time.Date(2026, 3, 9, 0, 30, 0, 0, time.UTC) // Monday
	second := newServiceSharing(t, store, seasons, questions, clock)
	if err := second.CheckWeekly(ctx, now); err != nil {
		t.Fatalf("weekly check after restart: %v", err)
	}

	p, _, _ := second.Register(ctx, 1, "Alice")
	if p.Points != 85+730 {
		t.Fatalf("weekly bonus skipped across restart, points=%d", p.Points)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Now)
	_, _, _ = service.Register(ctx, 1, "Alice")

	ch, cancel, err := service.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	r, _ := service.OpenRoundFor(ctx, 1)
	if _, err := service.HandleAnswer(ctx, r.ID, 1, r.CorrectIndex); err != nil {
		t.Fatalf("answer: %v", err)
	}

	update := <-ch
	if len(update.Entries) != 1 || update.Entries[0].Points != 85 {
		t.Fatalf("expected updated score 85, got %+v", update.Entries)
	}
}

func TestAdminGateOnQuestionCommands(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Now)

	q := domain.Question{Prompt: "New?", Options: []string{"a", "b"}, CorrectIndex: 0}
	if _, err := service.AddQuestion(ctx, 12345, q); err != domain.ErrNotAuthorized {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, err := service.AddQuestion(ctx, adminID, q); err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if err := service.RemoveQuestion(ctx, 12345, "q1"); err != domain.ErrNotAuthorized {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestEmptyBankSkipsCycle(t *testing.T) {
	ctx := context.Background()
	service := newServiceWithBank(t, nil, time.Now)
	_, _, _ = service.Register(ctx, 1, "Alice")

	if _, err := service.OpenBroadcastRound(ctx); err != domain.ErrEmptyBank {
		t.Fatalf("expected empty-bank error, got %v", err)
	}
}

const adminID int64 = 99

func newTestService(t *testing.T, now func() time.Time) (*app.GameService, *memory.ParticipantStore) {
	t.Helper()
	questions := []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
		{ID: "q2", Prompt: "What is 3 + 3?", Options: []string{"5", "6"}, CorrectIndex: 1},
	}
	return newServiceWithBankAndStore(t, questions, now)
}

func newServiceWithBank(t *testing.T, questions []domain.Question, now func() time.Time) *app.GameService {
	service, _ := newServiceWithBankAndStore(t, questions, now)
	return service
}

func newServiceWithBankAndStore(t *testing.T, questions []domain.Question, now func() time.Time) (*app.GameService, *memory.ParticipantStore) {
	t.Helper()
	store := memory.NewParticipantStore()
	return newServiceSharing(t, store, memory.NewSeasonStore(), questions, now), store
}

func newServiceSharing(t *testing.T, store *memory.ParticipantStore, seasons *memory.SeasonStore,
	questions []domain.Question, now func() time.Time) *app.GameService {
	t.Helper()
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(questions), 5*time.Minute)
	service := app.NewGameServiceWithClock(
		store,
		bank,
		seasons,
		round.NewEngineWithClock(5*time.Minute, now, testRand()),
		round.NewPickerWithClock(now, testRand()),
		scoring.Default(),
		season.NewSchedulerWithClock(season.QuarterBoundary, []int{500, 400, 300}, []int{730, 500, 250}, now),
		adminID,
		now,
	)
	if err := service.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return service
}

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}
