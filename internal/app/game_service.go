package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/round"
	"github.com/quizward/quizward/internal/scoring"
	"github.com/quizward/quizward/internal/season"
)

// ParticipantStore abstracts how participant state is stored (in-memory,
// file-backed, Redis). Mutations to one participant are serialized by the
// store; Upsert enforces an optimistic version check.
type ParticipantStore interface {
	Get(ctx context.Context, id int64) (domain.Participant, error)
	// Upsert saves p when p.Version matches the stored record (0 creates).
	// It returns the saved record with the advanced version, or
	// domain.ErrVersionConflict; the caller must reload before retrying.
	Upsert(ctx context.Context, p domain.Participant) (domain.Participant, error)
	SnapshotAll(ctx context.Context) ([]domain.Participant, error)
	// UpdateAll applies fn to a consistent snapshot of every record and
	// persists the result atomically. A point-awarding write cannot land
	// unseen between snapshot and reset; fn may run more than once when the
	// snapshot is invalidated and must be a pure transform.
	UpdateAll(ctx context.Context, fn func(all []domain.Participant) []domain.Participant) ([]domain.Participant, error)
}

// QuestionBank loads and edits quiz content (from cache/backing store).
type QuestionBank interface {
	Questions(ctx context.Context) ([]domain.Question, error)
	Add(ctx context.Context, q domain.Question) (domain.Question, error)
	Remove(ctx context.Context, id string) error
}

// SeasonStore persists the single active season record.
type SeasonStore interface {
	Load(ctx context.Context) (domain.Season, bool, error)
	Save(ctx context.Context, s domain.Season) error
}

// Dispatcher is the external gateway that delivers rounds and participant
// notifications. Per-recipient delivery failures are its own concern; it
// only returns errors fatal to the whole batch.
type Dispatcher interface {
	DeliverRound(ctx context.Context, r *round.Round) error
	Notify(ctx context.Context, participantID int64, text string) error
}

// AnswerResult is what the gateway needs to message a participant after an
// answer event. Duplicate and expired outcomes carry no award and should
// produce no scoring notification.
type AnswerResult struct {
	Outcome       domain.Outcome
	Award         scoring.Award
	State         domain.Participant
	CorrectOption string
}

// GameService wires the round engine, scoring policy, stores and season
// scheduler into the quiz use cases.
type GameService struct {
	participants ParticipantStore
	bank         QuestionBank
	seasons      SeasonStore
	engine       *round.Engine
	picker       *round.Picker
	policy       scoring.Policy
	sched        *season.Scheduler
	dispatcher   Dispatcher
	adminID      int64
	now          func() time.Time

	mu           sync.Mutex
	activeSeason domain.Season
	lastWeekly   time.Time
	subscribers  map[chan domain.Leaderboard]struct{}
}

func NewGameService(participants ParticipantStore, bank QuestionBank, seasons SeasonStore,
	engine *round.Engine, picker *round.Picker, policy scoring.Policy, sched *season.Scheduler,
	adminID int64) *GameService {
	return NewGameServiceWithClock(participants, bank, seasons, engine, picker, policy, sched, adminID, time.Now)
}

// NewGameServiceWithClock allows deterministic timestamps in tests.
func NewGameServiceWithClock(participants ParticipantStore, bank QuestionBank, seasons SeasonStore,
	engine *round.Engine, picker *round.Picker, policy scoring.Policy, sched *season.Scheduler,
	adminID int64, now func() time.Time) *GameService {
	return &GameService{
		participants: participants,
		bank:         bank,
		seasons:      seasons,
		engine:       engine,
		picker:       picker,
		policy:       policy,
		sched:        sched,
		adminID:      adminID,
		now:          now,
		lastWeekly:   weekStart(now()),
		subscribers:  make(map[chan domain.Leaderboard]struct{}),
	}
}

// SetDispatcher attaches the outbound gateway. The service works without one
// (tests, dry runs); delivery is then skipped.
func (s *GameService) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// Init loads or creates the active season. Call once before the loops start.
func (s *GameService) Init(ctx context.Context) error {
	active, ok, err := s.seasons.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		now := s.now()
		active = domain.Season{
			ID:                "season-" + now.Format("2006-01-02"),
			StartedAt:         now,
			Label:             now.Format("Jan 2006"),
			LastWeeklyBonusAt: weekStart(now),
		}
		if err := s.seasons.Save(ctx, active); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.activeSeason = active
	if !active.LastWeeklyBonusAt.IsZero() {
		s.lastWeekly = active.LastWeeklyBonusAt
	}
	s.mu.Unlock()
	return nil
}

// Register creates a participant on first contact or refreshes the display
// name. It reports whether the participant was newly created.
func (s *GameService) Register(ctx context.Context, id int64, displayName string) (domain.Participant, bool, error) {
	existing, err := s.participants.Get(ctx, id)
	switch {
	case err == nil:
		if displayName != "" && displayName != existing.DisplayName {
			existing.DisplayName = displayName
			if updated, err := s.participants.Upsert(ctx, existing); err == nil {
				existing = updated
			}
		}
		return existing, false, nil
	case errors.Is(err, domain.ErrParticipantNotFound):
		created, err := s.participants.Upsert(ctx, s.policy.NewParticipant(id, displayName))
		if err != nil {
			return domain.Participant{}, false, err
		}
		s.broadcastLeaderboard(ctx)
		return created, true, nil
	default:
		return domain.Participant{}, false, err
	}
}

// OpenBroadcastRound picks the next question and opens a round addressed to
// every registered participant. It returns domain.ErrEmptyBank when there is
// nothing to ask; callers skip the cycle.
func (s *GameService) OpenBroadcastRound(ctx context.Context) (*round.Round, error) {
	all, err := s.participants.SnapshotAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrEmptyBank // nobody to ask is the same skip
	}
	recipients := make([]int64, 0, len(all))
	for _, p := range all {
		recipients = append(recipients, p.ID)
	}
	return s.openRound(ctx, recipients)
}

// OpenRoundFor opens an immediate single-recipient round (the /quiz command).
func (s *GameService) OpenRoundFor(ctx context.Context, participantID int64) (*round.Round, error) {
	if _, err := s.participants.Get(ctx, participantID); err != nil {
		return nil, err
	}
	return s.openRound(ctx, []int64{participantID})
}

func (s *GameService) openRound(ctx context.Context, recipients []int64) (*round.Round, error) {
	questions, err := s.bank.Questions(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.picker.Next(questions)
	if err != nil {
		return nil, err
	}
	return s.engine.Open(q, recipients), nil
}

// HandleAnswer resolves an answer event, applies the scoring policy and
// persists the participant. A version conflict reloads the record and
// replays the policy on fresh state, never resaving stale data.
func (s *GameService) HandleAnswer(ctx context.Context, roundID string, participantID int64, chosenIndex int) (AnswerResult, error) {
	outcome, r, err := s.engine.Resolve(roundID, participantID, chosenIndex)
	if err != nil {
		return AnswerResult{}, err
	}
	result := AnswerResult{Outcome: outcome}
	if r != nil {
		result.CorrectOption = r.CorrectOption()
	}
	if outcome == domain.OutcomeDuplicate || outcome == domain.OutcomeExpired {
		return result, nil
	}

	now := s.now()
	for attempt := 0; attempt < 3; attempt++ {
		state, err := s.participants.Get(ctx, participantID)
		if errors.Is(err, domain.ErrParticipantNotFound) {
			state = s.policy.NewParticipant(participantID, "")
		} else if err != nil {
			return AnswerResult{}, err
		}

		next, award := s.policy.Apply(state, outcome, now)
		saved, err := s.participants.Upsert(ctx, next)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return AnswerResult{}, err
		}
		result.Award = award
		result.State = saved
		s.broadcastLeaderboard(ctx)
		return result, nil
	}
	return AnswerResult{}, domain.ErrVersionConflict
}

// AddQuestion appends a question to the bank, gated on the configured admin.
func (s *GameService) AddQuestion(ctx context.Context, requesterID int64, q domain.Question) (domain.Question, error) {
	if requesterID != s.adminID {
		return domain.Question{}, domain.ErrNotAuthorized
	}
	if !q.Valid() {
		return domain.Question{}, domain.ErrInvalidQuestion
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return s.bank.Add(ctx, q)
}

// RemoveQuestion deletes a question by id, gated on the configured admin.
func (s *GameService) RemoveQuestion(ctx context.Context, requesterID int64, id string) error {
	if requesterID != s.adminID {
		return domain.ErrNotAuthorized
	}
	return s.bank.Remove(ctx, id)
}

// Leaderboard returns the current standings, fully ordered: points first,
// earlier last answer breaks ties, then id.
func (s *GameService) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	all, err := s.participants.SnapshotAll(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	ranked := season.Rank(all, func(p domain.Participant) int { return p.Points })

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			ID:             p.ID,
			DisplayName:    p.DisplayName,
			Points:         p.Points,
			Level:          p.Level,
			PointsThisWeek: p.PointsThisWeek,
		})
	}

	s.mu.Lock()
	seasonID := s.activeSeason.ID
	s.mu.Unlock()
	return domain.Leaderboard{SeasonID: seasonID, Entries: entries, UpdatedAt: s.now()}, nil
}

// Subscribe returns a channel receiving leaderboard updates.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context) (<-chan domain.Leaderboard, func(), error) {
	initial, err := s.Leaderboard(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Leaderboard, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *GameService) broadcastLeaderboard(ctx context.Context) {
	lb, err := s.Leaderboard(ctx)
	if err != nil {
		log.Printf("leaderboard snapshot failed: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- lb:
		default:
			// Drop the stale update so a slow reader cannot block the rest.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
