package round

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizward/quizward/internal/domain"
)

// State is the lifecycle of a round: open until answered per recipient
// or expired.
type State int

const (
	StateOpen State = iota
	StateResolved
	StateExpired
)

// Round is one broadcast instance of a question sent to a recipient set.
// It is owned exclusively by the Engine; the dispatch gateway only reads it.
type Round struct {
	ID              string
	QuestionID      string
	Prompt          string
	ShuffledOptions []string
	CorrectIndex    int
	RecipientIDs    []int64
	OpenedAt        time.Time
	State           State

	answered map[int64]struct{}
}

// CorrectOption returns the text of the correct option.
func (r *Round) CorrectOption() string {
	return r.ShuffledOptions[r.CorrectIndex]
}

// Engine opens rounds and resolves incoming answer events against them.
// Expiry is lazy: a round past its TTL is marked expired on the next
// resolution attempt, not by a timer.
type Engine struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.Mutex
	rnd    *rand.Rand
	rounds map[string]*Round
}

func NewEngine(ttl time.Duration) *Engine {
	return newEngine(ttl, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewEngineWithClock allows deterministic time and shuffling in tests.
func NewEngineWithClock(ttl time.Duration, clock func() time.Time, rnd *rand.Rand) *Engine {
	return newEngine(ttl, clock, rnd)
}

func newEngine(ttl time.Duration, clock func() time.Time, rnd *rand.Rand) *Engine {
	return &Engine{
		ttl:    ttl,
		clock:  clock,
		rnd:    rnd,
		rounds: make(map[string]*Round),
	}
}

// Open turns a question into a dispatched round with shuffled options and a
// remapped correct index. The question's own options are left untouched.
func (e *Engine) Open(q domain.Question, recipients []int64) *Round {
	e.mu.Lock()
	defer e.mu.Unlock()

	shuffled, correct := shuffleOptions(q, e.rnd)
	r := &Round{
		ID:              uuid.NewString(),
		QuestionID:      q.ID,
		Prompt:          q.Prompt,
		ShuffledOptions: shuffled,
		CorrectIndex:    correct,
		RecipientIDs:    append([]int64(nil), recipients...),
		OpenedAt:        e.clock(),
		State:           StateOpen,
		answered:        make(map[int64]struct{}),
	}
	e.rounds[r.ID] = r
	return r
}

// Resolve classifies one participant's answer. A broadcast round resolves
// per recipient: the first accepted answer for a participant is final, a
// repeat yields a duplicate outcome, and answers past the TTL expire without
// scoring. Resolve has no side effects beyond the returned outcome; the
// caller applies the scoring policy.
func (e *Engine) Resolve(roundID string, participantID int64, chosenIndex int) (domain.Outcome, *Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rounds[roundID]
	if !ok {
		return domain.OutcomeExpired, nil, domain.ErrRoundNotFound
	}

	// A participant who already answered stays a duplicate even after the
	// round has closed or expired.
	if _, dup := r.answered[participantID]; dup {
		return domain.OutcomeDuplicate, r, nil
	}

	now := e.clock()
	if r.State != StateOpen || now.After(r.OpenedAt.Add(e.ttl)) {
		if r.State == StateOpen {
			r.State = StateExpired
		}
		return domain.OutcomeExpired, r, nil
	}
	r.answered[participantID] = struct{}{}
	if len(r.answered) == len(r.RecipientIDs) && len(r.RecipientIDs) > 0 {
		r.State = StateResolved
	}

	if chosenIndex == r.CorrectIndex {
		return domain.OutcomeCorrect, r, nil
	}
	return domain.OutcomeIncorrect, r, nil
}

// Sweep drops rounds whose TTL has long passed so the map does not grow
// without bound. Abandoned rounds need no flush; they expire here.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock().Add(-2 * e.ttl)
	removed := 0
	for id, r := range e.rounds {
		if r.OpenedAt.Before(cutoff) {
			delete(e.rounds, id)
			removed++
		}
	}
	return removed
}

// shuffleOptions returns a shuffled copy of the options and the remapped
// index of the correct one. Fisher-Yates over index pairs keeps the mapping.
func shuffleOptions(q domain.Question, rnd *rand.Rand) ([]string, int) {
	order := make([]int, len(q.Options))
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	shuffled := make([]string, len(q.Options))
	correct := 0
	for pos, orig := range order {
		shuffled[pos] = q.Options[orig]
		if orig == q.CorrectIndex {
			correct = pos
		}
	}
	return shuffled, correct
}
