package round

import (
	"math/rand"
	"sync"
	"time"

	"github.com/quizward/quizward/internal/domain"
)

// Picker walks a shuffled permutation of the bank, reshuffling daily or when
// exhausted. Walking a permutation guarantees a question is never repeated
// back to back while the bank holds at least two entries.
type Picker struct {
	clock func() time.Time

	mu     sync.Mutex
	rnd    *rand.Rand
	queue  []domain.Question
	day    time.Time
	lastID string
}

func NewPicker() *Picker {
	return NewPickerWithClock(time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func NewPickerWithClock(clock func() time.Time, rnd *rand.Rand) *Picker {
	return &Picker{clock: clock, rnd: rnd}
}

// Next returns the next question from the given bank contents.
// It fails with the empty-bank error when no questions exist; the caller
// suppresses dispatch for that cycle instead of crashing.
func (p *Picker) Next(bank []domain.Question) (domain.Question, error) {
	if len(bank) == 0 {
		return domain.Question{}, domain.ErrEmptyBank
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if len(p.queue) == 0 || !p.day.Equal(today) {
		p.reshuffle(bank, today)
	}

	q := p.queue[0]
	p.queue = p.queue[1:]
	p.lastID = q.ID
	return q, nil
}

func (p *Picker) reshuffle(bank []domain.Question, day time.Time) {
	p.queue = append([]domain.Question(nil), bank...)
	p.rnd.Shuffle(len(p.queue), func(i, j int) {
		p.queue[i], p.queue[j] = p.queue[j], p.queue[i]
	})
	// Avoid an immediate repeat across the reshuffle seam.
	if len(p.queue) >= 2 && p.queue[0].ID == p.lastID {
		p.queue[0], p.queue[1] = p.queue[1], p.queue[0]
	}
	p.day = day
}
