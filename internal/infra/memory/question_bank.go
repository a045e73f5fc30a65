package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/quizward/quizward/internal/domain"
	"golang.org/x/sync/singleflight"
)

var errReadOnlySource = errors.New("question source is read-only")

// QuestionLoader fetches bank content from a backing store (file, Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionWriter is implemented by loaders that accept admin edits.
type QuestionWriter interface {
	SaveQuestion(ctx context.Context, q domain.Question) error
	DeleteQuestion(ctx context.Context, id string) error
}

// QuestionBank caches the bank with TTL to avoid repeated backing-store hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cache     []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Questions(ctx context.Context) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if b.cache != nil && b.expiresAt.After(now) {
		cached := b.cache
		b.mu.RUnlock()
		return cached, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do("questions", func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if b.cache != nil && b.expiresAt.After(now) {
			cached := b.cache
			b.mu.RUnlock()
			return cached, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache = questions
		b.expiresAt = now.Add(b.ttlWithJitter())
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Add stores the question through the loader when it accepts writes and
// drops the cache so the next read sees it.
func (b *QuestionBank) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	writer, ok := b.loader.(QuestionWriter)
	if !ok {
		return domain.Question{}, &domain.StorageError{Op: "add question", Err: errReadOnlySource}
	}
	if err := writer.SaveQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	b.invalidate()
	return q, nil
}

func (b *QuestionBank) Remove(ctx context.Context, id string) error {
	writer, ok := b.loader.(QuestionWriter)
	if !ok {
		return &domain.StorageError{Op: "remove question", Err: errReadOnlySource}
	}
	if err := writer.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	b.invalidate()
	return nil
}

func (b *QuestionBank) invalidate() {
	b.mu.Lock()
	b.cache = nil
	b.mu.Unlock()
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by a slice (tests/demos).
type StaticQuestionLoader struct {
	mu        sync.Mutex
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Question(nil), l.questions...), nil
}

func (l *StaticQuestionLoader) SaveQuestion(_ context.Context, q domain.Question) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.questions {
		if l.questions[i].ID == q.ID {
			l.questions[i] = q
			return nil
		}
	}
	l.questions = append(l.questions, q)
	return nil
}

func (l *StaticQuestionLoader) DeleteQuestion(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.questions {
		if l.questions[i].ID == id {
			l.questions = append(l.questions[:i], l.questions[i+1:]...)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

// SeasonStore keeps the active season in memory (tests/demos).
type SeasonStore struct {
	mu     sync.Mutex
	season domain.Season
	set    bool
}

func NewSeasonStore() *SeasonStore { return &SeasonStore{} }

func (s *SeasonStore) Load(_ context.Context) (domain.Season, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.season, s.set, nil
}

func (s *SeasonStore) Save(_ context.Context, season domain.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.season = season
	s.set = true
	return nil
}
