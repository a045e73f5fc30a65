package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/infra/memory"
	"github.com/redis/go-redis/v9"
)

func TestQuestionCacheFillsRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestions()),
	}
	cache := NewQuestionCache(client, loader, time.Minute)

	questions, err := cache.Questions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 1 || loader.calls != 1 {
		t.Fatalf("expected 1 question via loader, got %d questions, %d calls", len(questions), loader.calls)
	}
	if !mr.Exists(questionHashKey) {
		t.Fatalf("expected redis hash to be filled")
	}

	// Second call should hit redis, loader not incremented.
	if _, err := cache.Questions(context.Background()); err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

func TestQuestionCacheAddDropsSharedCopy(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	static := memory.NewStaticQuestionLoader(sampleQuestions())
	cache := NewQuestionCache(client, static, time.Minute)

	if _, err := cache.Questions(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if _, err := cache.Add(ctx, domain.Question{ID: "q2", Prompt: "Capital of Peru?", Options: []string{"Lima", "Cusco"}, CorrectIndex: 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if mr.Exists(questionHashKey) {
		t.Fatalf("expected cache dropped after add")
	}

	questions, err := cache.Questions(ctx)
	if err != nil || len(questions) != 2 {
		t.Fatalf("expected 2 questions after add, got %d err=%v", len(questions), err)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "q1",
			Prompt:       "What is 2 + 2?",
			Options:      []string{"3", "4", "5"},
			CorrectIndex: 1,
		},
	}
}
