package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const questionHashKey = "quiz:questions"

// QuestionCache caches the bank in a Redis hash (field = question id,
// value = question JSON) and falls back to a loader on cache miss, so
// several bot instances share one warm copy.
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context) ([]domain.Question, error) {
	cached, err := c.client.HGetAll(ctx, questionHashKey).Result()
	if err == nil && len(cached) > 0 {
		return decodeQuestions(cached)
	}

	result, err, _ := c.sf.Do(questionHashKey, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		cached, err := c.client.HGetAll(ctx, questionHashKey).Result()
		if err == nil && len(cached) > 0 {
			return decodeQuestions(cached)
		}

		questions, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		pipe := c.client.Pipeline()
		for _, q := range questions {
			data, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, questionHashKey, q.ID, data)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, questionHashKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Add writes through the loader and drops the shared cache.
func (c *QuestionCache) Add(ctx context.Context, q domain.Question) (domain.Question, error) {
	writer, ok := c.loader.(memory.QuestionWriter)
	if !ok {
		return domain.Question{}, &domain.StorageError{Op: "add question", Err: errReadOnly}
	}
	if err := writer.SaveQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	_ = c.client.Del(ctx, questionHashKey).Err()
	return q, nil
}

func (c *QuestionCache) Remove(ctx context.Context, id string) error {
	writer, ok := c.loader.(memory.QuestionWriter)
	if !ok {
		return &domain.StorageError{Op: "remove question", Err: errReadOnly}
	}
	if err := writer.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	_ = c.client.Del(ctx, questionHashKey).Err()
	return nil
}

func decodeQuestions(cached map[string]string) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, len(cached))
	for _, raw := range cached {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, &domain.StorageError{Op: "decode question", Err: err}
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
