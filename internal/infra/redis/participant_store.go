package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/quizward/quizward/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	participantKeyPrefix = "quiz:participant:"
	participantIndexKey  = "quiz:participants"
)

// ParticipantStore keeps one JSON record per participant with a WATCH-based
// optimistic upsert, so two racing answer events for the same participant
// cannot lose an update. Global operations read the index set, transform the
// snapshot, and write everything back in one MULTI.
type ParticipantStore struct {
	client *redis.Client
}

func NewParticipantStore(client *redis.Client) *ParticipantStore {
	return &ParticipantStore{client: client}
}

func (s *ParticipantStore) Get(ctx context.Context, id int64) (domain.Participant, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, &domain.StorageError{Op: "get participant", Err: err}
	}
	var p domain.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Participant{}, &domain.StorageError{Op: "decode participant", Err: err}
	}
	return p, nil
}

func (s *ParticipantStore) Upsert(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	key := s.key(p.ID)
	saved := p

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			if p.Version != 0 {
				return domain.ErrVersionConflict
			}
		case err != nil:
			return err
		default:
			var current domain.Participant
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return err
			}
			if current.Version != p.Version {
				return domain.ErrVersionConflict
			}
		}

		saved.Version = p.Version + 1
		data, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, participantIndexKey, p.ID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.Participant{}, domain.ErrVersionConflict
	}
	if errors.Is(err, redis.TxFailedErr) {
		// Someone else committed between read and write; same contract.
		return domain.Participant{}, domain.ErrVersionConflict
	}
	if err != nil {
		return domain.Participant{}, &domain.StorageError{Op: "upsert participant", Err: err}
	}
	return saved, nil
}

func (s *ParticipantStore) SnapshotAll(ctx context.Context) ([]domain.Participant, error) {
	ids, err := s.client.SMembers(ctx, participantIndexKey).Result()
	if err != nil {
		return nil, &domain.StorageError{Op: "list participants", Err: err}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &domain.StorageError{Op: "load participants", Err: err}
	}

	all := make([]domain.Participant, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // index entry without a record; skip
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, &domain.StorageError{Op: "decode participant", Err: err}
		}
		all = append(all, p)
	}
	return all, nil
}

// UpdateAll snapshots every record and rewrites the transformed result in one
// transaction. The index set and every participant key are watched: a write
// that lands between snapshot and commit fails the EXEC, and the transform
// reruns on a fresh snapshot instead of overwriting the newer record.
func (s *ParticipantStore) UpdateAll(ctx context.Context, fn func(all []domain.Participant) []domain.Participant) ([]domain.Participant, error) {
	for attempt := 0; attempt < 3; attempt++ {
		updated, err := s.updateAllOnce(ctx, fn)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, &domain.StorageError{Op: "update participants", Err: err}
		}
		return updated, nil
	}
	return nil, &domain.StorageError{Op: "update participants", Err: redis.TxFailedErr}
}

func (s *ParticipantStore) updateAllOnce(ctx context.Context, fn func(all []domain.Participant) []domain.Participant) ([]domain.Participant, error) {
	ids, err := s.client.SMembers(ctx, participantIndexKey).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, participantIndexKey)
	for _, id := range ids {
		keys = append(keys, participantKeyPrefix+id)
	}

	var updated []domain.Participant
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		all := make([]domain.Participant, 0, len(ids))
		if len(ids) > 0 {
			values, err := tx.MGet(ctx, keys[1:]...).Result()
			if err != nil {
				return err
			}
			for _, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				var p domain.Participant
				if err := json.Unmarshal([]byte(raw), &p); err != nil {
					return err
				}
				all = append(all, p)
			}
		}
		updated = fn(all)

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i := range updated {
				updated[i].Version++
				data, err := json.Marshal(updated[i])
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.key(updated[i].ID), data, 0)
			}
			return nil
		})
		return err
	}, keys...)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *ParticipantStore) key(id int64) string {
	return participantKeyPrefix + strconv.FormatInt(id, 10)
}
