package memory

import (
	"context"
	"sync"

	"github.com/quizward/quizward/internal/domain"
)

// ParticipantStore is an in-memory implementation of app.ParticipantStore.
// The single mutex gives the per-participant read-modify-write serialization
// and lets UpdateAll take its snapshot with award writes blocked.
type ParticipantStore struct {
	mu      sync.RWMutex
	records map[int64]domain.Participant
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{records: make(map[int64]domain.Participant)}
}

func (s *ParticipantStore) Get(_ context.Context, id int64) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *ParticipantStore) Upsert(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[p.ID]
	if exists && current.Version != p.Version {
		return domain.Participant{}, domain.ErrVersionConflict
	}
	if !exists && p.Version != 0 {
		return domain.Participant{}, domain.ErrVersionConflict
	}
	p.Version++
	s.records[p.ID] = p
	return p, nil
}

func (s *ParticipantStore) SnapshotAll(_ context.Context) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(), nil
}

func (s *ParticipantStore) UpdateAll(_ context.Context, fn func(all []domain.Participant) []domain.Participant) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := fn(s.snapshotLocked())
	for _, p := range updated {
		p.Version = s.records[p.ID].Version + 1
		s.records[p.ID] = p
	}
	return updated, nil
}

func (s *ParticipantStore) snapshotLocked() []domain.Participant {
	all := make([]domain.Participant, 0, len(s.records))
	for _, p := range s.records {
		all = append(all, p)
	}
	return all
}
