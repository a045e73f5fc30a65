package file

import (
	"context"
	"sync"

	"github.com/quizward/quizward/internal/domain"
)

// ParticipantStore is the file-backed app.ParticipantStore: records live in
// memory and every committed mutation is written through to disk before the
// in-memory state is treated as authoritative. A failed save surfaces a
// StorageError and rolls the memory image back.
type ParticipantStore struct {
	path string

	mu      sync.RWMutex
	records map[int64]domain.Participant
}

func NewParticipantStore(path string) (*ParticipantStore, error) {
	s := &ParticipantStore{path: path, records: make(map[int64]domain.Participant)}
	var stored []domain.Participant
	if _, err := readJSON(path, &stored); err != nil {
		return nil, &domain.StorageError{Op: "load participants", Err: err}
	}
	for _, p := range stored {
		s.records[p.ID] = p
	}
	return s, nil
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
	if err := s.persistLocked(); err != nil {
		// Roll back: memory is not authoritative until the save succeeds.
		if exists {
			s.records[p.ID] = current
		} else {
			delete(s.records, p.ID)
		}
		return domain.Participant{}, &domain.StorageError{Op: "save participants", Err: err}
	}
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

	before := make(map[int64]domain.Participant, len(s.records))
	for id, p := range s.records {
		before[id] = p
	}

	updated := fn(s.snapshotLocked())
	for _, p := range updated {
		p.Version = s.records[p.ID].Version + 1
		s.records[p.ID] = p
	}
	if err := s.persistLocked(); err != nil {
		s.records = before
		return nil, &domain.StorageError{Op: "save participants", Err: err}
	}
	return s.snapshotLocked(), nil
}

func (s *ParticipantStore) snapshotLocked() []domain.Participant {
	all := make([]domain.Participant, 0, len(s.records))
	for _, p := range s.records {
		all = append(all, p)
	}
	return all
}

func (s *ParticipantStore) persistLocked() error {
	return writeJSONAtomic(s.path, s.snapshotLocked())
}
