package file

import (
	"context"
	"strconv"
	"sync"

	"github.com/quizward/quizward/internal/domain"
)

// QuestionFile is a memory.QuestionLoader / memory.QuestionWriter over a
// JSON file of questions, the same layout the admin surface edits.
type QuestionFile struct {
	path string
	mu   sync.Mutex
}

func NewQuestionFile(path string) *QuestionFile {
	return &QuestionFile{path: path}
}

func (f *QuestionFile) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *QuestionFile) SaveQuestion(_ context.Context, q domain.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	questions, err := f.loadLocked()
	if err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = "q" + strconv.Itoa(len(questions)+1)
	}
	replaced := false
	for i := range questions {
		if questions[i].ID == q.ID {
			questions[i] = q
			replaced = true
			break
		}
	}
	if !replaced {
		questions = append(questions, q)
	}
	if err := writeJSONAtomic(f.path, questions); err != nil {
		return &domain.StorageError{Op: "save questions", Err: err}
	}
	return nil
}

func (f *QuestionFile) DeleteQuestion(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	questions, err := f.loadLocked()
	if err != nil {
		return err
	}
	for i := range questions {
		if questions[i].ID == id {
			questions = append(questions[:i], questions[i+1:]...)
			if err := writeJSONAtomic(f.path, questions); err != nil {
				return &domain.StorageError{Op: "save questions", Err: err}
			}
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (f *QuestionFile) loadLocked() ([]domain.Question, error) {
	var questions []domain.Question
	if _, err := readJSON(f.path, &questions); err != nil {
		return nil, &domain.StorageError{Op: "load questions", Err: err}
	}
	return questions, nil
}

// SeasonFile persists the single active season record.
type SeasonFile struct {
	path string
	mu   sync.Mutex
}

func NewSeasonFile(path string) *SeasonFile {
	return &SeasonFile{path: path}
}

func (f *SeasonFile) Load(_ context.Context) (domain.Season, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s domain.Season
	ok, err := readJSON(f.path, &s)
	if err != nil {
		return domain.Season{}, false, &domain.StorageError{Op: "load season", Err: err}
	}
	return s, ok && s.ID != "", nil
}

func (f *SeasonFile) Save(_ context.Context, s domain.Season) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeJSONAtomic(f.path, s); err != nil {
		return &domain.StorageError{Op: "save season", Err: err}
	}
	return nil
}
