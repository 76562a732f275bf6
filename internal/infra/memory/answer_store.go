package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

type answerKey struct {
	deviceID   string
	questionID string
}

// AnswerStore is an in-memory implementation of app.AnswerStore, used when no
// Postgres URL is configured and in tests. First-write-wins is enforced under
// a single mutex, mirroring the database's composite primary key.
type AnswerStore struct {
	clock func() time.Time

	mu      sync.Mutex
	answers map[answerKey]domain.Answer
	order   []answerKey
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{
		clock:   time.Now,
		answers: make(map[answerKey]domain.Answer),
	}
}

// NewAnswerStoreWithClock is test-only for deterministic timestamps.
func NewAnswerStoreWithClock(clock func() time.Time) *AnswerStore {
	store := NewAnswerStore()
	store.clock = clock
	return store
}

func (s *AnswerStore) Insert(_ context.Context, answer *domain.Answer) (app.InsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := answerKey{deviceID: answer.DeviceID, questionID: answer.QuestionID}
	if _, exists := s.answers[key]; exists {
		return app.InsertDuplicate, nil
	}

	answer.ReceivedAt = s.clock()
	s.answers[key] = *answer
	s.order = append(s.order, key)
	return app.InsertCommitted, nil
}

func (s *AnswerStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := len(s.answers)
	s.answers = make(map[answerKey]domain.Answer)
	s.order = nil
	return deleted, nil
}

func (s *AnswerStore) ScanAll(_ context.Context) ([]domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make([]domain.Answer, 0, len(s.order))
	for _, key := range s.order {
		answers = append(answers, s.answers[key])
	}
	return answers, nil
}
