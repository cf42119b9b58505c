package content

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	materials map[uuid.UUID]*Material
	quizzes   map[uuid.UUID][]*Quiz // keyed by material ID
	cards     map[uuid.UUID]*Card
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		materials: make(map[uuid.UUID]*Material),
		quizzes:   make(map[uuid.UUID][]*Quiz),
		cards:     make(map[uuid.UUID]*Card),
	}
}

func (s *MemoryStore) CreateMaterial(_ context.Context, m *Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.materials[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMaterial(_ context.Context, userID, materialID uuid.UUID) (*Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.materials[materialID]
	if !ok || m.UserID != userID {
		return nil, ErrMaterialNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMaterials(_ context.Context, userID uuid.UUID) ([]*Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Material
	for _, m := range s.materials {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteMaterial removes the material and its quizzes. Consumed quota is
// not refunded: the upload counter lives on the subscription record.
func (s *MemoryStore) DeleteMaterial(_ context.Context, userID, materialID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.materials[materialID]
	if !ok || m.UserID != userID {
		return ErrMaterialNotFound
	}
	delete(s.materials, materialID)
	delete(s.quizzes, materialID)
	for id, c := range s.cards {
		if c.MaterialID == materialID {
			delete(s.cards, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateQuiz(_ context.Context, q *Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.materials[q.MaterialID]; !ok {
		return ErrMaterialNotFound
	}
	cp := *q
	s.quizzes[q.MaterialID] = append(s.quizzes[q.MaterialID], &cp)
	return nil
}

func (s *MemoryStore) ListQuizzes(_ context.Context, materialID uuid.UUID) ([]*Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quizzes := s.quizzes[materialID]
	out := make([]*Quiz, 0, len(quizzes))
	for _, q := range quizzes {
		cp := *q
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) QuizCount(_ context.Context, materialID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.materials[materialID]
	if !ok {
		return 0, ErrMaterialNotFound
	}
	return m.QuizCount, nil
}

func (s *MemoryStore) IncrementQuizCount(_ context.Context, materialID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.materials[materialID]
	if !ok {
		return ErrMaterialNotFound
	}
	m.QuizCount++
	return nil
}
