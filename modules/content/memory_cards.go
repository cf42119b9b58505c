package content

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

func (s *MemoryStore) CreateCards(_ context.Context, cards []*Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cards {
		cp := *c
		s.cards[c.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) GetCard(_ context.Context, userID, cardID uuid.UUID) (*Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, ErrCardNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCards(_ context.Context, userID uuid.UUID, materialID *uuid.UUID) ([]*Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Card
	for _, c := range s.cards {
		if c.UserID != userID {
			continue
		}
		if materialID != nil && c.MaterialID != *materialID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DueCards(_ context.Context, userID uuid.UUID, now time.Time, limit int) ([]*Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Card
	for _, c := range s.cards {
		if c.UserID != userID || c.NextReviewAt.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextReviewAt.Before(out[j].NextReviewAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateCardReview(_ context.Context, userID, cardID uuid.UUID, stage int, nextReviewAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return ErrCardNotFound
	}
	c.LearningStage = stage
	c.NextReviewAt = nextReviewAt
	return nil
}

func (s *MemoryStore) CardStats(_ context.Context, userID uuid.UUID, now time.Time) (ReviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats ReviewStats
	for _, c := range s.cards {
		if c.UserID != userID {
			continue
		}
		stats.TotalCards++
		if !c.NextReviewAt.After(now) {
			stats.DueForReview++
		}
		switch {
		case c.LearningStage == 0:
			stats.NewCards++
		case c.LearningStage >= masteredStage:
			stats.Mastered++
		default:
			stats.Learning++
		}
	}
	return stats, nil
}
