package content

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrCardNotFound is returned when the flashcard does not exist or
// belongs to another user.
var ErrCardNotFound = errors.New("flashcard not found")

// ReviewQuality is the learner's self-assessment of recall.
type ReviewQuality string

const (
	QualityForgot ReviewQuality = "forgot"
	QualityKnow   ReviewQuality = "know"
)

// Valid reports whether q is a recognized quality value.
func (q ReviewQuality) Valid() bool {
	return q == QualityForgot || q == QualityKnow
}

// masteredStage is the learning stage from which a card counts as
// mastered in review stats.
const masteredStage = 5

// Card is a vocabulary flashcard extracted from a material, scheduled
// for spaced repetition. Stage 0 is a new card; each successful review
// advances the stage and pushes the next review further out.
type Card struct {
	ID              uuid.UUID `json:"id"`
	MaterialID      uuid.UUID `json:"material_id"`
	UserID          uuid.UUID `json:"-"`
	Term            string    `json:"term"`
	Translation     string    `json:"translation"`
	Definition      string    `json:"definition,omitempty"`
	ContextSentence string    `json:"context_sentence,omitempty"`
	GrammarNote     string    `json:"grammar_note,omitempty"`
	LearningStage   int       `json:"learning_stage"`
	NextReviewAt    time.Time `json:"next_review_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// CardDraft is the extractor's output: card content without identity or
// scheduling, which the module fills in on insert.
type CardDraft struct {
	Term            string
	Translation     string
	Definition      string
	ContextSentence string
	GrammarNote     string
}

// ReviewStats summarizes the learner's card collection.
type ReviewStats struct {
	TotalCards   int `json:"total_cards"`
	DueForReview int `json:"due_for_review"`
	NewCards     int `json:"new_cards"`
	Learning     int `json:"learning"`
	Mastered     int `json:"mastered"`
}

// NextReview computes the stage and due time after a review. A forgotten
// card drops back to stage 1 and comes up again in ten minutes. A known
// card advances one stage along a fixed ladder of intervals; past the
// ladder the interval grows as two days per new stage.
func NextReview(stage int, quality ReviewQuality, now time.Time) (int, time.Time) {
	if quality == QualityForgot {
		return 1, now.Add(10 * time.Minute)
	}

	newStage := stage + 1

	var delta time.Duration
	switch stage {
	case 0:
		delta = 10 * time.Minute
	case 1:
		delta = 24 * time.Hour
	case 2:
		delta = 3 * 24 * time.Hour
	case 3:
		delta = 7 * 24 * time.Hour
	case 4:
		delta = 14 * 24 * time.Hour
	default:
		delta = time.Duration(newStage*2) * 24 * time.Hour
	}

	return newStage, now.Add(delta)
}

// Extractor turns a material into vocabulary card drafts. The production
// implementation runs the LLM vocabulary pipeline; the module only
// schedules and stores what comes back.
type Extractor interface {
	Extract(ctx context.Context, material *Material) ([]CardDraft, error)
}

// CardStore persists flashcards and their review schedule.
type CardStore interface {
	CreateCards(ctx context.Context, cards []*Card) error
	GetCard(ctx context.Context, userID, cardID uuid.UUID) (*Card, error)
	// ListCards returns the user's cards, newest first. A non-nil
	// materialID narrows to that material.
	ListCards(ctx context.Context, userID uuid.UUID, materialID *uuid.UUID) ([]*Card, error)
	// DueCards returns cards with a review due at or before now, oldest
	// due first, capped at limit.
	DueCards(ctx context.Context, userID uuid.UUID, now time.Time, limit int) ([]*Card, error)
	UpdateCardReview(ctx context.Context, userID, cardID uuid.UUID, stage int, nextReviewAt time.Time) error
	CardStats(ctx context.Context, userID uuid.UUID, now time.Time) (ReviewStats, error)
}
