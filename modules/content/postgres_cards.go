package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cardColumns = `id, material_id, user_id, term, translation, definition,
	context_sentence, grammar_note, learning_stage, next_review_at, created_at`

func (s *PostgresStore) CreateCards(ctx context.Context, cards []*Card) error {
	if len(cards) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(
			`INSERT INTO flashcards (`+cardColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.MaterialID, c.UserID, c.Term, c.Translation, c.Definition,
			c.ContextSentence, c.GrammarNote, c.LearningStage, c.NextReviewAt, c.CreatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("create flashcards: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCard(ctx context.Context, userID, cardID uuid.UUID) (*Card, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM flashcards WHERE id = $1 AND user_id = $2`,
		cardID, userID)
	return scanCard(row)
}

func (s *PostgresStore) ListCards(ctx context.Context, userID uuid.UUID, materialID *uuid.UUID) ([]*Card, error) {
	query := `SELECT ` + cardColumns + ` FROM flashcards WHERE user_id = $1`
	args := []any{userID}
	if materialID != nil {
		query += ` AND material_id = $2`
		args = append(args, *materialID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func (s *PostgresStore) DueCards(ctx context.Context, userID uuid.UUID, now time.Time, limit int) ([]*Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM flashcards
		 WHERE user_id = $1 AND next_review_at <= $2
		 ORDER BY next_review_at ASC LIMIT $3`,
		userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due flashcards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func (s *PostgresStore) UpdateCardReview(ctx context.Context, userID, cardID uuid.UUID, stage int, nextReviewAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE flashcards SET learning_stage = $3, next_review_at = $4
		 WHERE id = $1 AND user_id = $2`,
		cardID, userID, stage, nextReviewAt)
	if err != nil {
		return fmt.Errorf("update flashcard review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (s *PostgresStore) CardStats(ctx context.Context, userID uuid.UUID, now time.Time) (ReviewStats, error) {
	var stats ReviewStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			count(*),
			count(*) FILTER (WHERE next_review_at <= $2),
			count(*) FILTER (WHERE learning_stage = 0),
			count(*) FILTER (WHERE learning_stage > 0 AND learning_stage < $3),
			count(*) FILTER (WHERE learning_stage >= $3)
		 FROM flashcards WHERE user_id = $1`,
		userID, now, masteredStage).Scan(
		&stats.TotalCards, &stats.DueForReview, &stats.NewCards,
		&stats.Learning, &stats.Mastered)
	if err != nil {
		return ReviewStats{}, fmt.Errorf("flashcard stats: %w", err)
	}
	return stats, nil
}

func scanCard(row pgx.Row) (*Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.MaterialID, &c.UserID, &c.Term, &c.Translation,
		&c.Definition, &c.ContextSentence, &c.GrammarNote,
		&c.LearningStage, &c.NextReviewAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("scan flashcard: %w", err)
	}
	return &c, nil
}

func collectCards(rows pgx.Rows) ([]*Card, error) {
	var out []*Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collect flashcards: %w", err)
	}
	return out, nil
}
