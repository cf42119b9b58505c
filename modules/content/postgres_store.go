package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Store backed by the materials and
// quizzes tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an established pool.
// Panics on a nil pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("content: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

const materialColumns = `id, user_id, title, language, status, quiz_count, created_at`

func (s *PostgresStore) CreateMaterial(ctx context.Context, m *Material) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO materials (`+materialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.UserID, m.Title, m.Language, m.Status, m.QuizCount, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}

// GetMaterial scopes the lookup to the owner: another user's material is
// indistinguishable from a missing one.
func (s *PostgresStore) GetMaterial(ctx context.Context, userID, materialID uuid.UUID) (*Material, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = $1 AND user_id = $2`,
		materialID, userID)
	return scanMaterial(row)
}

func (s *PostgresStore) ListMaterials(ctx context.Context, userID uuid.UUID) ([]*Material, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+materialColumns+` FROM materials
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	defer rows.Close()

	var out []*Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

// DeleteMaterial removes the material; the quizzes table cascades.
// Consumed quota is not refunded.
func (s *PostgresStore) DeleteMaterial(ctx context.Context, userID, materialID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM materials WHERE id = $1 AND user_id = $2`, materialID, userID)
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

func (s *PostgresStore) CreateQuiz(ctx context.Context, q *Quiz) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, material_id, title, created_at)
		 VALUES ($1, $2, $3, $4)`,
		q.ID, q.MaterialID, q.Title, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQuizzes(ctx context.Context, materialID uuid.UUID) ([]*Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, material_id, title, created_at FROM quizzes
		 WHERE material_id = $1 ORDER BY created_at`, materialID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []*Quiz
	for rows.Next() {
		var q Quiz
		if err := rows.Scan(&q.ID, &q.MaterialID, &q.Title, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return out, nil
}

// QuizCount reads the lifetime generation counter, not the quiz row
// count: deleted quizzes do not refund the quota.
func (s *PostgresStore) QuizCount(ctx context.Context, materialID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT quiz_count FROM materials WHERE id = $1`, materialID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMaterialNotFound
		}
		return 0, fmt.Errorf("quiz count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) IncrementQuizCount(ctx context.Context, materialID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE materials SET quiz_count = quiz_count + 1 WHERE id = $1`, materialID)
	if err != nil {
		return fmt.Errorf("increment quiz count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMaterialNotFound
	}
	return nil
}

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	var status string
	err := row.Scan(&m.ID, &m.UserID, &m.Title, &m.Language, &status, &m.QuizCount, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMaterialNotFound
		}
		return nil, fmt.Errorf("scan material: %w", err)
	}
	m.Status = MaterialStatus(status)
	return &m, nil
}
