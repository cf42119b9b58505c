// Package content manages learning materials and their generated quizzes,
// with every write gated by the subscription entitlement engine.
package content

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lingokit/backend/pkg/subscription"
)

// ErrMaterialNotFound is returned when the material does not exist or
// belongs to another user. It aliases the entitlement engine's sentinel
// so quota checks and store lookups agree on errors.Is.
var ErrMaterialNotFound = subscription.ErrMaterialNotFound

// MaterialStatus tracks the processing pipeline of an uploaded material.
type MaterialStatus string

const (
	MaterialPending   MaterialStatus = "pending"
	MaterialProcessed MaterialStatus = "processed"
	MaterialFailed    MaterialStatus = "failed"
)

// Material is a user-uploaded learning document.
type Material struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"-"`
	Title     string         `json:"title"`
	Language  string         `json:"language,omitempty"`
	Status    MaterialStatus `json:"status"`
	QuizCount int            `json:"quiz_count"`
	CreatedAt time.Time      `json:"created_at"`
}

// Quiz is a generated exercise attached to a material.
type Quiz struct {
	ID         uuid.UUID `json:"id"`
	MaterialID uuid.UUID `json:"material_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists materials and quizzes.
//
// QuizCount and IncrementQuizCount track lifetime quiz generations per
// material. The counter is monotonic: deleting a quiz row does not refund
// the generation.
type Store interface {
	CreateMaterial(ctx context.Context, m *Material) error
	GetMaterial(ctx context.Context, userID, materialID uuid.UUID) (*Material, error)
	ListMaterials(ctx context.Context, userID uuid.UUID) ([]*Material, error)
	DeleteMaterial(ctx context.Context, userID, materialID uuid.UUID) error

	CreateQuiz(ctx context.Context, q *Quiz) error
	ListQuizzes(ctx context.Context, materialID uuid.UUID) ([]*Quiz, error)

	QuizCount(ctx context.Context, materialID uuid.UUID) (int, error)
	IncrementQuizCount(ctx context.Context, materialID uuid.UUID) error

	CardStore
}
