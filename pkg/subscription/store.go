package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordStore defines the persistence contract for subscription records.
// Each user has exactly one record, so UserID serves as the primary key.
// Save must be a single atomic row write; it is the only concurrency
// primitive the package relies on.
type RecordStore interface {
	// Get retrieves a record by user ID.
	// Returns ErrRecordNotFound if no record exists.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// GetByCustomerID retrieves a record by its gateway customer reference.
	// Returns ErrRecordNotFound when the reference is unknown or empty.
	GetByCustomerID(ctx context.Context, customerID string) (*Record, error)

	// Ensure returns the user's record, creating a free one if none exists.
	// The upsert is idempotent and guarded by a uniqueness constraint on the
	// user ID, so two concurrent first contacts cannot produce two rows.
	Ensure(ctx context.Context, userID uuid.UUID, now time.Time) (*Record, error)

	// Save writes the full record. Every field is assigned absolutely;
	// nothing is incremented relative to the stored row.
	Save(ctx context.Context, rec *Record) error
}

// QuizCounter is the contract to the content collaborator that owns the
// material entity. The lifetime per-material quiz counter lives on that
// entity; this package only reads and bumps it.
type QuizCounter interface {
	// QuizCount returns the lifetime quiz count for a material.
	// Returns ErrMaterialNotFound for unknown materials.
	QuizCount(ctx context.Context, materialID uuid.UUID) (int, error)

	// IncrementQuizCount bumps the counter by one. Never resets.
	IncrementQuizCount(ctx context.Context, materialID uuid.UUID) error
}
