package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production RecordStore backed by the
// subscriptions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on top of an established pool.
// Panics on a nil pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

const recordColumns = `user_id, status, customer_id, subscription_id,
	trial_start, trial_end, period_start, period_end,
	uploads_this_week, week_reset_at, last_event_at, updated_at`

// Get returns the record for the user or ErrRecordNotFound.
func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scanRecord(row)
}

// GetByCustomerID returns the record holding the gateway customer
// reference or ErrRecordNotFound. An empty reference never matches: free
// records store the empty string, not NULL.
func (s *PostgresStore) GetByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	if customerID == "" {
		return nil, ErrRecordNotFound
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM subscriptions WHERE customer_id = $1`, customerID)
	return scanRecord(row)
}

// Ensure returns the user's record, creating a free-tier one on first
// touch. The insert-then-select pair makes concurrent first touches for
// the same user converge on one row instead of racing.
func (s *PostgresStore) Ensure(ctx context.Context, userID uuid.UUID, now time.Time) (*Record, error) {
	fresh := NewFreeRecord(userID, now)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (user_id) DO NOTHING`,
		fresh.UserID, fresh.Status, fresh.CustomerID, fresh.SubscriptionID,
		fresh.TrialStart, fresh.TrialEnd, fresh.PeriodStart, fresh.PeriodEnd,
		fresh.UploadsThisWeek, fresh.WeekResetAt, fresh.LastEventAt, fresh.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure subscription record: %w", err)
	}

	return s.Get(ctx, userID)
}

// Save writes the full record, replacing every column. Assignments are
// absolute so replayed webhook deliveries converge to the same row.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET
			status = $2, customer_id = $3, subscription_id = $4,
			trial_start = $5, trial_end = $6, period_start = $7, period_end = $8,
			uploads_this_week = $9, week_reset_at = $10, last_event_at = $11, updated_at = $12
		 WHERE user_id = $1`,
		rec.UserID, rec.Status, rec.CustomerID, rec.SubscriptionID,
		rec.TrialStart, rec.TrialEnd, rec.PeriodStart, rec.PeriodEnd,
		rec.UploadsThisWeek, rec.WeekResetAt, rec.LastEventAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save subscription record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	err := row.Scan(
		&rec.UserID, &status, &rec.CustomerID, &rec.SubscriptionID,
		&rec.TrialStart, &rec.TrialEnd, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.UploadsThisWeek, &rec.WeekResetAt, &rec.LastEventAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan subscription record: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}
