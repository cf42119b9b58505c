package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Engine answers entitlement questions for a user. It owns the lazy weekly
// usage reset: any check that touches the upload counter first rolls the
// quota window forward when its boundary has passed.
//
// Counter increments follow a read-then-write pattern without locking.
// Concurrent requests for the same user can lose an update; quotas are
// a product limit, not a hard safety guarantee.
type Engine struct {
	store   RecordStore
	quizzes QuizCounter
	limits  Limits
	log     *slog.Logger
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger. A nil logger is ignored.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEngineClock overrides the time source, useful for testing window
// boundaries with fixed times.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an entitlement engine. Panics on nil store or counter
// to fail fast during initialization.
func NewEngine(store RecordStore, quizzes QuizCounter, limits Limits, opts ...EngineOption) *Engine {
	if store == nil {
		panic("subscription: RecordStore is required")
	}
	if quizzes == nil {
		panic("subscription: QuizCounter is required")
	}

	e := &Engine{
		store:   store,
		quizzes: quizzes,
		limits:  limits,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckUploadLimit reports whether the user may upload another material
// this week. It materializes the record on first contact and applies the
// lazy weekly reset before comparing against the tier quota.
func (e *Engine) CheckUploadLimit(ctx context.Context, userID uuid.UUID) (Quota, error) {
	rec, err := e.freshRecord(ctx, userID)
	if err != nil {
		return Quota{}, err
	}

	limit := e.limits.UploadsPerWeek(rec.Tier())
	return Quota{
		Allowed: rec.UploadsThisWeek < limit,
		Used:    rec.UploadsThisWeek,
		Limit:   limit,
	}, nil
}

// IncrementUpload bumps the weekly upload counter. It does not check the
// limit; callers are expected to have checked first.
func (e *Engine) IncrementUpload(ctx context.Context, userID uuid.UUID) error {
	now := e.now()
	rec, err := e.store.Ensure(ctx, userID, now)
	if err != nil {
		return err
	}

	rec.UploadsThisWeek++
	rec.UpdatedAt = now
	return e.store.Save(ctx, rec)
}

// CheckQuizLimit reports whether another quiz may be created for the
// material. The counter is lifetime per material, never time-windowed.
// An unknown material denies with zero usage rather than erroring, since
// the caller will surface its own not-found handling.
func (e *Engine) CheckQuizLimit(ctx context.Context, userID, materialID uuid.UUID) (Quota, error) {
	rec, err := e.store.Ensure(ctx, userID, e.now())
	if err != nil {
		return Quota{}, err
	}

	limit := e.limits.QuizzesPerMaterial(rec.Tier())

	count, err := e.quizzes.QuizCount(ctx, materialID)
	if err != nil {
		if errors.Is(err, ErrMaterialNotFound) {
			return Quota{Allowed: false, Used: 0, Limit: limit}, nil
		}
		return Quota{}, err
	}

	return Quota{
		Allowed: count < limit,
		Used:    count,
		Limit:   limit,
	}, nil
}

// IncrementQuizCount bumps the material's lifetime quiz counter.
func (e *Engine) IncrementQuizCount(ctx context.Context, materialID uuid.UUID) error {
	return e.quizzes.IncrementQuizCount(ctx, materialID)
}

// CheckChatAccess reports whether the user may use chat. Pro tier only.
func (e *Engine) CheckChatAccess(ctx context.Context, userID uuid.UUID) (bool, error) {
	rec, err := e.store.Ensure(ctx, userID, e.now())
	if err != nil {
		return false, err
	}
	return rec.Tier() == TierPro, nil
}

// Status assembles the full subscription view for the status endpoint.
func (e *Engine) Status(ctx context.Context, userID uuid.UUID) (*StatusInfo, error) {
	rec, err := e.freshRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.statusInfo(rec), nil
}

// StatusFor builds the status view from an already-loaded record without
// touching the store. The cancellation path uses it to report the state it
// just wrote.
func (e *Engine) StatusFor(rec *Record) *StatusInfo {
	return e.statusInfo(rec)
}

func (e *Engine) statusInfo(rec *Record) *StatusInfo {
	tier := rec.Tier()
	return &StatusInfo{
		Status:                  rec.Status,
		Tier:                    tier,
		TrialEnd:                rec.TrialEnd,
		CurrentPeriodEnd:        rec.PeriodEnd,
		UploadsUsed:             rec.UploadsThisWeek,
		UploadsLimit:            e.limits.UploadsPerWeek(tier),
		QuizzesPerMaterialLimit: e.limits.QuizzesPerMaterial(tier),
		CanUseChat:              tier == TierPro,
	}
}

// freshRecord loads (or creates) the record and persists a weekly reset
// when the window boundary has passed.
func (e *Engine) freshRecord(ctx context.Context, userID uuid.UUID) (*Record, error) {
	now := e.now()
	rec, err := e.store.Ensure(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if rec.resetWeekIfDue(now) {
		rec.UpdatedAt = now
		if err := e.store.Save(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
