package subscription

import (
	"time"

	"github.com/google/uuid"
)

// usageWindow is the rolling quota window for weekly upload counting.
// Each lazy reset anchors the next boundary at now + usageWindow, so the
// window drifts with usage rather than aligning to a calendar day. This is
// deliberate and must survive refactors.
const usageWindow = 7 * 24 * time.Hour

// Record is the per-user subscription row. Exactly one exists per user; it
// is created lazily on the first entitlement check and never hard-deleted.
// Cancellation downgrades it to StatusFree and clears the gateway
// references instead.
type Record struct {
	UserID         uuid.UUID // primary key - one record per user
	Status         Status
	CustomerID     string // gateway customer reference, empty until first checkout
	SubscriptionID string // gateway subscription reference, set only while subscribed
	TrialStart     *time.Time
	TrialEnd       *time.Time
	PeriodStart    *time.Time
	PeriodEnd      *time.Time

	UploadsThisWeek int
	WeekResetAt     time.Time

	// LastEventAt is the occurrence time of the newest gateway event applied
	// to this record. The reconciler drops events strictly older than it so
	// an out-of-order redelivery cannot resurrect overwritten state.
	LastEventAt *time.Time

	UpdatedAt time.Time
}

// NewFreeRecord returns the record created for a user on first contact:
// free status, zero usage, quota window anchored at now.
func NewFreeRecord(userID uuid.UUID, now time.Time) *Record {
	return &Record{
		UserID:      userID,
		Status:      StatusFree,
		WeekResetAt: now.Add(usageWindow),
		UpdatedAt:   now,
	}
}

// Tier derives the free|pro classification from the status. Trialing,
// active and past_due all count as pro: past_due keeps access while the
// gateway retries the charge.
func (r *Record) Tier() Tier {
	switch r.Status {
	case StatusTrialing, StatusActive, StatusPastDue:
		return TierPro
	default:
		return TierFree
	}
}

// Subscribed reports whether the record holds a live gateway subscription,
// i.e. a new checkout must be refused.
func (r *Record) Subscribed() bool {
	return r.Tier() == TierPro
}

// resetWeekIfDue applies the lazy weekly reset in place. It returns true
// when the counter was reset and the record needs saving.
func (r *Record) resetWeekIfDue(now time.Time) bool {
	if now.Before(r.WeekResetAt) {
		return false
	}
	r.UploadsThisWeek = 0
	r.WeekResetAt = now.Add(usageWindow)
	return true
}

// staleFor reports whether an event that occurred at the given time is
// older than the newest event already applied to this record.
func (r *Record) staleFor(occurredAt time.Time) bool {
	return r.LastEventAt != nil && occurredAt.Before(*r.LastEventAt)
}

// clone returns a deep copy so store implementations never hand out
// aliased pointers.
func (r *Record) clone() *Record {
	cp := *r
	cp.TrialStart = copyTime(r.TrialStart)
	cp.TrialEnd = copyTime(r.TrialEnd)
	cp.PeriodStart = copyTime(r.PeriodStart)
	cp.PeriodEnd = copyTime(r.PeriodEnd)
	cp.LastEventAt = copyTime(r.LastEventAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
