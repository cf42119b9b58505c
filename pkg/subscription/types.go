package subscription

import "time"

// Status represents the current state of a user's subscription as mirrored
// from the payment gateway. The gateway remains authoritative for billing
// truth; this value only reflects the last reconciled report.
type Status string

const (
	StatusFree     Status = "free"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Valid reports whether s is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFree, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Tier is the free|pro classification derived from Status. All quota limits
// and feature gates key off the tier, never off the raw status.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Quota is the result of a limit check: whether the action is allowed plus
// the counter values callers surface in denial payloads.
type Quota struct {
	Allowed bool
	Used    int
	Limit   int
}

// StatusInfo is the full subscription view returned to interactive callers.
type StatusInfo struct {
	Status                  Status     `json:"status"`
	Tier                    Tier       `json:"tier"`
	TrialEnd                *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodEnd        *time.Time `json:"current_period_end,omitempty"`
	UploadsUsed             int        `json:"uploads_used"`
	UploadsLimit            int        `json:"uploads_limit"`
	QuizzesPerMaterialLimit int        `json:"quizzes_per_material_limit"`
	CanUseChat              bool       `json:"can_use_chat"`
}
