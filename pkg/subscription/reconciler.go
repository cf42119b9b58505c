package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// gatewayStatusMap is the fixed translation table from provider status
// strings to local statuses. Anything unrecognized falls back to free so a
// provider vocabulary change degrades access instead of granting it.
var gatewayStatusMap = map[string]Status{
	"trialing": StatusTrialing,
	"active":   StatusActive,
	"past_due": StatusPastDue,
	"canceled": StatusCanceled,
	"unpaid":   StatusPastDue,
}

func mapGatewayStatus(s string) Status {
	if mapped, ok := gatewayStatusMap[s]; ok {
		return mapped
	}
	return StatusFree
}

// Reconciler applies gateway events to subscription records. Delivery is
// at-least-once with no ordering guarantee, so every transition is an
// absolute assignment (replays converge) and events strictly older than
// the record's newest applied event are dropped.
//
// Apply returns nil for every benign no-op (unknown customer, ignored
// event type, stale delivery) so the HTTP layer acknowledges them and the
// gateway does not retry forever. A non-nil error always means
// "retryable": a transient store failure worth a redelivery.
type Reconciler struct {
	store RecordStore
	log   *slog.Logger
	now   func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger sets the logger. A nil logger is ignored.
func WithReconcilerLogger(log *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithReconcilerClock overrides the time source for tests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a reconciler. Panics on a nil store to fail fast
// during initialization.
func NewReconciler(store RecordStore, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("subscription: RecordStore is required")
	}

	r := &Reconciler{
		store: store,
		log:   slog.Default(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply runs one event through the transition table.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}

	switch ev.Kind {
	case EventCheckoutCompleted:
		return r.applyCheckoutCompleted(ctx, ev)
	case EventSubscriptionUpdated:
		return r.applySubscriptionUpdated(ctx, ev)
	case EventSubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, ev)
	case EventInvoicePaid:
		return r.applyInvoice(ctx, ev, StatusActive)
	case EventInvoicePaymentFailed:
		return r.applyInvoice(ctx, ev, StatusPastDue)
	default:
		r.log.DebugContext(ctx, "ignoring gateway event",
			slog.String("event_id", ev.ID),
			slog.String("gateway_type", ev.GatewayType))
		return nil
	}
}

func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, ev *Event) error {
	data := ev.Checkout
	now := r.now()

	// Checkout may complete before the user ever hit an entitlement check,
	// so materialize the record here as well.
	rec, err := r.store.Ensure(ctx, data.UserID, now)
	if err != nil {
		return fmt.Errorf("load record for checkout event: %w", err)
	}
	if r.dropStale(ctx, rec, ev) {
		return nil
	}

	if data.Trialing {
		rec.Status = StatusTrialing
		if rec.TrialStart == nil {
			rec.TrialStart = &now
		}
	} else {
		rec.Status = StatusActive
	}
	rec.CustomerID = data.CustomerID
	rec.SubscriptionID = data.SubscriptionID
	rec.TrialEnd = data.TrialEnd
	rec.PeriodStart = data.PeriodStart
	rec.PeriodEnd = data.PeriodEnd
	r.stamp(rec, ev, now)

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record for checkout event: %w", err)
	}

	r.log.InfoContext(ctx, "subscription started via checkout",
		slog.String("user_id", data.UserID.String()),
		slog.String("status", string(rec.Status)))
	return nil
}

func (r *Reconciler) applySubscriptionUpdated(ctx context.Context, ev *Event) error {
	data := ev.Subscription

	rec, ok, err := r.lookupByCustomer(ctx, ev, data.CustomerID)
	if err != nil || !ok {
		return err
	}
	if r.dropStale(ctx, rec, ev) {
		return nil
	}

	rec.Status = mapGatewayStatus(data.GatewayStatus)
	if rec.Subscribed() {
		rec.SubscriptionID = data.SubscriptionID
	} else {
		// The subscription reference may only be held while subscribed.
		rec.SubscriptionID = ""
	}
	rec.TrialEnd = data.TrialEnd
	rec.PeriodStart = data.PeriodStart
	rec.PeriodEnd = data.PeriodEnd
	r.stamp(rec, ev, r.now())

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record for subscription update: %w", err)
	}

	r.log.InfoContext(ctx, "subscription updated",
		slog.String("user_id", rec.UserID.String()),
		slog.String("gateway_status", data.GatewayStatus),
		slog.String("status", string(rec.Status)))
	return nil
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, ev *Event) error {
	data := ev.Subscription

	rec, ok, err := r.lookupByCustomer(ctx, ev, data.CustomerID)
	if err != nil || !ok {
		return err
	}
	if r.dropStale(ctx, rec, ev) {
		return nil
	}

	// Terminal regardless of prior status; replaying it against an
	// already-free record is a no-op by assignment.
	rec.Status = StatusFree
	rec.SubscriptionID = ""
	rec.TrialEnd = nil
	rec.PeriodStart = nil
	rec.PeriodEnd = nil
	r.stamp(rec, ev, r.now())

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record for subscription deletion: %w", err)
	}

	r.log.InfoContext(ctx, "subscription deleted, downgraded to free",
		slog.String("user_id", rec.UserID.String()))
	return nil
}

func (r *Reconciler) applyInvoice(ctx context.Context, ev *Event, next Status) error {
	data := ev.Invoice

	// Invoices unrelated to a subscription carry no reference; ignore them.
	if data.SubscriptionID == "" {
		return nil
	}

	rec, ok, err := r.lookupByCustomer(ctx, ev, data.CustomerID)
	if err != nil || !ok {
		return err
	}
	if rec.SubscriptionID == "" {
		// Local record never bound to a subscription: nothing to settle.
		return nil
	}
	if r.dropStale(ctx, rec, ev) {
		return nil
	}

	rec.Status = next
	r.stamp(rec, ev, r.now())

	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record for invoice event: %w", err)
	}

	r.log.InfoContext(ctx, "invoice outcome applied",
		slog.String("user_id", rec.UserID.String()),
		slog.String("status", string(next)))
	return nil
}

// lookupByCustomer resolves the record for a customer reference. Unknown
// customers are logged and acknowledged as success: failing the delivery
// would only trigger a retry storm for an event this service can never
// apply.
func (r *Reconciler) lookupByCustomer(ctx context.Context, ev *Event, customerID string) (*Record, bool, error) {
	rec, err := r.store.GetByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			r.log.WarnContext(ctx, "no record for gateway customer, dropping event",
				slog.String("event_id", ev.ID),
				slog.String("gateway_type", ev.GatewayType),
				slog.String("customer_id", customerID))
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup record by customer: %w", err)
	}
	return rec, true, nil
}

// dropStale reports whether the event predates the newest event already
// applied. Equal timestamps still apply so an exact redelivery stays
// idempotent.
func (r *Reconciler) dropStale(ctx context.Context, rec *Record, ev *Event) bool {
	if !rec.staleFor(ev.OccurredAt) {
		return false
	}
	r.log.WarnContext(ctx, "dropping stale gateway event",
		slog.String("event_id", ev.ID),
		slog.String("gateway_type", ev.GatewayType),
		slog.String("user_id", rec.UserID.String()),
		slog.Time("occurred_at", ev.OccurredAt),
		slog.Time("last_event_at", *rec.LastEventAt))
	return true
}

func (r *Reconciler) stamp(rec *Record, ev *Event, now time.Time) {
	occurred := ev.OccurredAt
	rec.LastEventAt = &occurred
	rec.UpdatedAt = now
}
