package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/backend/pkg/subscription"
)

func seedSubscribedRecord(t *testing.T, store *subscription.MemoryStore, status subscription.Status, at time.Time) *subscription.Record {
	t.Helper()
	ctx := context.Background()

	rec, err := store.Ensure(ctx, uuid.New(), at)
	require.NoError(t, err)
	rec.Status = status
	rec.CustomerID = "cus_" + rec.UserID.String()[:8]
	rec.SubscriptionID = "sub_" + rec.UserID.String()[:8]
	require.NoError(t, store.Save(ctx, rec))
	return rec
}

func subscriptionEvent(kind subscription.EventKind, rec *subscription.Record, gatewayStatus string, occurredAt time.Time) *subscription.Event {
	return &subscription.Event{
		ID:          "evt_" + uuid.NewString()[:8],
		Kind:        kind,
		GatewayType: "customer.subscription.updated",
		OccurredAt:  occurredAt,
		Subscription: &subscription.SubscriptionChange{
			CustomerID:     rec.CustomerID,
			SubscriptionID: rec.SubscriptionID,
			GatewayStatus:  gatewayStatus,
		},
	}
}

func TestReconciler_CheckoutCompleted(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("trialing checkout activates trial and stamps trial start", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		rec := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		userID := uuid.New()

		trialEnd := base.Add(7 * 24 * time.Hour)
		ev := &subscription.Event{
			ID:          "evt_1",
			Kind:        subscription.EventCheckoutCompleted,
			GatewayType: "checkout.session.completed",
			OccurredAt:  base,
			Checkout: &subscription.CheckoutCompleted{
				UserID:         userID,
				CustomerID:     "cus_1",
				SubscriptionID: "sub_1",
				Trialing:       true,
				TrialEnd:       &trialEnd,
			},
		}

		require.NoError(t, rec.Apply(ctx, ev))

		got, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrialing, got.Status)
		assert.Equal(t, "cus_1", got.CustomerID)
		assert.Equal(t, "sub_1", got.SubscriptionID)
		require.NotNil(t, got.TrialStart)
		assert.Equal(t, base, *got.TrialStart)
		require.NotNil(t, got.TrialEnd)
		assert.Equal(t, trialEnd, *got.TrialEnd)
		require.NotNil(t, got.LastEventAt)
		assert.Equal(t, base, *got.LastEventAt)
	})

	t.Run("non-trialing checkout goes straight to active", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		rec := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		userID := uuid.New()

		ev := &subscription.Event{
			ID:          "evt_1",
			Kind:        subscription.EventCheckoutCompleted,
			GatewayType: "checkout.session.completed",
			OccurredAt:  base,
			Checkout: &subscription.CheckoutCompleted{
				UserID:         userID,
				CustomerID:     "cus_1",
				SubscriptionID: "sub_1",
			},
		}

		require.NoError(t, rec.Apply(ctx, ev))

		got, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Nil(t, got.TrialStart)
	})

	t.Run("checkout creates the record when none exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		rec := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		userID := uuid.New()

		_, err := store.Get(ctx, userID)
		require.ErrorIs(t, err, subscription.ErrRecordNotFound)

		ev := &subscription.Event{
			ID:         "evt_1",
			Kind:       subscription.EventCheckoutCompleted,
			OccurredAt: base,
			Checkout: &subscription.CheckoutCompleted{
				UserID:         userID,
				CustomerID:     "cus_1",
				SubscriptionID: "sub_1",
			},
		}
		require.NoError(t, rec.Apply(ctx, ev))

		got, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
	})
}

func TestReconciler_SubscriptionUpdated(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	statusCases := []struct {
		gateway string
		want    subscription.Status
	}{
		{"trialing", subscription.StatusTrialing},
		{"active", subscription.StatusActive},
		{"past_due", subscription.StatusPastDue},
		{"canceled", subscription.StatusCanceled},
		{"unpaid", subscription.StatusPastDue},
		{"incomplete_expired", subscription.StatusFree},
	}

	for _, tc := range statusCases {
		t.Run("maps gateway status "+tc.gateway, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := subscription.NewMemoryStore()
			r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
			rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

			ev := subscriptionEvent(subscription.EventSubscriptionUpdated, rec, tc.gateway, base.Add(time.Minute))
			require.NoError(t, r.Apply(ctx, ev))

			got, err := store.Get(ctx, rec.UserID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Status)

			if got.Tier() == subscription.TierPro {
				assert.Equal(t, rec.SubscriptionID, got.SubscriptionID)
			} else {
				assert.Empty(t, got.SubscriptionID)
			}
		})
	}

	t.Run("unknown customer is acknowledged without changes", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))

		ev := &subscription.Event{
			ID:         "evt_1",
			Kind:       subscription.EventSubscriptionUpdated,
			OccurredAt: base,
			Subscription: &subscription.SubscriptionChange{
				CustomerID:    "cus_unknown",
				GatewayStatus: "active",
			},
		}
		require.NoError(t, r.Apply(ctx, ev))
	})

	t.Run("replaying the same event is idempotent", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		ev := subscriptionEvent(subscription.EventSubscriptionUpdated, rec, "past_due", base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		first, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)

		require.NoError(t, r.Apply(ctx, ev))

		second, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("stale event is dropped", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		newer := subscriptionEvent(subscription.EventSubscriptionUpdated, rec, "past_due", base.Add(10*time.Minute))
		require.NoError(t, r.Apply(ctx, newer))

		older := subscriptionEvent(subscription.EventSubscriptionUpdated, rec, "active", base.Add(5*time.Minute))
		require.NoError(t, r.Apply(ctx, older))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, got.Status)
		require.NotNil(t, got.LastEventAt)
		assert.Equal(t, base.Add(10*time.Minute), *got.LastEventAt)
	})
}

func TestReconciler_SubscriptionDeleted(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("downgrades to free and clears gateway state", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		trialEnd := base.Add(24 * time.Hour)
		stored, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		stored.TrialEnd = &trialEnd
		stored.PeriodEnd = &trialEnd
		require.NoError(t, store.Save(ctx, stored))

		ev := subscriptionEvent(subscription.EventSubscriptionDeleted, rec, "canceled", base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusFree, got.Status)
		assert.Equal(t, subscription.TierFree, got.Tier())
		assert.Empty(t, got.SubscriptionID)
		assert.Nil(t, got.TrialEnd)
		assert.Nil(t, got.PeriodStart)
		assert.Nil(t, got.PeriodEnd)
		// Customer reference survives for future checkouts.
		assert.Equal(t, rec.CustomerID, got.CustomerID)
	})

	t.Run("replay against an already free record is a no-op", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusTrialing, base)

		ev := subscriptionEvent(subscription.EventSubscriptionDeleted, rec, "canceled", base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		first, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		require.Equal(t, subscription.StatusFree, first.Status)

		require.NoError(t, r.Apply(ctx, ev))

		second, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestReconciler_InvoiceEvents(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	invoiceEvent := func(rec *subscription.Record, kind subscription.EventKind, subID string, at time.Time) *subscription.Event {
		return &subscription.Event{
			ID:         "evt_" + uuid.NewString()[:8],
			Kind:       kind,
			OccurredAt: at,
			Invoice: &subscription.InvoiceChange{
				CustomerID:     rec.CustomerID,
				SubscriptionID: subID,
			},
		}
	}

	t.Run("payment succeeded confirms active", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusPastDue, base)

		ev := invoiceEvent(rec, subscription.EventInvoicePaid, rec.SubscriptionID, base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
	})

	t.Run("payment failed marks past due but keeps pro access", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		ev := invoiceEvent(rec, subscription.EventInvoicePaymentFailed, rec.SubscriptionID, base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPastDue, got.Status)
		assert.Equal(t, subscription.TierPro, got.Tier())
	})

	t.Run("invoice without subscription reference is ignored", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		ev := invoiceEvent(rec, subscription.EventInvoicePaymentFailed, "", base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
		assert.Nil(t, got.LastEventAt)
	})

	t.Run("invoice against a record without a subscription is ignored", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))
		rec := seedSubscribedRecord(t, store, subscription.StatusActive, base)

		stored, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		stored.SubscriptionID = ""
		require.NoError(t, store.Save(ctx, stored))

		ev := invoiceEvent(rec, subscription.EventInvoicePaid, "sub_other", base.Add(time.Minute))
		require.NoError(t, r.Apply(ctx, ev))

		got, err := store.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, got.Status)
	})
}

func TestReconciler_Apply_Validation(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("malformed event is rejected as permanent", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))

		ev := &subscription.Event{
			ID:         "evt_1",
			Kind:       subscription.EventSubscriptionUpdated,
			OccurredAt: base,
		}
		err := r.Apply(context.Background(), ev)
		require.Error(t, err)
		assert.ErrorIs(t, err, subscription.ErrMalformedPayload)
	})

	t.Run("unhandled event is acknowledged", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		r := subscription.NewReconciler(store, subscription.WithReconcilerClock(fixedClock(base)))

		ev := &subscription.Event{
			ID:         "evt_1",
			Kind:       subscription.EventUnhandled,
			OccurredAt: base,
		}
		require.NoError(t, r.Apply(context.Background(), ev))
	})
}
