package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/backend/modules/billing"
	"github.com/lingokit/backend/pkg/identity"
	"github.com/lingokit/backend/pkg/subscription"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if sess, ok := args.Get(0).(*subscription.CheckoutSession); ok {
		return sess, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func (m *mockGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.Event, error) {
	args := m.Called(ctx, payload, signature)
	if ev, ok := args.Get(0).(*subscription.Event); ok {
		return ev, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockQuizCounter struct {
	mock.Mock
}

func (m *mockQuizCounter) QuizCount(ctx context.Context, materialID uuid.UUID) (int, error) {
	args := m.Called(ctx, materialID)
	return args.Int(0), args.Error(1)
}

func (m *mockQuizCounter) IncrementQuizCount(ctx context.Context, materialID uuid.UUID) error {
	args := m.Called(ctx, materialID)
	return args.Error(0)
}

type fixture struct {
	store   *subscription.MemoryStore
	gateway *mockGateway
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := subscription.NewMemoryStore()
	gw := &mockGateway{}

	engine := subscription.NewEngine(store, &mockQuizCounter{}, subscription.DefaultLimits())
	checkout := subscription.NewCheckout(store, gw, subscription.CheckoutConfig{
		PriceID:        "price_pro",
		TrialDays:      7,
		SuccessURL:     "https://app.test/billing/success",
		CancelURL:      "https://app.test/billing/cancel",
		GatewayTimeout: time.Second,
		UpgradeURL:     "/billing/checkout",
	})
	reconciler := subscription.NewReconciler(store)

	svc := billing.NewService(engine, checkout, reconciler, gw)
	return &fixture{store: store, gateway: gw, handler: svc.Handle()}
}

func authedRequest(method, target string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(identity.UserIDHeader, userID.String())
	req.Header.Set(identity.UserEmailHeader, "learner@example.com")
	return req
}

func TestService_Webhook(t *testing.T) {
	t.Parallel()

	webhookRequest := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		req.Header.Set("Stripe-Signature", "t=1,v1=sig")
		return req
	}

	t.Run("acknowledges applied event", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		now := time.Now().UTC()
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, "t=1,v1=sig").
			Return(&subscription.Event{
				ID:          "evt_1",
				Kind:        subscription.EventCheckoutCompleted,
				GatewayType: "checkout.session.completed",
				OccurredAt:  now,
				Checkout: &subscription.CheckoutCompleted{
					UserID:         userID,
					CustomerID:     "cus_1",
					SubscriptionID: "sub_1",
					Trialing:       true,
				},
			}, nil)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`{"id":"evt_1"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

		stored, err := f.store.Get(t.Context(), userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrialing, stored.Status)
	})

	t.Run("invalid signature returns 401", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrInvalidSignature)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`{}`))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed payload returns 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrMalformedPayload)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`not-json`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gateway follow-up failure returns 5xx for redelivery", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrGatewayUnavailable)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`{}`))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unhandled event is acknowledged", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(&subscription.Event{
				ID:          "evt_skip",
				Kind:        subscription.EventUnhandled,
				GatewayType: "customer.created",
				OccurredAt:  time.Now().UTC(),
			}, nil)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`{}`))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("invalid event rejected permanently", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(&subscription.Event{
				ID:          "evt_bad",
				Kind:        subscription.EventSubscriptionUpdated,
				GatewayType: "customer.subscription.updated",
				OccurredAt:  time.Now().UTC(),
			}, nil)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, webhookRequest(`{}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no identity required", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gateway.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrInvalidSignature)

		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		// 401 comes from signature verification, not a missing principal.
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		f.gateway.AssertCalled(t, "ParseWebhook", mock.Anything, mock.Anything, "")
	})
}

func TestService_Checkout(t *testing.T) {
	t.Parallel()

	t.Run("returns hosted session", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.gateway.On("CreateCustomer", mock.Anything, userID, "learner@example.com").
			Return("cus_new", nil)
		f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
			Return(&subscription.CheckoutSession{
				URL:       "https://checkout.stripe.com/c/pay/cs_1",
				SessionID: "cs_1",
			}, nil)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout", userID))

		require.Equal(t, http.StatusOK, rec.Code)

		var session subscription.CheckoutSession
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", session.URL)
		assert.Equal(t, "cs_1", session.SessionID)
	})

	t.Run("active subscriber gets conflict", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		now := time.Now().UTC()
		_, err := f.store.Ensure(t.Context(), userID, now)
		require.NoError(t, err)
		stored, err := f.store.Get(t.Context(), userID)
		require.NoError(t, err)
		stored.Status = subscription.StatusActive
		stored.CustomerID = "cus_1"
		require.NoError(t, f.store.Save(t.Context(), stored))

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout", userID))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("gateway outage returns 502", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.gateway.On("CreateCustomer", mock.Anything, userID, mock.Anything).
			Return("", errors.New("stripe: connection refused"))

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/checkout", userID))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("requires identity", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestService_SubscriptionStatus(t *testing.T) {
	t.Parallel()

	t.Run("free user defaults", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/subscription", userID))

		require.Equal(t, http.StatusOK, rec.Code)

		var info subscription.StatusInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, subscription.StatusFree, info.Status)
		assert.Equal(t, subscription.TierFree, info.Tier)
		assert.False(t, info.CanUseChat)
		assert.Equal(t, 1, info.UploadsLimit)
	})

	t.Run("pro subscriber", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		now := time.Now().UTC()
		_, err := f.store.Ensure(t.Context(), userID, now)
		require.NoError(t, err)
		stored, err := f.store.Get(t.Context(), userID)
		require.NoError(t, err)
		stored.Status = subscription.StatusActive
		require.NoError(t, f.store.Save(t.Context(), stored))

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/subscription", userID))

		require.Equal(t, http.StatusOK, rec.Code)

		var info subscription.StatusInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, subscription.TierPro, info.Tier)
		assert.True(t, info.CanUseChat)
		assert.Equal(t, 10, info.UploadsLimit)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("downgrades active subscriber", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		now := time.Now().UTC()
		_, err := f.store.Ensure(t.Context(), userID, now)
		require.NoError(t, err)
		stored, err := f.store.Get(t.Context(), userID)
		require.NoError(t, err)
		stored.Status = subscription.StatusActive
		stored.CustomerID = "cus_1"
		stored.SubscriptionID = "sub_1"
		require.NoError(t, f.store.Save(t.Context(), stored))

		f.gateway.On("CancelSubscription", mock.Anything, "sub_1").Return(nil)

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/cancel", userID))

		require.Equal(t, http.StatusOK, rec.Code)

		var info subscription.StatusInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, subscription.StatusFree, info.Status)
		assert.Equal(t, subscription.TierFree, info.Tier)
	})

	t.Run("nothing to cancel returns 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, authedRequest(http.MethodPost, "/cancel", userID))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
