package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CheckoutConfig holds the fixed plan parameters used for every checkout
// session plus the deadline applied to outbound gateway calls.
type CheckoutConfig struct {
	PriceID        string        `env:"BILLING_PRICE_ID,required"`                   // PriceID is the gateway's price reference for the pro plan.
	TrialDays      int           `env:"BILLING_TRIAL_DAYS" envDefault:"7"`           // TrialDays is the trial length granted on checkout.
	SuccessURL     string        `env:"BILLING_SUCCESS_URL,required"`                // SuccessURL is the redirect after a completed checkout.
	CancelURL      string        `env:"BILLING_CANCEL_URL,required"`                 // CancelURL is the redirect after an abandoned checkout.
	GatewayTimeout time.Duration `env:"BILLING_GATEWAY_TIMEOUT" envDefault:"10s"`    // GatewayTimeout bounds each call to the payment gateway.
	UpgradeURL     string        `env:"BILLING_UPGRADE_URL" envDefault:"/billing/checkout"` // UpgradeURL is advertised in quota denial payloads.
}

// Checkout initiates new subscriptions and cancellations against the
// payment gateway. It never sets a subscribed status itself: activation
// only happens when the gateway's webhook confirms the checkout.
type Checkout struct {
	store   RecordStore
	gateway Gateway
	cfg     CheckoutConfig
	log     *slog.Logger
	now     func() time.Time
}

// CheckoutOption configures a Checkout.
type CheckoutOption func(*Checkout)

// WithCheckoutLogger sets the logger. A nil logger is ignored.
func WithCheckoutLogger(log *slog.Logger) CheckoutOption {
	return func(c *Checkout) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCheckoutClock overrides the time source for tests.
func WithCheckoutClock(now func() time.Time) CheckoutOption {
	return func(c *Checkout) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCheckout creates a checkout orchestrator. Panics on nil dependencies
// to fail fast during initialization.
func NewCheckout(store RecordStore, gateway Gateway, cfg CheckoutConfig, opts ...CheckoutOption) *Checkout {
	if store == nil {
		panic("subscription: RecordStore is required")
	}
	if gateway == nil {
		panic("subscription: Gateway is required")
	}

	c := &Checkout{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession starts a hosted checkout for the user. It fails with
// ErrSubscriptionActive while a subscription is live. A gateway customer
// is created at most once: the reference is persisted before the session
// call so a retried request reuses it instead of minting a second
// customer.
func (c *Checkout) CreateSession(ctx context.Context, userID uuid.UUID, email string) (*CheckoutSession, error) {
	now := c.now()
	rec, err := c.store.Ensure(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if rec.Subscribed() {
		return nil, ErrSubscriptionActive
	}

	if rec.CustomerID == "" {
		customerID, err := c.createCustomer(ctx, userID, email)
		if err != nil {
			return nil, err
		}

		rec.CustomerID = customerID
		rec.UpdatedAt = now
		if err := c.store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist gateway customer reference: %w", err)
		}
	}

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()

	session, err := c.gateway.CreateCheckoutSession(gctx, CheckoutRequest{
		UserID:     userID,
		CustomerID: rec.CustomerID,
		PriceID:    c.cfg.PriceID,
		TrialDays:  c.cfg.TrialDays,
		SuccessURL: c.cfg.SuccessURL,
		CancelURL:  c.cfg.CancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrGatewayUnavailable, err)
	}
	return session, nil
}

// Cancel downgrades the user to free immediately. The gateway-side
// cancellation is best-effort: local state is the UX source of truth and a
// failed remote call is left for the webhook stream to reconcile.
// Fails with ErrNoActiveSubscription when the record is already free.
func (c *Checkout) Cancel(ctx context.Context, userID uuid.UUID) (*Record, error) {
	now := c.now()
	rec, err := c.store.Ensure(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if rec.Status == StatusFree {
		return nil, ErrNoActiveSubscription
	}

	if rec.SubscriptionID != "" {
		gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
		if err := c.gateway.CancelSubscription(gctx, rec.SubscriptionID); err != nil {
			c.log.ErrorContext(ctx, "gateway cancellation failed, downgrading locally anyway",
				slog.String("user_id", userID.String()),
				slog.String("subscription_id", rec.SubscriptionID),
				slog.Any("error", err))
		}
		cancel()
	}

	rec.Status = StatusFree
	rec.SubscriptionID = ""
	rec.TrialEnd = nil
	rec.PeriodStart = nil
	rec.PeriodEnd = nil
	rec.UpdatedAt = now

	if err := c.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save cancelled record: %w", err)
	}
	return rec, nil
}

func (c *Checkout) createCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()

	customerID, err := c.gateway.CreateCustomer(gctx, userID, email)
	if err != nil {
		return "", errors.Join(ErrGatewayUnavailable, err)
	}
	if customerID == "" {
		return "", errors.Join(ErrGatewayUnavailable, errors.New("gateway returned empty customer ID"))
	}
	return customerID, nil
}
