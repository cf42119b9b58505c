package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Gateway defines the minimal interface to the external payment provider.
// The provider owns payment-method collection, charging, refunds and
// dunning through its hosted surfaces; this service only initiates
// checkouts/cancellations and mirrors the status the provider reports back
// through webhooks.
//
// Implementations must verify webhook signatures over the raw payload and
// parse provider payloads into the typed Event union before returning.
type Gateway interface {
	// CreateCustomer registers the user with the provider and returns the
	// opaque customer reference.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// CreateCheckoutSession starts a hosted checkout for the configured
	// subscription plan and returns the redirect target.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CancelSubscription cancels the provider-side subscription immediately.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// ParseWebhook verifies the signature and parses the raw payload.
	// Returns ErrInvalidSignature or ErrMalformedPayload (both permanent)
	// on boundary failures.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

// CheckoutRequest describes the session to create.
type CheckoutRequest struct {
	UserID     uuid.UUID
	CustomerID string // existing provider customer reference
	PriceID    string // provider's price/plan identifier
	TrialDays  int
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the hosted checkout the caller redirects to.
type CheckoutSession struct {
	URL       string `json:"checkout_url"`
	SessionID string `json:"session_id"`
}
