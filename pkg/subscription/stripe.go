package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds the Stripe API credentials.
type StripeConfig struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

// StripeGateway implements Gateway against the Stripe API. The client is
// created once; Stripe's package-level global key is never touched.
type StripeGateway struct {
	api       *client.API
	secret    string
	tolerance time.Duration
}

// NewStripeGateway creates a Stripe-backed gateway. Panics when the
// secret key or webhook secret is empty.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.SecretKey == "" {
		panic("subscription: stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		panic("subscription: stripe webhook secret is required")
	}

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}

	return &StripeGateway{
		api:       client.New(cfg.SecretKey, nil),
		secret:    cfg.WebhookSecret,
		tolerance: tolerance,
	}
}

// CreateCustomer registers the user as a Stripe customer and returns the
// customer reference. The user ID travels in metadata so support tooling
// can map customers back without a database lookup.
func (g *StripeGateway) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID.String())

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession opens a hosted subscription checkout. The user ID
// is carried as the client reference so the completed-checkout webhook
// can attribute the session.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID.String()),
	}
	if req.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(req.TrialDays)),
		}
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{URL: s.URL, SessionID: s.ID}, nil
}

// CancelSubscription cancels the subscription immediately, without
// proration.
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := g.api.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params:  stripe.Params{Context: ctx},
		Prorate: stripe.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("cancel stripe subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// expandableID unmarshals a Stripe reference that arrives either as a
// bare ID string or as an expanded object with an "id" field.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

// Raw payload shapes. Stripe has moved fields between API versions, so
// only the fields reconciliation needs are declared here, with fallbacks
// for the relocated ones.
type stripeCheckoutSessionPayload struct {
	Customer          expandableID `json:"customer"`
	Subscription      expandableID `json:"subscription"`
	ClientReferenceID string       `json:"client_reference_id"`
}

type stripeSubscriptionPayload struct {
	Customer expandableID `json:"customer"`
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	TrialEnd int64        `json:"trial_end"`
	Items    struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoicePayload struct {
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *stripeInvoicePayload) subscriptionID() string {
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil && p.Parent.SubscriptionDetails.Subscription != "" {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	return string(p.Subscription)
}

// ParseWebhook verifies the signature and timestamp of a raw webhook
// delivery and translates it into a gateway-neutral Event. Event types
// outside the handled set come back as EventUnhandled so the caller can
// acknowledge them without touching any record.
func (g *StripeGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEventWithTolerance(payload, signature, g.secret, g.tolerance)
	if err != nil {
		return nil, classifyWebhookError(err)
	}

	ev := &Event{
		ID:          stripeEvent.ID,
		GatewayType: string(stripeEvent.Type),
		OccurredAt:  time.Unix(stripeEvent.Created, 0).UTC(),
	}

	switch stripeEvent.Type {
	case "checkout.session.completed":
		ev.Kind = EventCheckoutCompleted
		if err := g.parseCheckoutCompleted(ctx, stripeEvent.Data.Raw, ev); err != nil {
			return nil, err
		}
	case "customer.subscription.updated":
		ev.Kind = EventSubscriptionUpdated
		if err := parseSubscriptionChange(stripeEvent.Data.Raw, ev); err != nil {
			return nil, err
		}
	case "customer.subscription.deleted":
		ev.Kind = EventSubscriptionDeleted
		if err := parseSubscriptionChange(stripeEvent.Data.Raw, ev); err != nil {
			return nil, err
		}
	case "invoice.payment_succeeded":
		ev.Kind = EventInvoicePaid
		if err := parseInvoiceChange(stripeEvent.Data.Raw, ev); err != nil {
			return nil, err
		}
	case "invoice.payment_failed":
		ev.Kind = EventInvoicePaymentFailed
		if err := parseInvoiceChange(stripeEvent.Data.Raw, ev); err != nil {
			return nil, err
		}
	default:
		ev.Kind = EventUnhandled
	}

	return ev, nil
}

func (g *StripeGateway) parseCheckoutCompleted(ctx context.Context, raw json.RawMessage, ev *Event) error {
	var session stripeCheckoutSessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}

	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return errors.Join(ErrMalformedPayload, fmt.Errorf("client_reference_id %q is not a user ID: %w", session.ClientReferenceID, err))
	}

	checkout := &CheckoutCompleted{
		UserID:         userID,
		CustomerID:     string(session.Customer),
		SubscriptionID: string(session.Subscription),
	}

	// The session payload carries no trial or period data. Fetch the
	// subscription to learn whether checkout started a trial. Failure
	// here must surface as retryable: the ends-up state depends on it.
	if checkout.SubscriptionID != "" {
		sub, err := g.api.Subscriptions.Get(checkout.SubscriptionID, &stripe.SubscriptionParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return errors.Join(ErrGatewayUnavailable, fmt.Errorf("fetch subscription %s: %w", checkout.SubscriptionID, err))
		}

		checkout.Trialing = sub.Status == stripe.SubscriptionStatusTrialing
		if sub.TrialEnd > 0 {
			checkout.TrialEnd = unixTime(sub.TrialEnd)
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 {
			item := sub.Items.Data[0]
			checkout.PeriodStart = unixTime(item.CurrentPeriodStart)
			checkout.PeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}

	ev.Checkout = checkout
	return nil
}

func parseSubscriptionChange(raw json.RawMessage, ev *Event) error {
	var sub stripeSubscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}

	change := &SubscriptionChange{
		CustomerID:     string(sub.Customer),
		SubscriptionID: sub.ID,
		GatewayStatus:  sub.Status,
	}
	if sub.TrialEnd > 0 {
		change.TrialEnd = unixTime(sub.TrialEnd)
	}
	if len(sub.Items.Data) > 0 {
		change.PeriodStart = unixTime(sub.Items.Data[0].CurrentPeriodStart)
		change.PeriodEnd = unixTime(sub.Items.Data[0].CurrentPeriodEnd)
	}

	ev.Subscription = change
	return nil
}

func parseInvoiceChange(raw json.RawMessage, ev *Event) error {
	var inv stripeInvoicePayload
	if err := json.Unmarshal(raw, &inv); err != nil {
		return errors.Join(ErrMalformedPayload, err)
	}

	ev.Invoice = &InvoiceChange{
		CustomerID:     string(inv.Customer),
		SubscriptionID: inv.subscriptionID(),
	}
	return nil
}

// classifyWebhookError splits verification failures into the two callers
// care about: a bad signature (reject with 401, never retried) versus a
// body Stripe's own library cannot read (reject with 400).
func classifyWebhookError(err error) error {
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrTooOld),
		errors.Is(err, webhook.ErrNoValidSignature):
		return errors.Join(ErrInvalidSignature, err)
	default:
		return errors.Join(ErrMalformedPayload, err)
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
