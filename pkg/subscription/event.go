package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the normalized gateway event type. Gateway implementations
// map their own event vocabulary onto these kinds at the parse boundary so
// the reconciler never sees provider-specific payload shapes.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaid          EventKind = "invoice_payment_succeeded"
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"

	// EventUnhandled marks a recognized envelope with an event type the
	// reconciler does not act on. It is acknowledged as success.
	EventUnhandled EventKind = "unhandled"
)

// Event is a tagged union: Kind selects exactly one populated payload
// pointer. Gateways validate the shape before handing it over, so the
// reconciler can assume a well-formed value.
type Event struct {
	ID          string
	Kind        EventKind
	GatewayType string // the provider's original event name
	OccurredAt  time.Time

	Checkout     *CheckoutCompleted
	Subscription *SubscriptionChange
	Invoice      *InvoiceChange
}

// CheckoutCompleted carries the data of a finished checkout session,
// including the follow-up subscription details the gateway resolved.
type CheckoutCompleted struct {
	UserID         uuid.UUID
	CustomerID     string
	SubscriptionID string
	Trialing       bool // the gateway reports an active trial
	TrialEnd       *time.Time
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// SubscriptionChange carries subscription_updated and subscription_deleted
// payloads. GatewayStatus is the provider's raw status string; the
// reconciler owns the mapping to local Status.
type SubscriptionChange struct {
	CustomerID     string
	SubscriptionID string
	GatewayStatus  string
	TrialEnd       *time.Time
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// InvoiceChange carries invoice payment outcomes. SubscriptionID is empty
// for invoices unrelated to a subscription; those are ignored.
type InvoiceChange struct {
	CustomerID     string
	SubscriptionID string
}

// Validate checks that the union is consistent: the kind is known and the
// matching payload (and only that payload) is populated.
func (e *Event) Validate() error {
	if e == nil {
		return errors.Join(ErrInvalidEvent, errors.New("nil event"))
	}

	var want int
	switch e.Kind {
	case EventCheckoutCompleted:
		if e.Checkout == nil {
			return kindPayloadMismatch(e.Kind)
		}
		if e.Checkout.UserID == uuid.Nil {
			return errors.Join(ErrInvalidEvent, errors.New("checkout event without user ID"))
		}
		want = 1
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if e.Subscription == nil {
			return kindPayloadMismatch(e.Kind)
		}
		if e.Subscription.CustomerID == "" {
			return errors.Join(ErrInvalidEvent, errors.New("subscription event without customer ID"))
		}
		want = 1
	case EventInvoicePaid, EventInvoicePaymentFailed:
		if e.Invoice == nil {
			return kindPayloadMismatch(e.Kind)
		}
		if e.Invoice.CustomerID == "" {
			return errors.Join(ErrInvalidEvent, errors.New("invoice event without customer ID"))
		}
		want = 1
	case EventUnhandled:
		want = 0
	default:
		return errors.Join(ErrInvalidEvent, fmt.Errorf("unknown event kind %q", e.Kind))
	}

	var got int
	if e.Checkout != nil {
		got++
	}
	if e.Subscription != nil {
		got++
	}
	if e.Invoice != nil {
		got++
	}
	if got != want {
		return errors.Join(ErrInvalidEvent,
			fmt.Errorf("event kind %q carries %d payloads, want %d", e.Kind, got, want))
	}
	return nil
}

func kindPayloadMismatch(kind EventKind) error {
	return errors.Join(ErrInvalidEvent, fmt.Errorf("event kind %q missing its payload", kind))
}
