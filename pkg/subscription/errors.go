package subscription

import "errors"

var (
	// Webhook boundary failures. Both are permanent: the gateway must not
	// redeliver a request that can never verify or parse.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrSubscriptionActive rejects checkout while a subscription is live.
	ErrSubscriptionActive = errors.New("subscription already active")
	// ErrNoActiveSubscription rejects cancellation of a free record.
	ErrNoActiveSubscription = errors.New("no active subscription to cancel")

	ErrRecordNotFound   = errors.New("subscription record not found")
	ErrMaterialNotFound = errors.New("material not found")

	// ErrGatewayUnavailable wraps failed calls to the payment gateway.
	ErrGatewayUnavailable = errors.New("payment gateway request failed")

	ErrInvalidEvent = errors.New("invalid gateway event")

	ErrFailedToLoadLimits = errors.New("failed to load plan limits")
)
