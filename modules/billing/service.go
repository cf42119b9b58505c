// Package billing exposes the subscription lifecycle over HTTP: hosted
// checkout, cancellation, subscription status and the payment gateway's
// webhook endpoint.
package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lingokit/backend/core"
	"github.com/lingokit/backend/pkg/identity"
	"github.com/lingokit/backend/pkg/logger"
	"github.com/lingokit/backend/pkg/subscription"
)

// maxWebhookBody caps webhook payload reads. Stripe events are a few KB;
// anything larger is not a legitimate delivery.
const maxWebhookBody = int64(65536)

// Service wires the subscription engine, checkout orchestrator and webhook
// reconciler into an HTTP module.
type Service struct {
	engine     *subscription.Engine
	checkout   *subscription.Checkout
	reconciler *subscription.Reconciler
	gateway    subscription.Gateway
	log        *slog.Logger

	checkoutLimiter func(http.Handler) http.Handler
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCheckoutRateLimit installs a middleware on the checkout route.
// Checkout creates objects at the payment gateway, so it is the one route
// worth throttling per user.
func WithCheckoutRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(s *Service) {
		if mw != nil {
			s.checkoutLimiter = mw
		}
	}
}

// NewService creates the billing module. Panics on nil dependencies to
// fail fast during initialization.
func NewService(
	engine *subscription.Engine,
	checkout *subscription.Checkout,
	reconciler *subscription.Reconciler,
	gateway subscription.Gateway,
	opts ...Option,
) *Service {
	if engine == nil {
		panic("billing: subscription engine is required")
	}
	if checkout == nil {
		panic("billing: checkout orchestrator is required")
	}
	if reconciler == nil {
		panic("billing: reconciler is required")
	}
	if gateway == nil {
		panic("billing: gateway is required")
	}

	s := &Service{
		engine:     engine,
		checkout:   checkout,
		reconciler: reconciler,
		gateway:    gateway,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the module's router. The webhook route authenticates by
// signature, not by principal, so it mounts outside the identity
// middleware.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware)
		if s.checkoutLimiter != nil {
			r.With(s.checkoutLimiter).Post("/checkout", s.handleCheckout)
		} else {
			r.Post("/checkout", s.handleCheckout)
		}
		r.Get("/subscription", s.handleSubscriptionStatus)
		r.Post("/cancel", s.handleCancel)
	})

	return r
}

// handleWebhook receives gateway deliveries. The reply code is the retry
// contract: 2xx acknowledges (including benign no-ops), 401/400 rejects
// permanently, 5xx asks the gateway to redeliver.
func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Unreadable webhook payload")
		return
	}

	ev, err := s.gateway.ParseWebhook(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrInvalidSignature):
			s.log.WarnContext(ctx, "webhook signature verification failed", logger.Error(err))
			_ = core.WriteErrorDetail(w, core.ErrUnauthorized, "Invalid webhook signature")
		case errors.Is(err, subscription.ErrMalformedPayload):
			s.log.WarnContext(ctx, "malformed webhook payload", logger.Error(err))
			_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Malformed webhook payload")
		default:
			// Gateway follow-up calls can fail transiently; ask for a retry.
			s.log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
			_ = core.WriteError(w, core.ErrServiceUnavailable)
		}
		return
	}

	if err := s.reconciler.Apply(ctx, ev); err != nil {
		if errors.Is(err, subscription.ErrMalformedPayload) {
			_ = core.WriteErrorDetail(w, core.ErrBadRequest, "Malformed webhook payload")
			return
		}
		s.log.ErrorContext(ctx, "webhook reconciliation failed",
			logger.EventType(ev.GatewayType), logger.Error(err))
		_ = core.WriteError(w, core.ErrServiceUnavailable)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := identity.FromContext(ctx)
	if !ok {
		_ = core.WriteError(w, core.ErrUnauthorized)
		return
	}

	session, err := s.checkout.CreateSession(ctx, principal.UserID, principal.Email)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrSubscriptionActive):
			_ = core.WriteErrorDetail(w, core.ErrConflict, "Subscription already active")
		case errors.Is(err, subscription.ErrGatewayUnavailable):
			s.log.ErrorContext(ctx, "checkout session creation failed",
				logger.UserID(principal.UserID), logger.Error(err))
			_ = core.WriteErrorDetail(w, core.ErrBadGateway, "Payment provider unavailable")
		default:
			s.log.ErrorContext(ctx, "checkout failed",
				logger.UserID(principal.UserID), logger.Error(err))
			_ = core.WriteError(w, err)
		}
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, session)
}

func (s *Service) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := identity.FromContext(ctx)
	if !ok {
		_ = core.WriteError(w, core.ErrUnauthorized)
		return
	}

	info, err := s.engine.Status(ctx, principal.UserID)
	if err != nil {
		s.log.ErrorContext(ctx, "subscription status lookup failed",
			logger.UserID(principal.UserID), logger.Error(err))
		_ = core.WriteError(w, err)
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, info)
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := identity.FromContext(ctx)
	if !ok {
		_ = core.WriteError(w, core.ErrUnauthorized)
		return
	}

	rec, err := s.checkout.Cancel(ctx, principal.UserID)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNoActiveSubscription):
			_ = core.WriteErrorDetail(w, core.ErrBadRequest, "No active subscription to cancel")
		default:
			s.log.ErrorContext(ctx, "cancellation failed",
				logger.UserID(principal.UserID), logger.Error(err))
			_ = core.WriteError(w, err)
		}
		return
	}

	_ = core.WriteJSON(w, http.StatusOK, s.engine.StatusFor(rec))
}
