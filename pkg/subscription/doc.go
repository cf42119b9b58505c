// Package subscription implements the billing core of the service: the
// per-user subscription lifecycle, usage-quota metering, checkout
// orchestration against the payment gateway, and reconciliation of the
// asynchronous webhook stream the gateway pushes back.
//
// The package is built around a single Record per user. Two independent
// paths mutate it: interactive API calls (entitlement checks, checkout,
// cancellation) and the gateway's webhook deliveries. Neither path takes
// in-process locks; the store's atomic single-row write is the only
// concurrency primitive, and every webhook transition is an absolute
// assignment so redelivery converges to the same state.
//
// # Components
//
//   - Engine: entitlement decisions (tier, upload/quiz quotas, chat
//     access) plus the lazy weekly usage reset.
//   - Reconciler: applies typed gateway events to Records via a fixed
//     transition table.
//   - Checkout: creates checkout sessions and handles cancellation.
//   - Gateway: the payment provider abstraction; StripeGateway is the
//     production implementation.
//   - RecordStore: persistence contract with Postgres and in-memory
//     implementations.
//
// # Usage
//
//	store := subscription.NewPostgresStore(pool)
//	gw, _ := subscription.NewStripeGateway(stripeCfg)
//	engine := subscription.NewEngine(store, materials, subscription.DefaultLimits())
//	checkout := subscription.NewCheckout(store, gw, checkoutCfg)
//	reconciler := subscription.NewReconciler(store)
//
// All blocking operations take a context.Context and are expected to be
// bounded by caller-side or config-driven timeouts.
package subscription
