// Package api hosts the HTTP server, middleware, and REST handlers of the
// storefront backend. Notable routes:
//   - POST /webhooks/orders receives signed payment-provider order events.
//   - POST /v1/temp-carts and GET /v1/temp-carts/{cart_id} carry checkout data
//     that does not fit in provider metadata.
//   - GET /v1/purchases/{id}/status, /downloads and POST /claim for customers.
//   - GET /files/... serves locally stored reports behind signed links.
//   - GET /healthz / readyz for Kubernetes probes and /metrics for Prometheus.
package api
