// Package cmd implements the sitereport command line.
//
// Architecture overview:
//   - HTTP API: internal/api.Server receives signed order webhooks, manages checkout temp carts and answers
//     purchase status, download and claim requests. Handlers return before any fulfillment work starts.
//   - Orchestrator: internal/orchestrator records a Purchase once per order reference, resolves the target URL from
//     the order metadata or a temp cart, and launches the fulfillment pipeline on the dispatcher.
//   - Pipeline: each purchase is scraped (Firecrawl or the local colly backend), analyzed by a language model,
//     rendered to PDF reports per tier and uploaded to the artifact store (memory, local disk or GCS). Status moves
//     through the fulfillment state machine and a completion message is published to Pub/Sub when configured.
//   - Persistence: Postgres via pgx when a DSN is set, otherwise in-memory stores. The unique order reference
//     constraint makes webhook redelivery idempotent.
//   - Configuration & plumbing: Viper loads defaults, an optional YAML file, .env and SITEREPORT_* environment
//     variables; zap provides structured logging; Prometheus metrics are exported on /metrics.
//
// Operational notes:
//   - Pipelines are detached from the request context and bounded by pipeline.max_concurrent. On SIGTERM the
//     server stops accepting requests and waits up to pipeline.drain_timeout for running pipelines.
//   - Expired temp carts are swept every temp_cart.sweep_interval, or on demand with `sitereport sweep-carts`.
//   - Run `sitereport migrate` once against a new database before `sitereport serve`.
package cmd
