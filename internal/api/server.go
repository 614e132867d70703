package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
	"github.com/JakeFAU/sitereport/internal/orchestrator"
)

// Service is the fulfillment surface the handlers call.
type Service interface {
	HandleOrderSucceeded(ctx context.Context, ev fulfillment.OrderEvent) (orchestrator.Intake, error)
	PurchaseStatus(ctx context.Context, purchaseID string) (orchestrator.StatusView, error)
	Downloads(ctx context.Context, purchaseID string) ([]fulfillment.Download, error)
	Claim(ctx context.Context, purchaseID, userID string) error
	CreateTempCart(ctx context.Context, cartID, rawURL string, metadata json.RawMessage) (fulfillment.TempCart, error)
	TempCart(ctx context.Context, cartID string) (fulfillment.TempCart, error)
}

// FileVerifier resolves a signed local download link to a file on disk.
type FileVerifier interface {
	Verify(storagePath, expires, signature string) (string, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options configure a Server. Files is optional; without it /files is not routed.
type Options struct {
	WebhookSecret  string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Files          FileVerifier
	Ready          map[string]ReadinessCheck
}

// Server wires HTTP handlers to the fulfillment service.
type Server struct {
	router   chi.Router
	svc      Service
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Service, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		svc:      svc,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		r.Post("/webhooks/orders", s.orderWebhook)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/temp-carts", s.createTempCart)
			r.Get("/temp-carts/{cart_id}", s.getTempCart)
			r.Route("/purchases/{purchase_id}", func(r chi.Router) {
				r.Get("/status", s.purchaseStatus)
				r.Get("/downloads", s.purchaseDownloads)
				r.Post("/claim", s.claimPurchase)
			})
		})
	})
	if opts.Files != nil {
		r.Get("/files/{purchase_id}/{file_name}", s.serveFile)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failures := map[string]string{}
	for name, check := range s.opts.Ready {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
