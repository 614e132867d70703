// Package orchestrator drives a purchase from the order-succeeded event through
// scrape, analysis, rendering and storage to a terminal status.
//
// Intake runs on the caller's path and returns once the Purchase exists. The
// pipeline runs detached through a Launcher; every failure inside it becomes a
// status write and a log line, never an error returned to the caller.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// ErrInvalidEvent is returned for order events missing required fields.
var ErrInvalidEvent = errors.New("invalid order event")

// ErrNotCompleted is returned when downloads are requested before completion.
var ErrNotCompleted = errors.New("purchase is not completed")

// Launcher runs a task detached from the launching request.
type Launcher interface {
	Launch(ctx context.Context, name string, task func(ctx context.Context)) error
}

// IDGenerator produces record and cart ids.
type IDGenerator interface {
	NewID() (string, error)
	NewCartID() (string, error)
}

// TargetPolicy admits or refuses the site a cart points at.
type TargetPolicy interface {
	AllowTarget(rawURL string) error
}

// Deps are the collaborators of an Orchestrator. Notifier and Targets may be nil.
type Deps struct {
	Repository fulfillment.Repository
	Carts      fulfillment.TempCartStore
	Scraper    fulfillment.Scraper
	Analyzer   fulfillment.Analyzer
	Renderer   fulfillment.Renderer
	Artifacts  fulfillment.ArtifactStore
	Notifier   fulfillment.Notifier
	Launcher   Launcher
	Targets    TargetPolicy
	IDs        IDGenerator
	Clock      fulfillment.Clock
}

// Config tunes the orchestrator.
type Config struct {
	// TempCartTTL is the lifetime of carts created without an explicit expiry.
	TempCartTTL time.Duration
}

// Orchestrator owns purchase intake and the fulfillment pipeline.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TempCartTTL <= 0 {
		cfg.TempCartTTL = time.Hour
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock == nil {
		return time.Now().UTC()
	}
	return o.deps.Clock.Now()
}
