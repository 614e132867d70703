// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/analysis/openai"
	"github.com/JakeFAU/sitereport/internal/api"
	"github.com/JakeFAU/sitereport/internal/clock/system"
	"github.com/JakeFAU/sitereport/internal/config"
	"github.com/JakeFAU/sitereport/internal/dispatcher"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/id/uuid"
	"github.com/JakeFAU/sitereport/internal/logging"
	"github.com/JakeFAU/sitereport/internal/notify/memory"
	pubsubnotify "github.com/JakeFAU/sitereport/internal/notify/pubsub"
	"github.com/JakeFAU/sitereport/internal/orchestrator"
	"github.com/JakeFAU/sitereport/internal/policy/ratelimit"
	"github.com/JakeFAU/sitereport/internal/policy/simple"
	"github.com/JakeFAU/sitereport/internal/report"
	"github.com/JakeFAU/sitereport/internal/scrape"
	"github.com/JakeFAU/sitereport/internal/scrape/firecrawl"
	localscrape "github.com/JakeFAU/sitereport/internal/scrape/local"
	gcsstorage "github.com/JakeFAU/sitereport/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitereport/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitereport/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitereport/internal/storage/postgres"
	"go.uber.org/zap"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	apiServer    *api.Server
	orch         *orchestrator.Orchestrator
	dispatch     *dispatcher.Dispatcher
	db           *pgstore.Store
	pubsubClient *pubsub.Client
	topic        *pubsub.Topic
	storage      *storage.Client
}

// stores groups the persistence collaborators chosen by configuration.
type stores struct {
	repo      fulfillment.Repository
	carts     fulfillment.TempCartStore
	artifacts fulfillment.ArtifactStore
	files     api.FileVerifier
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger, clock: system.New()}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("scrape_backend", cfg.Scrape.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	app.warnUnsignedWebhooks()

	st, err := app.setupStorage(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	scraper, err := app.setupScraper()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	analyzer, err := app.setupAnalyzer()
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	notifier, err := app.setupNotifier(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	targets := &simple.Policy{
		BlockPrivate: !cfg.Scrape.AllowPrivateTargets,
		DenyHosts:    cfg.Scrape.DenyHosts,
	}
	app.dispatch = dispatcher.New(cfg.Pipeline.MaxConcurrent, logger.Named("dispatcher"))
	app.orch = orchestrator.New(orchestrator.Deps{
		Repository: st.repo,
		Carts:      st.carts,
		Scraper:    scraper,
		Analyzer:   analyzer,
		Renderer:   report.NewBuilder(cfg.Report.Author, app.clock),
		Artifacts:  st.artifacts,
		Notifier:   notifier,
		Launcher:   app.dispatch,
		Targets:    targets,
		IDs:        uuid.New(),
		Clock:      app.clock,
	}, orchestrator.Config{TempCartTTL: cfg.TempCart.TTL}, logger.Named("orchestrator"))

	ready := map[string]api.ReadinessCheck{}
	if app.db != nil {
		ready["database"] = app.db.Ping
	}
	app.apiServer = api.NewServer(app.orch, api.Options{
		WebhookSecret:  cfg.Webhook.Secret,
		RequestTimeout: cfg.Server.RequestTimeout,
		Files:          st.files,
		Ready:          ready,
	}, logger.Named("api"))

	return app, nil
}

// ErrNoDatabase is returned by Migrate when no DSN is configured.
var ErrNoDatabase = errors.New("no database configured")

// Migrate applies the Postgres schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.db == nil {
		return ErrNoDatabase
	}
	if err := a.db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema migrated")
	return nil
}

// SweepTempCarts removes expired checkout carts once.
func (a *App) SweepTempCarts(ctx context.Context) (int64, error) {
	return a.orch.SweepTempCarts(ctx)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.sweepCarts(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.dispatch.Drain(a.cfg.Pipeline.DrainTimeout); err != nil {
		a.logger.Warn("pipelines still running at shutdown", zap.Error(err))
	}

	a.Close()
	return nil
}

// Close releases infrastructure clients and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// Syncing stderr fails with EINVAL on some platforms.
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.topic != nil {
		a.topic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) sweepCarts(ctx context.Context) {
	interval := a.cfg.TempCart.SweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.orch.SweepTempCarts(ctx); err != nil {
				a.logger.Warn("temp cart sweep failed", zap.Error(err))
			}
		}
	}
}

func (a *App) setupStorage(ctx context.Context) (stores, error) {
	var st stores
	if err := a.setupDatabase(ctx, &st); err != nil {
		return st, err
	}

	switch a.cfg.Storage.Backend {
	case config.StorageBackendGCS:
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Storage.Bucket))
		var key []byte
		if a.cfg.Storage.PrivateKeyPath != "" {
			var err error
			key, err = os.ReadFile(a.cfg.Storage.PrivateKeyPath)
			if err != nil {
				return st, fmt.Errorf("read signing key: %w", err)
			}
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return st, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		st.artifacts, err = gcsstorage.New(client, gcsstorage.Config{
			Bucket:         a.cfg.Storage.Bucket,
			TTL:            a.cfg.Storage.SignedURLTTL,
			GoogleAccessID: a.cfg.Storage.GoogleAccessID,
			PrivateKey:     key,
		}, a.clock)
		if err != nil {
			return st, fmt.Errorf("gcs artifact store init failed: %w", err)
		}
	case config.StorageBackendLocal:
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Storage.LocalDir))
		local, err := localstorage.New(localstorage.Config{
			BaseDir:       a.cfg.Storage.LocalDir,
			PublicBaseURL: a.cfg.Server.PublicBaseURL,
			SigningKey:    a.cfg.Storage.SigningKey,
			TTL:           a.cfg.Storage.SignedURLTTL,
		}, a.clock)
		if err != nil {
			return st, fmt.Errorf("local artifact store init failed: %w", err)
		}
		st.artifacts = local
		if a.cfg.Server.PublicBaseURL != "" {
			st.files = local
		}
	default:
		a.logger.Info("using in-memory artifact store")
		st.artifacts = memorystorage.NewArtifactStore(a.cfg.Storage.SignedURLTTL, a.clock)
	}
	return st, nil
}

// warnUnsignedWebhooks flags a deployment that accepts order events without
// checking their signature.
func (a *App) warnUnsignedWebhooks() {
	if a.cfg.Webhook.Secret == "" {
		a.logger.Warn("webhook secret is empty, order events are accepted unverified")
	}
}

func (a *App) setupDatabase(ctx context.Context, st *stores) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN configured, purchases are kept in memory")
		st.repo = memorystorage.NewRepository(a.clock)
		st.carts = memorystorage.NewTempCartStore()
		return nil
	}
	db, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	}, a.clock)
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.db = db
	st.repo = db
	st.carts = db
	a.logger.Info("postgres store initialized")
	return nil
}

func (a *App) setupScraper() (*scrape.Engine, error) {
	sc := a.cfg.Scrape
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   sc.RateLimitRPS,
		DefaultBurst: sc.RateLimitBurst,
	})

	var client scrape.Client
	switch sc.Backend {
	case config.ScrapeBackendLocal:
		a.logger.Info("using local scrape backend", zap.String("user_agent", sc.UserAgent))
		client = localscrape.New(localscrape.Config{
			UserAgent:      sc.UserAgent,
			RequestTimeout: sc.RequestTimeout,
		}, limiter, uuid.New(), a.logger.Named("scrape_local"))
	default:
		a.logger.Info("using firecrawl scrape backend")
		fc, err := firecrawl.New(firecrawl.Config{
			APIKey:      sc.APIKey,
			BaseURL:     sc.BaseURL,
			HTTPTimeout: sc.RequestTimeout + 30*time.Second,
		}, limiter, a.logger.Named("firecrawl"))
		if err != nil {
			return nil, fmt.Errorf("firecrawl client init failed: %w", err)
		}
		client = fc
	}

	return scrape.NewEngine(client, scrape.Config{
		Timeout:          sc.RequestTimeout,
		WaitFor:          sc.WaitFor,
		MaxRetries:       sc.MaxRetries,
		RetryBaseDelay:   sc.RetryBaseDelay,
		MapLimit:         sc.MapLimit,
		MaxPages:         sc.MaxPages,
		PollAttempts:     sc.PollAttempts,
		PollInterval:     sc.PollInterval,
		PollInitialDelay: sc.PollInitialDelay,
	}, a.logger.Named("scrape")), nil
}

func (a *App) setupAnalyzer() (*analysis.Analyzer, error) {
	ac := a.cfg.Analysis
	var limiter openai.Limiter
	if ac.RateLimitRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{DefaultRPS: ac.RateLimitRPS, DefaultBurst: 1})
	}
	completer, err := openai.New(openai.Config{
		APIKey:         ac.APIKey,
		BaseURL:        ac.BaseURL,
		Model:          ac.Model,
		Temperature:    ac.Temperature,
		RequestTimeout: ac.RequestTimeout,
		MaxRetries:     ac.MaxRetries,
		RetryBaseDelay: ac.RetryBaseDelay,
	}, limiter, a.logger.Named("openai"))
	if err != nil {
		return nil, fmt.Errorf("analysis client init failed: %w", err)
	}
	return analysis.New(completer, analysis.Config{MaxContentChars: ac.MaxContentChars}, a.logger.Named("analysis")), nil
}

func (a *App) setupNotifier(ctx context.Context) (fulfillment.Notifier, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory notifier")
		return memory.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.topic = client.Topic(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub notifier initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pubsubnotify.New(a.topic, a.clock, a.logger.Named("notify")), nil
}
