package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/sitereport/internal/analysis"
	"github.com/JakeFAU/sitereport/internal/fulfillment"
	notifymemory "github.com/JakeFAU/sitereport/internal/notify/memory"
	"github.com/JakeFAU/sitereport/internal/report"
	"github.com/JakeFAU/sitereport/internal/storage/memory"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

func (g *seqIDs) NewCartID() (string, error) {
	id, _ := g.NewID()
	return "tc_" + id, nil
}

// syncLauncher runs the task before Launch returns.
type syncLauncher struct {
	launched int
}

func (l *syncLauncher) Launch(ctx context.Context, _ string, task func(ctx context.Context)) error {
	l.launched++
	task(ctx)
	return nil
}

type fakeScraper struct {
	mu      sync.Mutex
	content fulfillment.ScrapedContent
	err     error
	panics  bool
	calls   []string
}

func (s *fakeScraper) Scrape(_ context.Context, url string) (fulfillment.ScrapedContent, error) {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	s.mu.Unlock()
	if s.panics {
		panic("scraper exploded")
	}
	if s.err != nil {
		return fulfillment.ScrapedContent{}, s.err
	}
	return s.content, nil
}

func (s *fakeScraper) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeAnalyzer struct {
	fail map[analysis.Type]bool
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ string, kind analysis.Type) (analysis.Result, error) {
	if a.fail[kind] {
		return analysis.Result{}, fmt.Errorf("%w: model returned prose", analysis.ErrAnalysisFailed)
	}
	res := analysis.Result{Type: kind, Raw: `{"title":"Shop"}`}
	if kind == analysis.TypeWebsite {
		res.Website = &analysis.WebsiteAnalysis{Title: "Shop", Summary: "Sells things."}
	} else {
		res.Report = &analysis.Report{Title: string(kind), Summary: "Do more."}
	}
	return res, nil
}

// flakyRenderer fails the listed report types and delegates the rest.
type flakyRenderer struct {
	next fulfillment.Renderer
	fail map[fulfillment.ReportType]bool
}

func (r flakyRenderer) Render(rt fulfillment.ReportType, data analysis.Result, purchaseID string) ([]byte, error) {
	if r.fail[rt] {
		return nil, errors.New("layout overflow")
	}
	return r.next.Render(rt, data, purchaseID)
}

// flakyArtifacts fails uploads for the listed file names.
type flakyArtifacts struct {
	fulfillment.ArtifactStore
	fail map[string]bool
}

func (a flakyArtifacts) Upload(ctx context.Context, data []byte, fileName, purchaseID string) (string, error) {
	if a.fail[fileName] {
		return "", errors.New("bucket unavailable")
	}
	return a.ArtifactStore.Upload(ctx, data, fileName, purchaseID)
}

// outputFailRepo rejects every Output row.
type outputFailRepo struct {
	fulfillment.Repository
}

func (outputFailRepo) CreateOutput(context.Context, fulfillment.Output) error {
	return errors.New("outputs table locked")
}

// statusFailRepo fails every status write after the first n.
type statusFailRepo struct {
	fulfillment.Repository
	mu      sync.Mutex
	allowed int
}

func (r *statusFailRepo) UpdatePurchaseStatus(ctx context.Context, id string, status fulfillment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allowed <= 0 {
		return errors.New("database unavailable")
	}
	r.allowed--
	return r.Repository.UpdatePurchaseStatus(ctx, id, status)
}

// blindRepo misses the first n lookups by order ref, simulating a concurrent
// insert that landed between lookup and create.
type blindRepo struct {
	fulfillment.Repository
	mu    sync.Mutex
	blind int
}

func (r *blindRepo) GetPurchaseByOrderRef(ctx context.Context, orderRef string) (fulfillment.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blind > 0 {
		r.blind--
		return fulfillment.Purchase{}, fulfillment.ErrNotFound
	}
	return r.Repository.GetPurchaseByOrderRef(ctx, orderRef)
}

type lookupErrRepo struct {
	fulfillment.Repository
}

func (lookupErrRepo) GetPurchaseByOrderRef(context.Context, string) (fulfillment.Purchase, error) {
	return fulfillment.Purchase{}, errors.New("connection refused")
}

type harness struct {
	orch      *Orchestrator
	repo      *memory.Repository
	carts     *memory.TempCartStore
	artifacts *memory.ArtifactStore
	scraper   *fakeScraper
	analyzer  *fakeAnalyzer
	notifier  *notifymemory.Notifier
	launcher  *syncLauncher
	deps      Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := fixedClock{t: testNow}
	h := &harness{
		repo:      memory.NewRepository(clock),
		carts:     memory.NewTempCartStore(),
		artifacts: memory.NewArtifactStore(time.Hour, clock),
		scraper: &fakeScraper{content: fulfillment.ScrapedContent{
			Markdown: "# Shop\n\nWe sell things.",
			Metadata: fulfillment.ScrapeMetadata{Strategy: fulfillment.StrategyDirect, SourceURL: "https://shop.example"},
		}},
		analyzer: &fakeAnalyzer{},
		notifier: notifymemory.New(),
		launcher: &syncLauncher{},
	}
	h.deps = Deps{
		Repository: h.repo,
		Carts:      h.carts,
		Scraper:    h.scraper,
		Analyzer:   h.analyzer,
		Renderer:   report.NewBuilder("SiteReport", clock),
		Artifacts:  h.artifacts,
		Notifier:   h.notifier,
		Launcher:   h.launcher,
		IDs:        &seqIDs{},
		Clock:      clock,
	}
	h.rebuild()
	return h
}

// rebuild applies changes made to h.deps.
func (h *harness) rebuild() {
	h.orch = New(h.deps, Config{}, nil)
}

func orderEvent(orderID string, metadata map[string]any) fulfillment.OrderEvent {
	return fulfillment.OrderEvent{
		OrderID:     orderID,
		Email:       "buyer@example.com",
		AmountCents: 4900,
		Currency:    "usd",
		Metadata:    metadata,
	}
}
