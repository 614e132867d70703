package scrape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
	"github.com/JakeFAU/sitereport/internal/retry"
)

var (
	// ErrEmptyMarkdown means the backend answered but produced no markdown.
	// It is the only failure that triggers the batch fallback.
	ErrEmptyMarkdown = errors.New("scrape returned no markdown")
	// ErrScrapeFailed wraps every terminal failure returned by Engine.Scrape.
	ErrScrapeFailed = errors.New("scrape failed")
	// ErrFallbackExhausted means the batch fallback produced no content.
	ErrFallbackExhausted = errors.New("sitemap batch produced no content")
)

// PageSeparator divides pages in concatenated batch output.
const PageSeparator = "\n\n---\n\n"

var (
	defaultExcludeTags = []string{"nav", "footer", "header", "script", "style"}
	defaultIncludeTags = []string{"main", "article"}
)

// Config tunes the Engine. Zero values take the defaults below.
type Config struct {
	Timeout          time.Duration
	WaitFor          time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MapLimit         int
	MaxPages         int
	PollAttempts     int
	PollInterval     time.Duration
	PollInitialDelay time.Duration
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		WaitFor:          2 * time.Second,
		MaxRetries:       2,
		RetryBaseDelay:   time.Second,
		MapLimit:         50,
		MaxPages:         5,
		PollAttempts:     6,
		PollInterval:     3 * time.Second,
		PollInitialDelay: 3 * time.Second,
	}
}

// Engine implements fulfillment.Scraper on top of a Client.
type Engine struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

var _ fulfillment.Scraper = (*Engine)(nil)

// NewEngine builds an Engine. Negative MaxRetries is treated as zero.
func NewEngine(client Client, cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.MapLimit <= 0 {
		cfg.MapLimit = def.MapLimit
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = def.MaxPages
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = def.PollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollInitialDelay < 0 {
		cfg.PollInitialDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, cfg: cfg, logger: logger}
}

// Scrape runs the direct strategy and, on empty markdown, the batch fallback.
func (e *Engine) Scrape(ctx context.Context, url string) (fulfillment.ScrapedContent, error) {
	logger := e.logger.With(zap.String("url", url))

	content, err := e.scrapeDirect(ctx, url)
	if err == nil {
		metrics.ObserveScrape(string(fulfillment.StrategyDirect), "success")
		return content, nil
	}
	if !errors.Is(err, ErrEmptyMarkdown) {
		metrics.ObserveScrape(string(fulfillment.StrategyDirect), "failure")
		logger.Error("direct scrape failed", zap.Error(err))
		return fulfillment.ScrapedContent{}, fmt.Errorf("%w: direct scrape: %w", ErrScrapeFailed, err)
	}
	metrics.ObserveScrape(string(fulfillment.StrategyDirect), "empty")
	logger.Warn("direct scrape returned no markdown, falling back to sitemap batch")

	content, err = e.scrapeBatch(ctx, url)
	if err != nil {
		metrics.ObserveScrape(string(fulfillment.StrategyBatch), "failure")
		logger.Error("sitemap batch scrape failed", zap.Error(err))
		return fulfillment.ScrapedContent{}, fmt.Errorf("%w: direct scrape returned no markdown and sitemap batch failed: %w", ErrScrapeFailed, err)
	}
	metrics.ObserveScrape(string(fulfillment.StrategyBatch), "success")
	return content, nil
}

func (e *Engine) scrapeDirect(ctx context.Context, url string) (fulfillment.ScrapedContent, error) {
	opts := Options{
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		Timeout:         e.cfg.Timeout,
		WaitFor:         e.cfg.WaitFor,
	}
	policy := retry.NewExponential(e.cfg.MaxRetries, e.cfg.RetryBaseDelay)

	var page Page
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			e.logger.Debug("retrying direct scrape",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", policy.Backoff(attempt-1)),
			)
		}
		p, err := e.client.Scrape(ctx, url, opts)
		if err != nil {
			return err
		}
		if !p.Success {
			msg := p.Error
			if msg == "" {
				msg = "unknown error"
			}
			return fmt.Errorf("scrape service reported failure: %s", msg)
		}
		if strings.TrimSpace(p.Markdown) == "" {
			return ErrEmptyMarkdown
		}
		page = p
		return nil
	})
	if err != nil {
		return fulfillment.ScrapedContent{}, err
	}
	return fulfillment.ScrapedContent{
		Markdown: page.Markdown,
		Metadata: fulfillment.ScrapeMetadata{
			Strategy:  fulfillment.StrategyDirect,
			SourceURL: url,
			Title:     page.Metadata.Title,
			Pages:     []string{url},
		},
	}, nil
}

func (e *Engine) scrapeBatch(ctx context.Context, url string) (fulfillment.ScrapedContent, error) {
	links, err := e.client.Map(ctx, url, e.cfg.MapLimit)
	if err != nil {
		if ctx.Err() != nil {
			return fulfillment.ScrapedContent{}, fmt.Errorf("map site: %w", err)
		}
		e.logger.Warn("site map failed, batch will cover the root page only",
			zap.String("url", url), zap.Error(err))
		links = nil
	}
	if len(links) > e.cfg.MapLimit {
		links = links[:e.cfg.MapLimit]
	}
	pages := SelectImportantPages(url, links, e.cfg.MaxPages)
	e.logger.Info("starting sitemap batch",
		zap.String("url", url),
		zap.Int("links", len(links)),
		zap.Strings("pages", pages),
	)

	jobID, err := e.client.StartBatch(ctx, pages, Options{
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		ExcludeTags:     defaultExcludeTags,
		IncludeTags:     defaultIncludeTags,
		Timeout:         e.cfg.Timeout,
		WaitFor:         e.cfg.WaitFor,
	})
	if err != nil {
		return fulfillment.ScrapedContent{}, fmt.Errorf("start batch: %w", err)
	}

	var result Batch
	poll := retry.Poll{
		InitialDelay: e.cfg.PollInitialDelay,
		Interval:     e.cfg.PollInterval,
		MaxAttempts:  e.cfg.PollAttempts,
	}
	err = poll.Until(ctx, func(ctx context.Context, attempt int) (bool, error) {
		batch, err := e.client.BatchStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return false, fmt.Errorf("batch status: %w", err)
			}
			e.logger.Warn("batch status check failed",
				zap.String("job_id", jobID), zap.Int("attempt", attempt+1), zap.Error(err))
			return false, nil
		}
		switch batch.Status {
		case BatchCompleted:
			result = batch
			return true, nil
		case BatchFailed:
			return false, fmt.Errorf("batch job %s failed", jobID)
		default:
			e.logger.Debug("batch still running",
				zap.String("job_id", jobID),
				zap.Int("completed", batch.Completed),
				zap.Int("total", batch.Total),
			)
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrPollExhausted) {
			return fulfillment.ScrapedContent{}, fmt.Errorf("%w: %w", ErrFallbackExhausted, err)
		}
		return fulfillment.ScrapedContent{}, err
	}

	markdown := joinInDiscoveryOrder(pages, result.Data)
	if markdown == "" {
		return fulfillment.ScrapedContent{}, ErrFallbackExhausted
	}
	return fulfillment.ScrapedContent{
		Markdown: markdown,
		Metadata: fulfillment.ScrapeMetadata{
			Strategy:  fulfillment.StrategyBatch,
			SourceURL: url,
			Title:     firstTitle(result.Data),
			Pages:     pages,
		},
	}, nil
}

// joinInDiscoveryOrder orders fragments by their position in pages; results
// the backend cannot attribute keep their relative order at the end.
func joinInDiscoveryOrder(pages []string, data []Page) string {
	rank := make(map[string]int, len(pages))
	for i, p := range pages {
		rank[normalizeLink(p)] = i
	}
	ordered := make([]Page, len(data))
	copy(ordered, data)
	position := func(p Page) int {
		if i, ok := rank[normalizeLink(p.Metadata.SourceURL)]; ok && p.Metadata.SourceURL != "" {
			return i
		}
		return len(pages)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return position(ordered[i]) < position(ordered[j])
	})

	fragments := make([]string, 0, len(ordered))
	for _, p := range ordered {
		if md := strings.TrimSpace(p.Markdown); md != "" {
			fragments = append(fragments, md)
		}
	}
	return strings.Join(fragments, PageSeparator)
}

func firstTitle(data []Page) string {
	for _, p := range data {
		if p.Metadata.Title != "" {
			return p.Metadata.Title
		}
	}
	return ""
}
