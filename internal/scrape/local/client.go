// Package local is a scrape.Client built on colly and goquery that fetches
// pages directly. It needs no API key and does not execute JavaScript.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/scrape"
)

// ErrUnknownBatch is returned by BatchStatus for ids it never issued.
var ErrUnknownBatch = errors.New("unknown batch id")

// Limiter throttles outbound requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// IDGenerator produces batch ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls the Client. RequestTimeout applies to every fetch; the
// per-call scrape.Options timeout is not honored.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Client scrapes pages directly over HTTP. Batches run synchronously inside
// StartBatch and are kept in memory until read.
type Client struct {
	base    *colly.Collector
	limiter Limiter
	ids     IDGenerator
	logger  *zap.Logger

	mu      sync.Mutex
	batches map[string]scrape.Batch
}

var _ scrape.Client = (*Client)(nil)

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Limiter, ids IDGenerator, logger *zap.Logger) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sitereport/1.0"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)
	return &Client{
		base:    base,
		limiter: limiter,
		ids:     ids,
		logger:  logger,
		batches: make(map[string]scrape.Batch),
	}
}

// Scrape fetches one page and converts its main content to markdown.
func (c *Client) Scrape(ctx context.Context, rawURL string, opts scrape.Options) (scrape.Page, error) {
	body, status, err := c.fetch(ctx, rawURL)
	if err != nil {
		if status >= 400 {
			return scrape.Page{
				Success:  false,
				Error:    fmt.Sprintf("status %d: %v", status, err),
				Metadata: scrape.PageMetadata{SourceURL: rawURL, StatusCode: status},
			}, nil
		}
		return scrape.Page{}, err
	}
	title, markdown, err := ToMarkdown(body, opts)
	if err != nil {
		return scrape.Page{Success: false, Error: err.Error()}, nil
	}
	return scrape.Page{
		Success:  true,
		Markdown: markdown,
		Metadata: scrape.PageMetadata{Title: title, SourceURL: rawURL, StatusCode: status},
	}, nil
}

// Map collects same-host links from the page at rawURL and from its
// sitemap.xml, capped at limit.
func (c *Client) Map(ctx context.Context, rawURL string, limit int) ([]string, error) {
	root, err := url.Parse(rawURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("parse map url %q: %w", rawURL, err)
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		mu    sync.Mutex
		links []string
		seen  = map[string]bool{}
	)
	add := func(link string) {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || !strings.EqualFold(u.Hostname(), root.Hostname()) {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		normalized := u.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[normalized] || len(links) >= limit {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	}

	if err := c.wait(ctx, rawURL); err != nil {
		return nil, err
	}
	collector := c.base.Clone()
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		add(e.Request.AbsoluteURL(e.Attr("href")))
	})
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		add(e.Text)
	})

	pageErr := collector.Visit(rawURL)
	sitemap := root.ResolveReference(&url.URL{Path: "/sitemap.xml"})
	if err := collector.Visit(sitemap.String()); err != nil {
		c.logger.Debug("sitemap visit skipped", zap.String("url", sitemap.String()), zap.Error(err))
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageErr != nil && len(links) == 0 {
		return nil, fmt.Errorf("map %s: %w", rawURL, pageErr)
	}
	return links, nil
}

// StartBatch scrapes every url before returning the id of the finished job.
func (c *Client) StartBatch(ctx context.Context, urls []string, opts scrape.Options) (string, error) {
	id, err := c.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate batch id: %w", err)
	}
	batch := scrape.Batch{Status: scrape.BatchCompleted, Total: len(urls)}
	for _, u := range urls {
		page, err := c.Scrape(ctx, u, opts)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			c.logger.Warn("batch page failed", zap.String("url", u), zap.Error(err))
			page = scrape.Page{Error: err.Error(), Metadata: scrape.PageMetadata{SourceURL: u}}
		}
		batch.Completed++
		batch.Data = append(batch.Data, page)
	}
	c.mu.Lock()
	c.batches[id] = batch
	c.mu.Unlock()
	return id, nil
}

// BatchStatus returns a finished batch. A completed batch is handed out once
// and then forgotten.
func (c *Client) BatchStatus(_ context.Context, id string) (scrape.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch, ok := c.batches[id]
	if !ok {
		return scrape.Batch{}, fmt.Errorf("%w: %s", ErrUnknownBatch, id)
	}
	if batch.Status == scrape.BatchCompleted {
		delete(c.batches, id)
	}
	return batch, nil
}

func (c *Client) wait(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, rawURL)
}

// fetch returns the body and status of rawURL. A non-2xx response is an error
// with its status code set.
func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, int, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return nil, 0, err
	}
	collector := c.base.Clone()

	var (
		body   []byte
		status int
		resErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = bytes.Clone(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		resErr = err
	})

	if err := collector.Visit(rawURL); err != nil && resErr == nil {
		return nil, 0, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if resErr != nil {
		return nil, status, fmt.Errorf("fetch %s: %w", rawURL, resErr)
	}
	return body, status, nil
}
