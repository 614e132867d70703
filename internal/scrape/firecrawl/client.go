// Package firecrawl is a scrape.Client for the Firecrawl v1 HTTP API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/scrape"
)

const defaultBaseURL = "https://api.firecrawl.dev"

// Limiter throttles outbound requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls the Client.
type Config struct {
	APIKey  string
	BaseURL string
	// HTTPTimeout bounds a single HTTP exchange; it should exceed the
	// per-scrape timeout passed in scrape.Options.
	HTTPTimeout time.Duration
}

// Client talks to the Firecrawl API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter Limiter
	logger  *zap.Logger
}

var _ scrape.Client = (*Client)(nil)

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("firecrawl api key is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse firecrawl base url: %w", err)
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type pageOptions struct {
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	IncludeTags     []string `json:"includeTags,omitempty"`
	ExcludeTags     []string `json:"excludeTags,omitempty"`
	Timeout         int64    `json:"timeout,omitempty"`
	WaitFor         int64    `json:"waitFor,omitempty"`
}

func toPageOptions(opts scrape.Options) pageOptions {
	return pageOptions{
		Formats:         opts.Formats,
		OnlyMainContent: opts.OnlyMainContent,
		IncludeTags:     opts.IncludeTags,
		ExcludeTags:     opts.ExcludeTags,
		Timeout:         opts.Timeout.Milliseconds(),
		WaitFor:         opts.WaitFor.Milliseconds(),
	}
}

type scrapeRequest struct {
	URL string `json:"url"`
	pageOptions
}

type document struct {
	Markdown string              `json:"markdown"`
	Metadata scrape.PageMetadata `json:"metadata"`
}

type scrapeResponse struct {
	Success bool      `json:"success"`
	Data    *document `json:"data"`
	Error   string    `json:"error"`
}

// Scrape calls POST /v1/scrape.
func (c *Client) Scrape(ctx context.Context, target string, opts scrape.Options) (scrape.Page, error) {
	var resp scrapeResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/scrape", scrapeRequest{URL: target, pageOptions: toPageOptions(opts)}, &resp)
	if err != nil {
		return scrape.Page{}, err
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return scrape.Page{}, fmt.Errorf("firecrawl scrape returned %d: %s", status, resp.Error)
	}
	page := scrape.Page{Success: resp.Success && status < 300, Error: resp.Error}
	if page.Error == "" && !page.Success {
		page.Error = fmt.Sprintf("status %d", status)
	}
	if resp.Data != nil {
		page.Markdown = resp.Data.Markdown
		page.Metadata = resp.Data.Metadata
	}
	return page, nil
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
	Error   string   `json:"error"`
}

// Map calls POST /v1/map.
func (c *Client) Map(ctx context.Context, target string, limit int) ([]string, error) {
	var resp mapResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/map", mapRequest{URL: target, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 || !resp.Success {
		return nil, fmt.Errorf("firecrawl map returned %d: %s", status, resp.Error)
	}
	return resp.Links, nil
}

type batchRequest struct {
	URLs []string `json:"urls"`
	pageOptions
}

type batchStartResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// StartBatch calls POST /v1/batch/scrape.
func (c *Client) StartBatch(ctx context.Context, urls []string, opts scrape.Options) (string, error) {
	var resp batchStartResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/batch/scrape", batchRequest{URLs: urls, pageOptions: toPageOptions(opts)}, &resp)
	if err != nil {
		return "", err
	}
	if status >= 300 || !resp.Success || resp.ID == "" {
		return "", fmt.Errorf("firecrawl batch scrape returned %d: %s", status, resp.Error)
	}
	return resp.ID, nil
}

type batchStatusResponse struct {
	Status    string     `json:"status"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Data      []document `json:"data"`
	Error     string     `json:"error"`
}

// BatchStatus calls GET /v1/batch/scrape/{id}.
func (c *Client) BatchStatus(ctx context.Context, id string) (scrape.Batch, error) {
	var resp batchStatusResponse
	status, err := c.do(ctx, http.MethodGet, "/v1/batch/scrape/"+url.PathEscape(id), nil, &resp)
	if err != nil {
		return scrape.Batch{}, err
	}
	if status >= 300 {
		return scrape.Batch{}, fmt.Errorf("firecrawl batch status returned %d: %s", status, resp.Error)
	}
	batch := scrape.Batch{
		Status:    scrape.BatchState(resp.Status),
		Total:     resp.Total,
		Completed: resp.Completed,
		Data:      make([]scrape.Page, 0, len(resp.Data)),
	}
	for _, d := range resp.Data {
		batch.Data = append(batch.Data, scrape.Page{
			Success:  d.Markdown != "",
			Markdown: d.Markdown,
			Metadata: d.Metadata,
		})
	}
	return batch, nil
}

// do sends one JSON request and decodes the body into out regardless of
// status, returning the status code. Only transport and decode failures are
// errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	endpoint := c.baseURL + path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return 0, err
		}
	}
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal firecrawl request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("build firecrawl request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("firecrawl %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	c.logger.Debug("firecrawl request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read firecrawl response: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		if resp.StatusCode >= 300 {
			return resp.StatusCode, fmt.Errorf("firecrawl %s %s returned %d", method, path, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("decode firecrawl response: %w", err)
	}
	return resp.StatusCode, nil
}
