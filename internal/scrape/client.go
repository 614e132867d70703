package scrape

import (
	"context"
	"time"
)

// Options are passed through to the scraping backend.
type Options struct {
	Formats         []string
	OnlyMainContent bool
	IncludeTags     []string
	ExcludeTags     []string
	Timeout         time.Duration
	WaitFor         time.Duration
}

// PageMetadata is what the backend reports about a scraped page.
type PageMetadata struct {
	Title      string `json:"title,omitempty"`
	SourceURL  string `json:"sourceURL,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Page is the result of scraping one URL.
type Page struct {
	Success  bool
	Markdown string
	Metadata PageMetadata
	Error    string
}

// BatchState is the lifecycle state of a batch job.
type BatchState string

// Batch job states.
const (
	BatchScraping  BatchState = "scraping"
	BatchCompleted BatchState = "completed"
	BatchFailed    BatchState = "failed"
)

// Batch is a snapshot of a batch scrape job.
type Batch struct {
	Status    BatchState
	Total     int
	Completed int
	Data      []Page
}

// Client is a scraping backend.
type Client interface {
	// Scrape fetches a single page. A transport-level failure is returned as
	// an error; a service-level failure as Page.Success=false.
	Scrape(ctx context.Context, url string, opts Options) (Page, error)
	// Map discovers up to limit links on the site of url.
	Map(ctx context.Context, url string, limit int) ([]string, error)
	// StartBatch submits urls as one job and returns its id.
	StartBatch(ctx context.Context, urls []string, opts Options) (string, error)
	// BatchStatus reports the progress and results of a job.
	BatchStatus(ctx context.Context, id string) (Batch, error)
}
