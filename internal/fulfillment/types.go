package fulfillment

import (
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors returned by repositories and the state machine.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateOrder    = errors.New("order reference already recorded")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyClaimed    = errors.New("purchase claimed by another account")
)

// Purchase is created once per completed order and never deleted.
type Purchase struct {
	ID          string    `json:"id"`
	OrderRef    string    `json:"order_ref"`
	Email       string    `json:"email"`
	UserID      *string   `json:"user_id,omitempty"`
	Tier        Tier      `json:"tier"`
	URL         *string   `json:"url,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TargetURL returns the purchase URL or "" for upsells without one.
func (p Purchase) TargetURL() string {
	if p.URL == nil {
		return ""
	}
	return *p.URL
}

// ScrapeStatus tracks the single ScrapedData row of a purchase.
type ScrapeStatus string

// ScrapedData status values.
const (
	ScrapePending   ScrapeStatus = "pending"
	ScrapeCompleted ScrapeStatus = "completed"
	ScrapeFailed    ScrapeStatus = "failed"
)

// ContentTypeMarkdown is the only content type the scrape engine produces.
const ContentTypeMarkdown = "markdown"

// ScrapeStrategy names which scrape path produced the content.
type ScrapeStrategy string

// Scrape strategies.
const (
	StrategyDirect ScrapeStrategy = "direct"
	StrategyBatch  ScrapeStrategy = "sitemap_batch"
)

// ScrapeMetadata describes where scraped content came from.
type ScrapeMetadata struct {
	Strategy  ScrapeStrategy `json:"strategy"`
	SourceURL string         `json:"source_url"`
	Title     string         `json:"title,omitempty"`
	Pages     []string       `json:"pages,omitempty"`
}

// ScrapedContent is the structured payload stored on ScrapedData.
type ScrapedContent struct {
	Markdown string         `json:"markdown"`
	Metadata ScrapeMetadata `json:"metadata"`
}

// ScrapedData is the scrape record for a purchase.
type ScrapedData struct {
	PurchaseID   string          `json:"purchase_id"`
	URL          string          `json:"url"`
	Content      *ScrapedContent `json:"content,omitempty"`
	ContentType  string          `json:"content_type"`
	Status       ScrapeStatus    `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Output records one stored report. Only the storage path is persisted; download
// links are signed on demand.
type Output struct {
	ID          string     `json:"id"`
	PurchaseID  string     `json:"purchase_id"`
	ReportType  ReportType `json:"report_type"`
	StoragePath string     `json:"storage_path"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RawOutput keeps the model's raw response for audit.
type RawOutput struct {
	ID           string    `json:"id"`
	PurchaseID   string    `json:"purchase_id"`
	AnalysisType string    `json:"analysis_type"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

// TempCart carries checkout data that does not fit in provider metadata.
type TempCart struct {
	CartID    string          `json:"cart_id"`
	URL       string          `json:"url"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired reports whether the cart is past its expiry at now.
func (c TempCart) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// OrderEvent is the normalized "order succeeded" trigger.
type OrderEvent struct {
	OrderID     string         `json:"order_id"`
	Email       string         `json:"customer_email"`
	AmountCents int64          `json:"total_amount"`
	Currency    string         `json:"currency"`
	Metadata    map[string]any `json:"metadata"`
}

// Download is a freshly signed link handed to clients and the notifier.
type Download struct {
	ReportType ReportType `json:"type"`
	URL        string     `json:"download_url"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// SignedURL is a time-limited link to a stored artifact.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}
