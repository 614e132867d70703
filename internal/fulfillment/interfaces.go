package fulfillment

import (
	"context"
	"time"

	"github.com/JakeFAU/sitereport/internal/analysis"
)

// Repository persists purchases and the records they own.
type Repository interface {
	CreatePurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, id string) (Purchase, error)
	GetPurchaseByOrderRef(ctx context.Context, orderRef string) (Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id string, status Status) error
	LinkUser(ctx context.Context, id, userID string) error

	CreateScrapedData(ctx context.Context, data ScrapedData) error
	CompleteScrapedData(ctx context.Context, purchaseID string, content ScrapedContent) error
	FailScrapedData(ctx context.Context, purchaseID string, errMsg string) error
	GetScrapedData(ctx context.Context, purchaseID string) (ScrapedData, error)

	CreateOutput(ctx context.Context, out Output) error
	ListOutputs(ctx context.Context, purchaseID string) ([]Output, error)
	SaveRawOutput(ctx context.Context, raw RawOutput) error
}

// TempCartStore holds short-lived checkout carts.
type TempCartStore interface {
	CreateTempCart(ctx context.Context, cart TempCart) error
	// GetTempCart returns ErrNotFound for missing or expired carts.
	GetTempCart(ctx context.Context, cartID string, now time.Time) (TempCart, error)
	DeleteTempCart(ctx context.Context, cartID string) error
	DeleteExpiredTempCarts(ctx context.Context, now time.Time) (int64, error)
}

// Scraper turns a URL into markdown content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (ScrapedContent, error)
}

// Analyzer produces a structured analysis of scraped content.
type Analyzer interface {
	Analyze(ctx context.Context, content string, kind analysis.Type) (analysis.Result, error)
}

// Renderer renders one report type to PDF bytes.
type Renderer interface {
	Render(reportType ReportType, data analysis.Result, purchaseID string) ([]byte, error)
}

// ArtifactStore persists generated documents and signs download links.
type ArtifactStore interface {
	Upload(ctx context.Context, data []byte, fileName, purchaseID string) (string, error)
	SignedURL(ctx context.Context, storagePath string) (SignedURL, error)
	List(ctx context.Context, purchaseID string) ([]string, error)
	Delete(ctx context.Context, storagePath string) error
}

// Notifier hands a completed purchase and its links to the email service.
type Notifier interface {
	NotifyCompleted(ctx context.Context, p Purchase, downloads []Download) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record ids.
type IDGenerator interface {
	NewID() (string, error)
}
