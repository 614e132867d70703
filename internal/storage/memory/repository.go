package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// Repository is an in-memory fulfillment.Repository. It enforces the same
// uniqueness and ownership rules as the Postgres schema.
type Repository struct {
	mu         sync.RWMutex
	purchases  map[string]fulfillment.Purchase
	byOrderRef map[string]string
	scraped    map[string]fulfillment.ScrapedData
	outputs    map[string][]fulfillment.Output
	raw        map[string][]fulfillment.RawOutput
	clock      fulfillment.Clock
}

var _ fulfillment.Repository = (*Repository)(nil)

// NewRepository constructs an empty Repository.
func NewRepository(clock fulfillment.Clock) *Repository {
	return &Repository{
		purchases:  make(map[string]fulfillment.Purchase),
		byOrderRef: make(map[string]string),
		scraped:    make(map[string]fulfillment.ScrapedData),
		outputs:    make(map[string][]fulfillment.Output),
		raw:        make(map[string][]fulfillment.RawOutput),
		clock:      clock,
	}
}

// CreatePurchase inserts p. A reused order reference yields ErrDuplicateOrder.
func (r *Repository) CreatePurchase(_ context.Context, p fulfillment.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOrderRef[p.OrderRef]; exists {
		return fmt.Errorf("order %s: %w", p.OrderRef, fulfillment.ErrDuplicateOrder)
	}
	if _, exists := r.purchases[p.ID]; exists {
		return errors.New("purchase already exists")
	}
	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	r.purchases[p.ID] = clonePurchase(p)
	r.byOrderRef[p.OrderRef] = p.ID
	return nil
}

// GetPurchase fetches a purchase by id.
func (r *Repository) GetPurchase(_ context.Context, id string) (fulfillment.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.purchases[id]
	if !ok {
		return fulfillment.Purchase{}, fulfillment.ErrNotFound
	}
	return clonePurchase(p), nil
}

// GetPurchaseByOrderRef fetches a purchase by its external order reference.
func (r *Repository) GetPurchaseByOrderRef(_ context.Context, orderRef string) (fulfillment.Purchase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOrderRef[orderRef]
	if !ok {
		return fulfillment.Purchase{}, fulfillment.ErrNotFound
	}
	return clonePurchase(r.purchases[id]), nil
}

// UpdatePurchaseStatus overwrites the status of a purchase.
func (r *Repository) UpdatePurchaseStatus(_ context.Context, id string, status fulfillment.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return fulfillment.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = r.now()
	r.purchases[id] = p
	return nil
}

// LinkUser attributes a purchase to an account.
func (r *Repository) LinkUser(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return fulfillment.ErrNotFound
	}
	if p.UserID != nil && *p.UserID != userID {
		return fulfillment.ErrAlreadyClaimed
	}
	p.UserID = &userID
	p.UpdatedAt = r.now()
	r.purchases[id] = p
	return nil
}

// CreateScrapedData inserts the single scrape record of a purchase.
func (r *Repository) CreateScrapedData(_ context.Context, data fulfillment.ScrapedData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purchases[data.PurchaseID]; !ok {
		return fmt.Errorf("purchase %s: %w", data.PurchaseID, fulfillment.ErrNotFound)
	}
	if _, exists := r.scraped[data.PurchaseID]; exists {
		return errors.New("scraped data already exists")
	}
	now := r.now()
	data.CreatedAt, data.UpdatedAt = now, now
	r.scraped[data.PurchaseID] = data
	return nil
}

// CompleteScrapedData stores content on a pending record.
func (r *Repository) CompleteScrapedData(_ context.Context, purchaseID string, content fulfillment.ScrapedContent) error {
	return r.settleScrape(purchaseID, func(d *fulfillment.ScrapedData) {
		d.Status = fulfillment.ScrapeCompleted
		d.Content = &content
	})
}

// FailScrapedData records errMsg on a pending record.
func (r *Repository) FailScrapedData(_ context.Context, purchaseID string, errMsg string) error {
	return r.settleScrape(purchaseID, func(d *fulfillment.ScrapedData) {
		d.Status = fulfillment.ScrapeFailed
		d.ErrorMessage = &errMsg
	})
}

func (r *Repository) settleScrape(purchaseID string, apply func(*fulfillment.ScrapedData)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.scraped[purchaseID]
	if !ok {
		return fulfillment.ErrNotFound
	}
	if d.Status != fulfillment.ScrapePending {
		return fmt.Errorf("scraped data is %s: %w", d.Status, fulfillment.ErrInvalidTransition)
	}
	apply(&d)
	d.UpdatedAt = r.now()
	r.scraped[purchaseID] = d
	return nil
}

// GetScrapedData fetches the scrape record of a purchase.
func (r *Repository) GetScrapedData(_ context.Context, purchaseID string) (fulfillment.ScrapedData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.scraped[purchaseID]
	if !ok {
		return fulfillment.ScrapedData{}, fulfillment.ErrNotFound
	}
	return d, nil
}

// CreateOutput appends an output row.
func (r *Repository) CreateOutput(_ context.Context, out fulfillment.Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purchases[out.PurchaseID]; !ok {
		return fmt.Errorf("purchase %s: %w", out.PurchaseID, fulfillment.ErrNotFound)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.now()
	}
	r.outputs[out.PurchaseID] = append(r.outputs[out.PurchaseID], out)
	return nil
}

// ListOutputs returns a copy of the outputs of a purchase in insertion order.
func (r *Repository) ListOutputs(_ context.Context, purchaseID string) ([]fulfillment.Output, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	outs := r.outputs[purchaseID]
	cp := make([]fulfillment.Output, len(outs))
	copy(cp, outs)
	return cp, nil
}

// SaveRawOutput appends a raw model response.
func (r *Repository) SaveRawOutput(_ context.Context, raw fulfillment.RawOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purchases[raw.PurchaseID]; !ok {
		return fmt.Errorf("purchase %s: %w", raw.PurchaseID, fulfillment.ErrNotFound)
	}
	if raw.CreatedAt.IsZero() {
		raw.CreatedAt = r.now()
	}
	r.raw[raw.PurchaseID] = append(r.raw[raw.PurchaseID], raw)
	return nil
}

// RawOutputs returns a copy of the raw outputs of a purchase.
func (r *Repository) RawOutputs(purchaseID string) []fulfillment.RawOutput {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]fulfillment.RawOutput, len(r.raw[purchaseID]))
	copy(cp, r.raw[purchaseID])
	return cp
}

// CountPurchases returns the number of stored purchases.
func (r *Repository) CountPurchases() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.purchases)
}

func (r *Repository) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now()
}

func clonePurchase(p fulfillment.Purchase) fulfillment.Purchase {
	if p.UserID != nil {
		v := *p.UserID
		p.UserID = &v
	}
	if p.URL != nil {
		v := *p.URL
		p.URL = &v
	}
	return p
}
