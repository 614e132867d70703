package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

const purchaseColumns = `id, order_ref, email, user_id, tier, url, amount_cents, currency, status, created_at, updated_at`

// CreatePurchase inserts p. The unique order_ref constraint is the atomic
// idempotency guard: a violation yields ErrDuplicateOrder.
func (s *Store) CreatePurchase(ctx context.Context, p fulfillment.Purchase) error {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO purchases (`+purchaseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID,
		p.OrderRef,
		p.Email,
		p.UserID,
		string(p.Tier),
		p.URL,
		p.AmountCents,
		p.Currency,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if code, constraint := pgCode(err); code == uniqueViolation && constraint != "purchases_pkey" {
			return fmt.Errorf("order %s: %w", p.OrderRef, fulfillment.ErrDuplicateOrder)
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetPurchase fetches a purchase by id.
func (s *Store) GetPurchase(ctx context.Context, id string) (fulfillment.Purchase, error) {
	row := s.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	p, err := scanPurchase(row)
	if err != nil {
		return fulfillment.Purchase{}, fmt.Errorf("get purchase: %w", notFound(err))
	}
	return p, nil
}

// GetPurchaseByOrderRef fetches a purchase by external order reference.
func (s *Store) GetPurchaseByOrderRef(ctx context.Context, orderRef string) (fulfillment.Purchase, error) {
	row := s.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE order_ref = $1`, orderRef)
	p, err := scanPurchase(row)
	if err != nil {
		return fulfillment.Purchase{}, fmt.Errorf("get purchase by order ref: %w", notFound(err))
	}
	return p, nil
}

func scanPurchase(row pgx.Row) (fulfillment.Purchase, error) {
	var (
		p      fulfillment.Purchase
		tier   string
		status string
	)
	if err := row.Scan(
		&p.ID,
		&p.OrderRef,
		&p.Email,
		&p.UserID,
		&tier,
		&p.URL,
		&p.AmountCents,
		&p.Currency,
		&status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return fulfillment.Purchase{}, err
	}
	p.Tier = fulfillment.Tier(tier)
	p.Status = fulfillment.Status(status)
	return p, nil
}

// UpdatePurchaseStatus overwrites the status of a purchase.
func (s *Store) UpdatePurchaseStatus(ctx context.Context, id string, status fulfillment.Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE purchases SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fulfillment.ErrNotFound
	}
	return nil
}

// LinkUser attributes an unclaimed purchase to an account. Relinking the
// same account is a no-op; any other account gets ErrAlreadyClaimed.
func (s *Store) LinkUser(ctx context.Context, id, userID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE purchases SET user_id = $1, updated_at = $2 WHERE id = $3 AND (user_id IS NULL OR user_id = $1)`,
		userID, s.now(), id)
	if err != nil {
		return fmt.Errorf("link purchase user: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchases WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check purchase: %w", err)
	}
	if !exists {
		return fulfillment.ErrNotFound
	}
	return fulfillment.ErrAlreadyClaimed
}

// CreateScrapedData inserts the single scrape record of a purchase.
func (s *Store) CreateScrapedData(ctx context.Context, data fulfillment.ScrapedData) error {
	var content []byte
	if data.Content != nil {
		var err error
		if content, err = json.Marshal(data.Content); err != nil {
			return fmt.Errorf("marshal scraped content: %w", err)
		}
	}
	now := s.now()
	_, err := s.db.Exec(ctx, `
INSERT INTO scraped_data (purchase_id, url, content, content_type, status, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		data.PurchaseID,
		data.URL,
		content,
		data.ContentType,
		string(data.Status),
		data.ErrorMessage,
		now,
		now,
	)
	if err != nil {
		if code, _ := pgCode(err); code == foreignKeyViolation {
			return fmt.Errorf("purchase %s: %w", data.PurchaseID, fulfillment.ErrNotFound)
		}
		return fmt.Errorf("insert scraped data: %w", err)
	}
	return nil
}

// CompleteScrapedData stores content on the pending record of a purchase.
func (s *Store) CompleteScrapedData(ctx context.Context, purchaseID string, content fulfillment.ScrapedContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal scraped content: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
UPDATE scraped_data SET status = $1, content = $2, updated_at = $3
WHERE purchase_id = $4 AND status = $5`,
		string(fulfillment.ScrapeCompleted), payload, s.now(), purchaseID, string(fulfillment.ScrapePending))
	if err != nil {
		return fmt.Errorf("complete scraped data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending scraped data for %s: %w", purchaseID, fulfillment.ErrInvalidTransition)
	}
	return nil
}

// FailScrapedData records errMsg on the pending record of a purchase.
func (s *Store) FailScrapedData(ctx context.Context, purchaseID string, errMsg string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE scraped_data SET status = $1, error_message = $2, updated_at = $3
WHERE purchase_id = $4 AND status = $5`,
		string(fulfillment.ScrapeFailed), errMsg, s.now(), purchaseID, string(fulfillment.ScrapePending))
	if err != nil {
		return fmt.Errorf("fail scraped data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no pending scraped data for %s: %w", purchaseID, fulfillment.ErrInvalidTransition)
	}
	return nil
}

// GetScrapedData fetches the scrape record of a purchase.
func (s *Store) GetScrapedData(ctx context.Context, purchaseID string) (fulfillment.ScrapedData, error) {
	var (
		d       fulfillment.ScrapedData
		content []byte
		status  string
	)
	err := s.db.QueryRow(ctx, `
SELECT purchase_id, url, content, content_type, status, error_message, created_at, updated_at
FROM scraped_data WHERE purchase_id = $1`, purchaseID).Scan(
		&d.PurchaseID,
		&d.URL,
		&content,
		&d.ContentType,
		&status,
		&d.ErrorMessage,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return fulfillment.ScrapedData{}, fmt.Errorf("get scraped data: %w", notFound(err))
	}
	d.Status = fulfillment.ScrapeStatus(status)
	if len(content) > 0 {
		var c fulfillment.ScrapedContent
		if err := json.Unmarshal(content, &c); err != nil {
			return fulfillment.ScrapedData{}, fmt.Errorf("decode scraped content: %w", err)
		}
		d.Content = &c
	}
	return d, nil
}

// CreateOutput inserts an output row.
func (s *Store) CreateOutput(ctx context.Context, out fulfillment.Output) error {
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO outputs (id, purchase_id, report_type, storage_path, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		out.ID, out.PurchaseID, string(out.ReportType), out.StoragePath, out.CreatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == foreignKeyViolation {
			return fmt.Errorf("purchase %s: %w", out.PurchaseID, fulfillment.ErrNotFound)
		}
		return fmt.Errorf("insert output: %w", err)
	}
	return nil
}

// ListOutputs returns the outputs of a purchase oldest first.
func (s *Store) ListOutputs(ctx context.Context, purchaseID string) ([]fulfillment.Output, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, purchase_id, report_type, storage_path, created_at
FROM outputs WHERE purchase_id = $1 ORDER BY created_at, id`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	var outs []fulfillment.Output
	for rows.Next() {
		var (
			o          fulfillment.Output
			reportType string
		)
		if err := rows.Scan(&o.ID, &o.PurchaseID, &reportType, &o.StoragePath, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		o.ReportType = fulfillment.ReportType(reportType)
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	return outs, nil
}

// SaveRawOutput inserts a raw model response.
func (s *Store) SaveRawOutput(ctx context.Context, raw fulfillment.RawOutput) error {
	if raw.CreatedAt.IsZero() {
		raw.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO raw_outputs (id, purchase_id, analysis_type, content, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		raw.ID, raw.PurchaseID, raw.AnalysisType, raw.Content, raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert raw output: %w", err)
	}
	return nil
}
