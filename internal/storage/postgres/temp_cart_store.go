package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// CreateTempCart upserts cart by id.
func (s *Store) CreateTempCart(ctx context.Context, cart fulfillment.TempCart) error {
	metadata := []byte(cart.Metadata)
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO temp_carts (cart_id, url, metadata, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (cart_id) DO UPDATE
SET url = EXCLUDED.url, metadata = EXCLUDED.metadata, expires_at = EXCLUDED.expires_at`,
		cart.CartID, cart.URL, metadata, cart.ExpiresAt, cart.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert temp cart: %w", err)
	}
	return nil
}

// GetTempCart returns ErrNotFound for missing or expired carts.
func (s *Store) GetTempCart(ctx context.Context, cartID string, now time.Time) (fulfillment.TempCart, error) {
	var (
		cart     fulfillment.TempCart
		metadata []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT cart_id, url, metadata, expires_at, created_at
FROM temp_carts WHERE cart_id = $1 AND expires_at > $2`, cartID, now).Scan(
		&cart.CartID, &cart.URL, &metadata, &cart.ExpiresAt, &cart.CreatedAt,
	)
	if err != nil {
		return fulfillment.TempCart{}, fmt.Errorf("get temp cart: %w", notFound(err))
	}
	cart.Metadata = json.RawMessage(metadata)
	return cart, nil
}

// DeleteTempCart removes a cart. Deleting a missing cart is not an error.
func (s *Store) DeleteTempCart(ctx context.Context, cartID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM temp_carts WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete temp cart: %w", err)
	}
	return nil
}

// DeleteExpiredTempCarts removes every cart expired at now.
func (s *Store) DeleteExpiredTempCarts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM temp_carts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep temp carts: %w", err)
	}
	return tag.RowsAffected(), nil
}
