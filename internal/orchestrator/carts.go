package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
)

// ErrInvalidCart is returned for carts that cannot be stored.
var ErrInvalidCart = errors.New("invalid temp cart")

// CreateTempCart stores a cart for TempCartTTL. An empty cartID is generated.
func (o *Orchestrator) CreateTempCart(ctx context.Context, cartID, rawURL string, metadata json.RawMessage) (fulfillment.TempCart, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := o.allowTarget(rawURL); err != nil {
		return fulfillment.TempCart{}, fmt.Errorf("%w: %v", ErrInvalidCart, err)
	}
	if len(metadata) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(metadata, &obj); err != nil {
			return fulfillment.TempCart{}, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidCart)
		}
	}
	if cartID == "" {
		var err error
		if cartID, err = o.deps.IDs.NewCartID(); err != nil {
			return fulfillment.TempCart{}, fmt.Errorf("cart id: %w", err)
		}
	}
	now := o.now()
	cart := fulfillment.TempCart{
		CartID:    cartID,
		URL:       rawURL,
		Metadata:  metadata,
		ExpiresAt: now.Add(o.cfg.TempCartTTL),
		CreatedAt: now,
	}
	if err := o.deps.Carts.CreateTempCart(ctx, cart); err != nil {
		return fulfillment.TempCart{}, fmt.Errorf("create temp cart: %w", err)
	}
	return cart, nil
}

func (o *Orchestrator) allowTarget(rawURL string) error {
	if o.deps.Targets != nil {
		return o.deps.Targets.AllowTarget(rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be absolute http(s)")
	}
	return nil
}

// TempCart returns an unexpired cart.
func (o *Orchestrator) TempCart(ctx context.Context, cartID string) (fulfillment.TempCart, error) {
	cart, err := o.deps.Carts.GetTempCart(ctx, cartID, o.now())
	if err != nil {
		return fulfillment.TempCart{}, fmt.Errorf("temp cart: %w", err)
	}
	return cart, nil
}

// SweepTempCarts deletes expired carts and returns how many were removed.
func (o *Orchestrator) SweepTempCarts(ctx context.Context) (int64, error) {
	n, err := o.deps.Carts.DeleteExpiredTempCarts(ctx, o.now())
	if err != nil {
		return 0, fmt.Errorf("sweep temp carts: %w", err)
	}
	metrics.ObserveTempCartsSwept(n)
	if n > 0 {
		o.logger.Info("expired temp carts removed", zap.Int64("count", n))
	}
	return n, nil
}
