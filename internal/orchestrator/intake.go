package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/metrics"
)

// Metadata keys understood on order events.
const (
	MetaURL        = "url"
	MetaTempCartID = "temp_cart_id"
	MetaTier       = "tier"
	MetaUserID     = "user_id"

	// legacyTempCartID is sent by older checkout pages.
	legacyTempCartID = "tempCartId"
)

// Intake describes what HandleOrderSucceeded did.
type Intake struct {
	PurchaseID string
	// Duplicate is set when the order was already recorded.
	Duplicate bool
	// Launched is set when a pipeline was started.
	Launched bool
}

// HandleOrderSucceeded records a Purchase for ev and launches its pipeline.
// Redelivered events are no-ops. The only errors returned are those that
// prevent the Purchase from being recorded.
func (o *Orchestrator) HandleOrderSucceeded(ctx context.Context, ev fulfillment.OrderEvent) (Intake, error) {
	if strings.TrimSpace(ev.OrderID) == "" {
		return Intake{}, fmt.Errorf("%w: missing order id", ErrInvalidEvent)
	}
	log := o.logger.With(zap.String("order_ref", ev.OrderID))

	existing, err := o.deps.Repository.GetPurchaseByOrderRef(ctx, ev.OrderID)
	switch {
	case err == nil:
		log.Info("order already recorded", zap.String("purchase_id", existing.ID))
		metrics.ObserveWebhook("duplicate")
		return Intake{PurchaseID: existing.ID, Duplicate: true}, nil
	case !errors.Is(err, fulfillment.ErrNotFound):
		metrics.ObserveWebhook("error")
		return Intake{}, fmt.Errorf("lookup order %s: %w", ev.OrderID, err)
	}

	meta, cartID, err := o.resolveMetadata(ctx, ev.Metadata, log)
	if err != nil {
		metrics.ObserveWebhook("error")
		return Intake{}, err
	}

	id, err := o.deps.IDs.NewID()
	if err != nil {
		metrics.ObserveWebhook("error")
		return Intake{}, fmt.Errorf("purchase id: %w", err)
	}
	now := o.now()
	p := fulfillment.Purchase{
		ID:          id,
		OrderRef:    ev.OrderID,
		Email:       ev.Email,
		UserID:      optional(metaString(meta, MetaUserID)),
		Tier:        fulfillment.ParseTier(metaString(meta, MetaTier)),
		URL:         optional(metaString(meta, MetaURL)),
		AmountCents: ev.AmountCents,
		Currency:    ev.Currency,
		Status:      fulfillment.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.deps.Repository.CreatePurchase(ctx, p); err != nil {
		if errors.Is(err, fulfillment.ErrDuplicateOrder) {
			log.Info("order recorded concurrently")
			metrics.ObserveWebhook("duplicate")
			o.consumeCart(ctx, cartID, log)
			result := Intake{Duplicate: true}
			winner, lookupErr := o.deps.Repository.GetPurchaseByOrderRef(ctx, ev.OrderID)
			if lookupErr != nil {
				log.Warn("lookup concurrently recorded order", zap.Error(lookupErr))
				return result, nil
			}
			result.PurchaseID = winner.ID
			return result, nil
		}
		metrics.ObserveWebhook("error")
		return Intake{}, fmt.Errorf("create purchase: %w", err)
	}
	metrics.ObserveWebhook("accepted")
	log = log.With(zap.String("purchase_id", p.ID))
	log.Info("purchase recorded", zap.String("tier", string(p.Tier)))

	o.consumeCart(ctx, cartID, log)

	result := Intake{PurchaseID: p.ID}
	if p.URL == nil {
		log.Info("purchase has no target url; pipeline not started")
		return result, nil
	}
	if err := o.deps.Launcher.Launch(ctx, "purchase:"+p.ID, func(ctx context.Context) {
		o.Run(ctx, p)
	}); err != nil {
		log.Error("launch pipeline", zap.Error(err))
		return result, nil
	}
	result.Launched = true
	return result, nil
}

// consumeCart deletes a resolved temp cart once its order is recorded.
func (o *Orchestrator) consumeCart(ctx context.Context, cartID string, log *zap.Logger) {
	if cartID == "" {
		return
	}
	if err := o.deps.Carts.DeleteTempCart(ctx, cartID); err != nil && !errors.Is(err, fulfillment.ErrNotFound) {
		log.Warn("delete consumed temp cart", zap.String("cart_id", cartID), zap.Error(err))
	}
}

// resolveMetadata applies the temp cart indirection. A direct url wins; a
// referenced cart contributes its url and any metadata keys the order lacks.
// The returned cart id is non-empty when a cart was consumed.
func (o *Orchestrator) resolveMetadata(ctx context.Context, md map[string]any, log *zap.Logger) (map[string]any, string, error) {
	meta := make(map[string]any, len(md))
	for k, v := range md {
		meta[k] = v
	}
	if metaString(meta, MetaURL) != "" {
		return meta, "", nil
	}
	cartID := metaString(meta, MetaTempCartID)
	if cartID == "" {
		cartID = metaString(meta, legacyTempCartID)
	}
	if cartID == "" {
		return meta, "", nil
	}

	cart, err := o.deps.Carts.GetTempCart(ctx, cartID, o.now())
	if err != nil {
		if errors.Is(err, fulfillment.ErrNotFound) {
			log.Warn("referenced temp cart missing or expired", zap.String("cart_id", cartID))
			return meta, "", nil
		}
		return nil, "", fmt.Errorf("resolve temp cart %s: %w", cartID, err)
	}
	if len(cart.Metadata) > 0 {
		var extra map[string]any
		if err := json.Unmarshal(cart.Metadata, &extra); err != nil {
			log.Warn("temp cart metadata is not an object", zap.String("cart_id", cartID), zap.Error(err))
		}
		for k, v := range extra {
			if _, ok := meta[k]; !ok {
				meta[k] = v
			}
		}
	}
	meta[MetaURL] = cart.URL
	return meta, cartID, nil
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
