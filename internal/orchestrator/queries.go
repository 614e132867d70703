package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// StatusView is the client-facing view of a purchase status.
type StatusView struct {
	PurchaseID string             `json:"purchase_id"`
	Status     fulfillment.Status `json:"status"`
	Terminal   bool               `json:"terminal"`
	Message    string             `json:"message"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// PurchaseStatus returns the status of a purchase with its explanation.
func (o *Orchestrator) PurchaseStatus(ctx context.Context, purchaseID string) (StatusView, error) {
	p, err := o.deps.Repository.GetPurchase(ctx, purchaseID)
	if err != nil {
		return StatusView{}, fmt.Errorf("purchase status: %w", err)
	}
	return StatusView{
		PurchaseID: p.ID,
		Status:     p.Status,
		Terminal:   p.Status.Terminal(),
		Message:    p.Status.Explanation(),
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

// Downloads signs fresh links for every stored report of a completed purchase.
func (o *Orchestrator) Downloads(ctx context.Context, purchaseID string) ([]fulfillment.Download, error) {
	p, err := o.deps.Repository.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("downloads: %w", err)
	}
	if p.Status != fulfillment.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrNotCompleted, p.Status)
	}
	return o.signDownloads(ctx, purchaseID)
}

func (o *Orchestrator) signDownloads(ctx context.Context, purchaseID string) ([]fulfillment.Download, error) {
	outputs, err := o.deps.Repository.ListOutputs(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	downloads := make([]fulfillment.Download, 0, len(outputs))
	for _, out := range outputs {
		link, err := o.deps.Artifacts.SignedURL(ctx, out.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", out.StoragePath, err)
		}
		downloads = append(downloads, fulfillment.Download{
			ReportType: out.ReportType,
			URL:        link.URL,
			ExpiresAt:  link.ExpiresAt,
		})
	}
	return downloads, nil
}

// Claim attributes a purchase to an account after the fact.
func (o *Orchestrator) Claim(ctx context.Context, purchaseID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	if err := o.deps.Repository.LinkUser(ctx, purchaseID, userID); err != nil {
		return fmt.Errorf("claim purchase: %w", err)
	}
	return nil
}
