// Package notify builds the completion message handed to the email service.
package notify

import (
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// EventPurchaseCompleted is the event attribute on completion messages.
const EventPurchaseCompleted = "purchase.completed"

// CompletionMessage is the payload the email service templates from.
type CompletionMessage struct {
	Event       string                 `json:"event"`
	PurchaseID  string                 `json:"purchase_id"`
	OrderRef    string                 `json:"order_ref"`
	Email       string                 `json:"email"`
	Tier        fulfillment.Tier       `json:"tier"`
	URL         string                 `json:"url,omitempty"`
	Downloads   []fulfillment.Download `json:"downloads"`
	CompletedAt time.Time              `json:"completed_at"`
}

// NewCompletionMessage assembles the message for p.
func NewCompletionMessage(p fulfillment.Purchase, downloads []fulfillment.Download, at time.Time) CompletionMessage {
	if downloads == nil {
		downloads = []fulfillment.Download{}
	}
	return CompletionMessage{
		Event:       EventPurchaseCompleted,
		PurchaseID:  p.ID,
		OrderRef:    p.OrderRef,
		Email:       p.Email,
		Tier:        p.Tier,
		URL:         p.TargetURL(),
		Downloads:   downloads,
		CompletedAt: at,
	}
}
