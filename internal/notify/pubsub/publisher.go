// Package pubsub hands completion notifications to the email service over a
// Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
	"github.com/JakeFAU/sitereport/internal/notify"
)

// Notifier publishes one message per completed purchase.
type Notifier struct {
	topic  *pubsub.Topic
	clock  fulfillment.Clock
	logger *zap.Logger
}

var _ fulfillment.Notifier = (*Notifier)(nil)

// New creates a Notifier for topic.
func New(topic *pubsub.Topic, clock fulfillment.Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{topic: topic, clock: clock, logger: logger}
}

// NotifyCompleted marshals the completion message and waits for the publish ack.
func (n *Notifier) NotifyCompleted(ctx context.Context, p fulfillment.Purchase, downloads []fulfillment.Download) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(notify.NewCompletionMessage(p, downloads, n.now()))
	if err != nil {
		return fmt.Errorf("marshal completion message: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":       notify.EventPurchaseCompleted,
			"purchase_id": p.ID,
		},
	}
	id, err := n.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish completion message: %w", err)
	}
	n.logger.Debug("completion message published",
		zap.String("purchase_id", p.ID),
		zap.String("message_id", id),
	)
	return nil
}

func (n *Notifier) now() time.Time {
	if n.clock == nil {
		return time.Now().UTC()
	}
	return n.clock.Now()
}
