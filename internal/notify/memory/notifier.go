// Package memory contains an in-memory notifier for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// Notification captures one NotifyCompleted call.
type Notification struct {
	Purchase  fulfillment.Purchase
	Downloads []fulfillment.Download
}

// Notifier stores notifications for inspection.
type Notifier struct {
	mu   sync.RWMutex
	sent []Notification
	err  error
}

var _ fulfillment.Notifier = (*Notifier)(nil)

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent calls return err without recording.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// NotifyCompleted records the purchase and its downloads.
func (n *Notifier) NotifyCompleted(_ context.Context, p fulfillment.Purchase, downloads []fulfillment.Download) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	dl := make([]fulfillment.Download, len(downloads))
	copy(dl, downloads)
	n.sent = append(n.sent, Notification{Purchase: p, Downloads: dl})
	return nil
}

// Sent returns the recorded notifications.
func (n *Notifier) Sent() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}
