package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// TempCartStore is an in-memory fulfillment.TempCartStore.
type TempCartStore struct {
	mu    sync.RWMutex
	carts map[string]fulfillment.TempCart
}

var _ fulfillment.TempCartStore = (*TempCartStore)(nil)

// NewTempCartStore constructs an empty TempCartStore.
func NewTempCartStore() *TempCartStore {
	return &TempCartStore{carts: make(map[string]fulfillment.TempCart)}
}

// CreateTempCart stores cart, replacing any cart with the same id.
func (s *TempCartStore) CreateTempCart(_ context.Context, cart fulfillment.TempCart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Metadata = append(json.RawMessage(nil), cart.Metadata...)
	s.carts[cart.CartID] = cart
	return nil
}

// GetTempCart returns ErrNotFound for missing or expired carts.
func (s *TempCartStore) GetTempCart(_ context.Context, cartID string, now time.Time) (fulfillment.TempCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[cartID]
	if !ok || cart.Expired(now) {
		return fulfillment.TempCart{}, fulfillment.ErrNotFound
	}
	cart.Metadata = append(json.RawMessage(nil), cart.Metadata...)
	return cart, nil
}

// DeleteTempCart removes a cart. Deleting a missing cart is not an error.
func (s *TempCartStore) DeleteTempCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, cartID)
	return nil
}

// DeleteExpiredTempCarts removes every cart expired at now.
func (s *TempCartStore) DeleteExpiredTempCarts(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, cart := range s.carts {
		if cart.Expired(now) {
			delete(s.carts, id)
			n++
		}
	}
	return n, nil
}
