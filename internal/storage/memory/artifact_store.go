// Package memory provides in-process implementations of the persistence and
// artifact store contracts for development and tests.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// ArtifactStore keeps documents in a map and issues memory:// links.
type ArtifactStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	ttl   time.Duration
	clock fulfillment.Clock
}

var _ fulfillment.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore creates an empty store whose links live for ttl.
func NewArtifactStore(ttl time.Duration, clock fulfillment.Clock) *ArtifactStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ArtifactStore{
		data:  make(map[string][]byte),
		ttl:   ttl,
		clock: clock,
	}
}

// Upload stores a copy of data under <purchaseID>/<fileName>.
func (s *ArtifactStore) Upload(_ context.Context, data []byte, fileName, purchaseID string) (string, error) {
	storagePath, err := fulfillment.ArtifactPath(purchaseID, fileName)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storagePath] = append([]byte(nil), data...)
	return storagePath, nil
}

// SignedURL returns a memory:// link carrying its expiry.
func (s *ArtifactStore) SignedURL(_ context.Context, storagePath string) (fulfillment.SignedURL, error) {
	s.mu.RLock()
	_, ok := s.data[storagePath]
	s.mu.RUnlock()
	if !ok {
		return fulfillment.SignedURL{}, fmt.Errorf("artifact %s: %w", storagePath, fulfillment.ErrNotFound)
	}
	expires := s.now().Add(s.ttl)
	u := url.URL{
		Scheme:   "memory",
		Path:     "/" + storagePath,
		RawQuery: url.Values{"expires": {strconv.FormatInt(expires.Unix(), 10)}}.Encode(),
	}
	return fulfillment.SignedURL{URL: u.String(), ExpiresAt: expires}, nil
}

// List returns the stored paths of a purchase in lexical order.
func (s *ArtifactStore) List(_ context.Context, purchaseID string) ([]string, error) {
	prefix := purchaseID + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	var paths []string
	for p := range s.data {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Delete removes one artifact.
func (s *ArtifactStore) Delete(_ context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[storagePath]; !ok {
		return fmt.Errorf("artifact %s: %w", storagePath, fulfillment.ErrNotFound)
	}
	delete(s.data, storagePath)
	return nil
}

// Object returns a copy of the stored bytes.
func (s *ArtifactStore) Object(storagePath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[storagePath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (s *ArtifactStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
