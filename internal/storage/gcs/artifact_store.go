// Package gcs provides an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

const pdfContentType = "application/pdf"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// TTL bounds signed URL lifetime; V4 signing caps it at seven days.
	TTL time.Duration
	// GoogleAccessID and PrivateKey sign URLs explicitly. When empty the
	// client's credentials are used.
	GoogleAccessID string
	PrivateKey     []byte
}

// ArtifactStore writes reports to a configured GCS bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	cfg    Config
	clock  fulfillment.Clock
}

var _ fulfillment.ArtifactStore = (*ArtifactStore)(nil)

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config, clock fulfillment.Clock) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.TTL > 7*24*time.Hour {
		return nil, fmt.Errorf("signed url ttl %s exceeds seven days", cfg.TTL)
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		cfg:    cfg,
		clock:  clock,
	}, nil
}

// Upload writes data to <purchaseID>/<fileName> as a PDF object.
func (s *ArtifactStore) Upload(ctx context.Context, data []byte, fileName, purchaseID string) (string, error) {
	storagePath, err := fulfillment.ArtifactPath(purchaseID, fileName)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(storagePath).NewWriter(ctx)
	writer.ContentType = pdfContentType
	writer.ContentDisposition = fmt.Sprintf("attachment; filename=%q", fileName)
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return storagePath, nil
}

// SignedURL issues a V4 GET link valid for the configured TTL.
func (s *ArtifactStore) SignedURL(_ context.Context, storagePath string) (fulfillment.SignedURL, error) {
	if _, _, err := fulfillment.SplitArtifactPath(storagePath); err != nil {
		return fulfillment.SignedURL{}, err
	}
	expires := s.now().Add(s.cfg.TTL)
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        expires,
		GoogleAccessID: s.cfg.GoogleAccessID,
		PrivateKey:     s.cfg.PrivateKey,
	}
	link, err := s.client.Bucket(s.bucket).SignedURL(storagePath, opts)
	if err != nil {
		return fulfillment.SignedURL{}, fmt.Errorf("sign url: %w", err)
	}
	return fulfillment.SignedURL{URL: link, ExpiresAt: expires}, nil
}

// List returns the object names under <purchaseID>/.
func (s *ArtifactStore) List(ctx context.Context, purchaseID string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: purchaseID + "/"})
	var paths []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		paths = append(paths, attrs.Name)
	}
	return paths, nil
}

// Delete removes one object.
func (s *ArtifactStore) Delete(ctx context.Context, storagePath string) error {
	err := s.client.Bucket(s.bucket).Object(storagePath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifact %s: %w", storagePath, fulfillment.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *ArtifactStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
