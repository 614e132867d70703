// Package local implements the artifact store on the local filesystem.
package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

// ErrBadSignature is returned by Verify for tampered or expired links.
var ErrBadSignature = errors.New("invalid or expired download signature")

// Config captures the parameters for the local filesystem artifact store.
type Config struct {
	// BaseDir is the root directory where artifacts will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// PublicBaseURL, when set, makes SignedURL return HMAC-signed HTTP links
	// under <PublicBaseURL>/files/. Otherwise links are file:// URIs.
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	// SigningKey signs HTTP links. Required with PublicBaseURL.
	SigningKey string `mapstructure:"signing_key" yaml:"signing_key"`
	// TTL bounds link lifetime.
	TTL time.Duration `mapstructure:"signed_url_ttl" yaml:"signed_url_ttl"`
}

// ArtifactStore writes artifacts under BaseDir/<purchaseID>/<fileName>.
type ArtifactStore struct {
	baseDir    string
	publicBase string
	key        []byte
	ttl        time.Duration
	clock      fulfillment.Clock
}

var _ fulfillment.ArtifactStore = (*ArtifactStore)(nil)

// New creates a new local filesystem-backed artifact store.
func New(cfg Config, clock fulfillment.Clock) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if cfg.PublicBaseURL != "" && cfg.SigningKey == "" {
		return nil, fmt.Errorf("signing key is required with a public base url")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ArtifactStore{
		baseDir:    filepath.Clean(cfg.BaseDir),
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		key:        []byte(cfg.SigningKey),
		ttl:        ttl,
		clock:      clock,
	}, nil
}

// Upload writes data to BaseDir/<purchaseID>/<fileName>.
func (s *ArtifactStore) Upload(_ context.Context, data []byte, fileName, purchaseID string) (string, error) {
	storagePath, err := fulfillment.ArtifactPath(purchaseID, fileName)
	if err != nil {
		return "", err
	}
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return storagePath, nil
}

// SignedURL returns a time-limited link to an existing artifact.
func (s *ArtifactStore) SignedURL(_ context.Context, storagePath string) (fulfillment.SignedURL, error) {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return fulfillment.SignedURL{}, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fulfillment.SignedURL{}, fmt.Errorf("artifact %s: %w", storagePath, fulfillment.ErrNotFound)
		}
		return fulfillment.SignedURL{}, fmt.Errorf("stat artifact: %w", err)
	}

	expires := s.now().Add(s.ttl)
	exp := strconv.FormatInt(expires.Unix(), 10)
	if s.publicBase == "" {
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath), RawQuery: "expires=" + exp}
		return fulfillment.SignedURL{URL: u.String(), ExpiresAt: expires}, nil
	}
	query := url.Values{"expires": {exp}, "signature": {s.sign(storagePath, exp)}}
	link := s.publicBase + "/files/" + storagePath + "?" + query.Encode()
	return fulfillment.SignedURL{URL: link, ExpiresAt: expires}, nil
}

// Verify checks a link produced by SignedURL and returns the file path to serve.
func (s *ArtifactStore) Verify(storagePath, expires, signature string) (string, error) {
	if len(s.key) == 0 {
		return "", ErrBadSignature
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || !s.now().Before(time.Unix(exp, 0)) {
		return "", ErrBadSignature
	}
	want := s.sign(storagePath, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return "", ErrBadSignature
	}
	return s.resolve(storagePath)
}

// List returns the stored paths of a purchase in lexical order.
func (s *ArtifactStore) List(_ context.Context, purchaseID string) ([]string, error) {
	dir, err := s.resolve(purchaseID + "/placeholder")
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Dir(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, purchaseID+"/"+e.Name())
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Delete removes one artifact.
func (s *ArtifactStore) Delete(_ context.Context, storagePath string) error {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("artifact %s: %w", storagePath, fulfillment.ErrNotFound)
		}
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// resolve maps a storage path into BaseDir, rejecting traversal.
func (s *ArtifactStore) resolve(storagePath string) (string, error) {
	if _, _, err := fulfillment.SplitArtifactPath(storagePath); err != nil {
		return "", err
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(storagePath)))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", fulfillment.ErrInvalidPath)
	}
	return fullPath, nil
}

func (s *ArtifactStore) sign(storagePath, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(storagePath + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *ArtifactStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
