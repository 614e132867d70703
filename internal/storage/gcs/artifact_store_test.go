package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitereport/internal/fulfillment"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestStore(t *testing.T, handler http.Handler, cfg Config) *ArtifactStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	if cfg.Bucket == "" {
		cfg.Bucket = "test-bucket"
	}
	store, err := New(client, cfg, fixedClock{t: time.Now().UTC()})
	require.NoError(t, err)
	return store
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"}, nil)
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = New(client, Config{}, nil)
	assert.Error(t, err)
	_, err = New(client, Config{Bucket: "b", TTL: 8 * 24 * time.Hour}, nil)
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "p-1/seo-report.pdf", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "%PDF-1.3")
		assert.Contains(t, string(body), "application/pdf")

		fmt.Fprintln(w, `{"name":"p-1/seo-report.pdf","bucket":"test-bucket"}`)
	})
	store := newTestStore(t, handler, Config{})

	path, err := store.Upload(context.Background(), []byte("%PDF-1.3"), "seo-report.pdf", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1/seo-report.pdf", path)
}

func TestUpload_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler, Config{})

	_, err := store.Upload(context.Background(), []byte("x"), "seo-report.pdf", "p-1")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/test-bucket/o")
		assert.Equal(t, "p-1/", r.URL.Query().Get("prefix"))
		fmt.Fprintln(w, `{"kind":"storage#objects","items":[{"name":"p-1/blueprint-report.pdf"},{"name":"p-1/seo-report.pdf"}]}`)
	})
	store := newTestStore(t, handler, Config{})

	paths, err := store.List(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1/blueprint-report.pdf", "p-1/seo-report.pdf"}, paths)
}

func TestDelete(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	store := newTestStore(t, handler, Config{})

	require.NoError(t, store.Delete(context.Background(), "p-1/seo-report.pdf"))
	assert.ErrorIs(t, store.Delete(context.Background(), "p-1/missing.pdf"), fulfillment.ErrNotFound)
}

func TestSignedURL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	store := newTestStore(t, http.NotFoundHandler(), Config{
		TTL:            20 * time.Minute,
		GoogleAccessID: "signer@project.iam.gserviceaccount.com",
		PrivateKey:     pemKey,
	})

	signed, err := store.SignedURL(context.Background(), "p-1/seo-report.pdf")
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "p-1/seo-report.pdf")
	assert.NotEmpty(t, u.Query().Get("X-Goog-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Goog-Signature"))
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), signed.ExpiresAt, time.Minute)

	_, err = store.SignedURL(context.Background(), "no-purchase-prefix.pdf")
	assert.ErrorIs(t, err, fulfillment.ErrInvalidPath)
}
