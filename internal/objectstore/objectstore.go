// Package objectstore uploads message attachments to an external blob store.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object is one attachment to upload.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// ObjectStore stores bytes and returns a public URL for them.
type ObjectStore interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// HTTPStore PUTs objects under BaseURL. The store is expected to serve the
// object back at the same URL.
type HTTPStore struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPStore constructs an HTTPStore with a bounded client timeout.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload stores obj under a fresh unique key that keeps the original extension.
func (s *HTTPStore) Upload(ctx context.Context, obj Object) (string, error) {
	if len(obj.Data) == 0 {
		return "", fmt.Errorf("objectstore: empty object")
	}
	key := uuid.New().String() + strings.ToLower(path.Ext(obj.Name))
	target := s.BaseURL + "/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(obj.Data))
	if err != nil {
		return "", fmt.Errorf("objectstore: build request: %w", err)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(obj.Data)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("objectstore: upload %s: %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("objectstore: upload %s: unexpected status %d", key, resp.StatusCode)
	}
	return target, nil
}
