package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/specialistvlad/observedseq/internal/sqlwatch"
)

// RemoteStore writes through the /items endpoints of another server.
type RemoteStore struct {
	base   string
	client *http.Client
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore creates a store for the server at rawURL. Only the scheme
// and host of rawURL are used.
func NewRemoteStore(rawURL string, client *http.Client) (*RemoteStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteStore{base: u.Scheme + "://" + u.Host + "/items", client: client}, nil
}

// Insert adds a row.
func (r *RemoteStore) Insert(ctx context.Context, values map[string]any) error {
	return r.do(ctx, http.MethodPost, r.base+"/", values)
}

// Update changes the row with key.
func (r *RemoteStore) Update(ctx context.Context, key string, values map[string]any) error {
	return r.do(ctx, http.MethodPatch, r.base+"/"+url.PathEscape(key), values)
}

// Delete removes the row with key.
func (r *RemoteStore) Delete(ctx context.Context, key string) error {
	return r.do(ctx, http.MethodDelete, r.base+"/"+url.PathEscape(key), nil)
}

func (r *RemoteStore) do(ctx context.Context, method, target string, values map[string]any) error {
	var body io.Reader
	if values != nil {
		raw, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("failed to encode values: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}
	var e ErrorResponse
	msg := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		msg = e.Error
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", sqlwatch.ErrNotFound, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", sqlwatch.ErrInvalidQuery, msg)
	}
	return fmt.Errorf("%s %s: %s", method, strings.TrimPrefix(target, r.base), msg)
}
