package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStore talks to the artifact-manager service over HTTP. Each operation
// maps to a POST of a JSON body against {endpoint}/{method}.
type HTTPStore struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPStore creates an artifact store client.
func NewHTTPStore(endpoint, token string) *HTTPStore {
	return &HTTPStore{
		endpoint: endpoint,
		token:    token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *HTTPStore) Create(ctx context.Context, opts CreateOptions) (*Handle, error) {
	var h Handle
	if err := s.call(ctx, "create", opts, &h); err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Alias, err)
	}
	return &h, nil
}

func (s *HTTPStore) Read(ctx context.Context, idOrAlias string) (*Handle, error) {
	var h Handle
	if err := s.call(ctx, "read", map[string]any{"artifact_id": idOrAlias}, &h); err != nil {
		return nil, fmt.Errorf("read %s: %w", idOrAlias, err)
	}
	return &h, nil
}

func (s *HTTPStore) Edit(ctx context.Context, id, artifactType string, m map[string]any) (*Handle, error) {
	req := map[string]any{
		"artifact_id": id,
		"type":        artifactType,
		"manifest":    m,
	}
	var h Handle
	if err := s.call(ctx, "edit", req, &h); err != nil {
		return nil, fmt.Errorf("edit %s: %w", id, err)
	}
	return &h, nil
}

func (s *HTTPStore) GetFile(ctx context.Context, id, path string) (string, error) {
	req := map[string]any{"artifact_id": id, "file_path": path}
	var resp struct {
		URL string `json:"url"`
	}
	if err := s.call(ctx, "get_file", req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (s *HTTPStore) RemoveFile(ctx context.Context, id, path string) error {
	req := map[string]any{"artifact_id": id, "file_path": path}
	if err := s.call(ctx, "remove_file", req, nil); err != nil {
		return fmt.Errorf("remove file %s from %s: %w", path, id, err)
	}
	return nil
}

func (s *HTTPStore) PutFile(ctx context.Context, id, path string, downloadWeight int) (string, error) {
	req := map[string]any{
		"artifact_id":     id,
		"file_path":       path,
		"download_weight": downloadWeight,
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := s.call(ctx, "put_file", req, &resp); err != nil {
		return "", fmt.Errorf("put file %s on %s: %w", path, id, err)
	}
	return resp.URL, nil
}

func (s *HTTPStore) Commit(ctx context.Context, id string) (*Handle, error) {
	var h Handle
	if err := s.call(ctx, "commit", map[string]any{"artifact_id": id}, &h); err != nil {
		return nil, fmt.Errorf("commit %s: %w", id, err)
	}
	return &h, nil
}

// call POSTs a JSON body to {endpoint}/{method} and decodes the response
// into out when non-nil. A 404 maps to ErrFileNotFound so callers can use
// missing-file probes for idempotency.
func (s *HTTPStore) call(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.endpoint+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrFileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
