package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
)

// HTTPSource reads the collection index and manifests over plain HTTP.
type HTTPSource struct {
	indexURL string
	client   *http.Client
}

// NewHTTPSource creates an HTTP catalog source.
func NewHTTPSource(indexURL string) *HTTPSource {
	return &HTTPSource{
		indexURL: indexURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// FetchIndex downloads and decodes the collection index (a JSON document).
func (s *HTTPSource) FetchIndex(ctx context.Context) (*Index, error) {
	raw, err := s.get(ctx, s.indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", s.indexURL, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", s.indexURL, err)
	}

	return decodeIndex(doc), nil
}

// FetchManifest downloads and decodes one record's manifest (a YAML document).
func (s *HTTPSource) FetchManifest(ctx context.Context, url string) (manifest.Manifest, error) {
	raw, err := s.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", url, err)
	}

	var m manifest.Manifest
	if err := yaml.Unmarshal(stripUndefinedTags(raw), &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", url, err)
	}

	return m, nil
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Upstream drops idle connections aggressively; don't keep them open.
	req.Header.Set("Connection", "close")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// Close releases resources.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
