// Package catalog retrieves the collection index and per-record manifests
// from the source backend.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
)

// undefinedTag is an upstream data-quality quirk: some manifests carry a
// serialized JavaScript undefined that the YAML parser rejects. It is
// stripped from the raw text before parsing.
const undefinedTag = "!<tag:yaml.org,2002:js/undefined>"

// Record is one catalog entry as listed in the collection index. The index
// entry is lightweight; the full manifest is downloaded separately from
// RDFSource and merged with these fields.
type Record map[string]any

// Slug derives the record's stable identity: the nickname when present,
// otherwise the id, with path separators normalized.
func (r Record) Slug() string {
	id, _ := r["nickname"].(string)
	if id == "" {
		id, _ = r["id"].(string)
	}
	return strings.ReplaceAll(id, "/", ":")
}

// RDFSource returns the URL of the record's full manifest document.
func (r Record) RDFSource() string {
	s, _ := r["rdf_source"].(string)
	return s
}

// BaseURL returns the URL that relative file references resolve against.
func (r Record) BaseURL() string {
	return strings.TrimSuffix(r.RDFSource(), "/rdf.yaml")
}

// Index is the decoded collection index: the collection's own metadata plus
// the list of records to migrate.
type Index struct {
	// Manifest holds every top-level index field except the record list.
	Manifest map[string]any

	// Records are the catalog entries, in index order.
	Records []Record
}

// Source retrieves the collection index and record manifests.
type Source interface {
	// FetchIndex downloads and decodes the collection index.
	FetchIndex(ctx context.Context) (*Index, error)

	// FetchManifest downloads and decodes one record's full manifest.
	FetchManifest(ctx context.Context, url string) (manifest.Manifest, error)

	Close() error
}

// Config selects and configures the catalog backend.
type Config struct {
	Mode      string // "http" | "bucket"
	IndexURL  string // http mode: collection index URL
	BucketURL string // bucket mode: gocloud.dev bucket URL (s3://, gs://, file://)
	IndexKey  string // bucket mode: index object key
}

var ErrInvalidCatalogMode = errors.New("invalid catalog mode")

// NewSource constructs a catalog source based on the configured mode.
func NewSource(cfg Config) (Source, error) {
	switch cfg.Mode {
	case "http":
		if cfg.IndexURL == "" {
			return nil, fmt.Errorf("IndexURL required for http catalog")
		}
		return NewHTTPSource(cfg.IndexURL), nil
	case "bucket":
		if cfg.BucketURL == "" {
			return nil, fmt.Errorf("BucketURL required for bucket catalog")
		}
		return NewBucketSource(cfg.BucketURL, cfg.IndexKey)
	default:
		return nil, ErrInvalidCatalogMode
	}
}

// decodeIndex splits raw index fields into collection metadata and records.
func decodeIndex(doc map[string]any) *Index {
	idx := &Index{Manifest: make(map[string]any, len(doc))}
	for k, v := range doc {
		if k == "collection" {
			continue
		}
		idx.Manifest[k] = v
	}
	if entries, ok := doc["collection"].([]any); ok {
		for _, e := range entries {
			if rec, ok := e.(map[string]any); ok {
				idx.Records = append(idx.Records, Record(rec))
			}
		}
	}
	return idx
}

// stripUndefinedTags removes the upstream placeholder tag from raw YAML.
func stripUndefinedTags(raw []byte) []byte {
	return []byte(strings.ReplaceAll(string(raw), undefinedTag, ""))
}
