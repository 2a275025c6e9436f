package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
)

// BucketSource reads the collection index and manifests straight from object
// storage. Works with S3-compatible stores, GCS, and local directories via
// gocloud.dev. Manifests referenced by absolute URL fall through to HTTP.
type BucketSource struct {
	bucket   *blob.Bucket
	indexKey string
	http     *HTTPSource
	zstd     *zstd.Decoder
}

// NewBucketSource opens the bucket and prepares the decoder.
func NewBucketSource(bucketURL, indexKey string) (*BucketSource, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if indexKey == "" {
		indexKey = "collection.json"
	}

	return &BucketSource{
		bucket:   bucket,
		indexKey: indexKey,
		http:     NewHTTPSource(""),
		zstd:     dec,
	}, nil
}

// FetchIndex reads and decodes the collection index object.
func (s *BucketSource) FetchIndex(ctx context.Context) (*Index, error) {
	raw, err := s.readObject(ctx, s.indexKey)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", s.indexKey, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", s.indexKey, err)
	}

	return decodeIndex(doc), nil
}

// FetchManifest reads and decodes one record's manifest. Absolute URLs are
// fetched over HTTP; everything else is treated as a bucket key.
func (s *BucketSource) FetchManifest(ctx context.Context, url string) (manifest.Manifest, error) {
	if strings.Contains(url, "://") {
		return s.http.FetchManifest(ctx, url)
	}

	raw, err := s.readObject(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", url, err)
	}

	var m manifest.Manifest
	if err := yaml.Unmarshal(stripUndefinedTags(raw), &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", url, err)
	}

	return m, nil
}

// readObject reads a single object, transparently decoding zstd payloads.
func (s *BucketSource) readObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}

	if strings.HasSuffix(key, ".zst") {
		return s.zstd.DecodeAll(data, nil)
	}
	return data, nil
}

// Close releases the bucket connection.
func (s *BucketSource) Close() error {
	s.zstd.Close()
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
