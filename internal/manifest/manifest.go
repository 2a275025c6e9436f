// Package manifest models the catalog's heterogeneous record descriptors and
// discovers the file references they carry.
package manifest

import (
	"strings"
)

// Manifest is a record descriptor as decoded from YAML or JSON. The upstream
// schema is structurally inconsistent (the same logical field may be a string
// in one record and an object in the next), so the document stays an untyped
// map and access goes through the helpers below.
type Manifest map[string]any

// Merge overlays the fields of src onto m, src winning on conflict. The
// lightweight index entry is merged over the downloaded manifest this way.
func (m Manifest) Merge(src map[string]any) {
	for k, v := range src {
		m[k] = v
	}
}

// Type returns the record's artifact type ("model", "dataset", ...).
func (m Manifest) Type() string {
	return stringField(m, "type")
}

// stringField reads a top-level string field, tolerating absence and nulls.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// SourceRef is a field that upstream encodes either as a bare path string or
// as an object with a "source" key. Normalize resolves both shapes.
type SourceRef struct {
	raw any
}

// Path returns the referenced path, or "" when the variant carries none.
func (r SourceRef) Path() string {
	switch v := r.raw.(type) {
	case string:
		return v
	case map[string]any:
		return stringField(v, "source")
	}
	return ""
}

// IsObject reports whether the variant was encoded as an object.
func (r SourceRef) IsObject() bool {
	_, ok := r.raw.(map[string]any)
	return ok
}

// normalizeRef wraps a raw manifest value as a SourceRef.
func normalizeRef(v any) SourceRef {
	return SourceRef{raw: v}
}

// schemeSegment splits a "scheme:path" value and returns the requested
// segment, or the whole value if there is no separator at that index.
func schemeSegment(v string, idx int) string {
	parts := strings.Split(v, ":")
	if idx < len(parts) {
		return parts[idx]
	}
	return v
}
