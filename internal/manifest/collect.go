package manifest

import (
	"sort"
	"strings"
)

// thumbnailMarker flags pre-rendered cover thumbnails. The original image
// shares the cover's path with the marker removed.
const thumbnailMarker = ".thumbnail."

// FileReference is one file to copy as part of a record's migration.
type FileReference struct {
	// Path is the logical path from the manifest. It is either relative to
	// the record's base URL or a full source URL.
	Path string

	// DownloadWeight is 1 when the file counts toward the download quota
	// (primary weight files), 0 otherwise.
	DownloadWeight int
}

// Collect walks a merged manifest and returns every file reference it names,
// in a fixed traversal order, with duplicate paths dropped (first occurrence
// wins).
//
// The traversal mirrors the upstream schema exactly, including its
// inconsistencies; every branch here corresponds to a shape that real
// records use, and skipping one silently drops files from migration.
func Collect(m Manifest) []FileReference {
	c := &collector{seen: make(map[string]bool)}

	// 1. Documentation (single file, usually README.md).
	if doc := stringField(m, "documentation"); doc != "" {
		c.add(doc, 0)
	}

	// 2. Cover images, plus the full-size original for thumbnails.
	for _, v := range listSection(m, "covers") {
		cover, ok := v.(string)
		if !ok || cover == "" {
			continue
		}
		c.add(cover, 0)
		if strings.Contains(cover, thumbnailMarker) {
			c.add(strings.ReplaceAll(cover, thumbnailMarker, "."), 0)
		}
	}

	// 3. Attachments. Newer records use {files: [...]}, older ones a bare
	// list; entries are either paths or {source} objects.
	for _, v := range attachmentFiles(m) {
		c.add(normalizeRef(v).Path(), 0)
	}

	// 4. Weights, keyed by format. Key order is sorted so collection is
	// deterministic.
	c.collectWeights(m)

	// 5. Input/output tensor descriptors.
	c.collectTensors(m, "inputs")
	c.collectTensors(m, "outputs")

	// 6. Direct sample/test file lists.
	for _, section := range []string{"sample_inputs", "sample_outputs", "test_inputs", "test_outputs"} {
		for _, v := range listSection(m, section) {
			c.add(normalizeRef(v).Path(), 0)
		}
	}

	return c.refs
}

type collector struct {
	refs []FileReference
	seen map[string]bool
}

func (c *collector) add(path string, weight int) {
	if path == "" || c.seen[path] {
		return
	}
	c.seen[path] = true
	c.refs = append(c.refs, FileReference{Path: path, DownloadWeight: weight})
}

// collectWeights emits, per weight format: the architecture file (with any
// scheme-like prefix stripped), the weight file itself (download weight 1),
// and the dependency descriptor.
func (c *collector) collectWeights(m Manifest) {
	weights, ok := m["weights"].(map[string]any)
	if !ok {
		return
	}

	formats := make([]string, 0, len(weights))
	for format := range weights {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	for _, format := range formats {
		entry, ok := weights[format].(map[string]any)
		if !ok || len(entry) == 0 {
			// Null or empty format slots appear in older records.
			continue
		}

		if arch, ok := entry["architecture"]; ok {
			switch a := arch.(type) {
			case string:
				// e.g. "model.py:MyNetwork" names the file before the
				// class tag.
				c.add(schemeSegment(a, 0), 0)
			case map[string]any:
				if src := stringField(a, "source"); src != "" {
					c.add(schemeSegment(src, 0), 0)
				}
			}
		}

		c.add(normalizeRef(entry).Path(), 1)

		if deps, ok := entry["dependencies"]; ok && deps != nil {
			switch d := deps.(type) {
			case string:
				// e.g. "conda:environment.yaml" names the file after the
				// manager prefix.
				c.add(schemeSegment(d, 1), 0)
			case map[string]any:
				c.add(stringField(d, "source"), 0)
			}
		}
	}
}

// collectTensors emits the test and sample tensors of each input/output slot.
func (c *collector) collectTensors(m Manifest, section string) {
	for _, v := range listSection(m, section) {
		slot, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"test_tensor", "sample_tensor"} {
			if tensor, ok := slot[key]; ok && tensor != nil {
				c.add(normalizeRef(tensor).Path(), 0)
			}
		}
	}
}

// listSection reads a top-level list field, tolerating absence and nulls.
func listSection(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// attachmentFiles normalizes the two attachment shapes to a flat entry list.
func attachmentFiles(m Manifest) []any {
	switch v := m["attachments"].(type) {
	case []any:
		return v
	case map[string]any:
		return listSection(v, "files")
	}
	return nil
}
