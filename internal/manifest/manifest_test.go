package manifest

import "testing"

func TestMerge(t *testing.T) {
	m := Manifest{"type": "model", "name": "original", "documentation": "README.md"}
	m.Merge(map[string]any{"name": "override", "id": "r1"})

	if m["name"] != "override" {
		t.Errorf("name = %v, want src to win", m["name"])
	}
	if m["id"] != "r1" {
		t.Errorf("id = %v, want new field added", m["id"])
	}
	if m["documentation"] != "README.md" {
		t.Errorf("documentation = %v, want untouched field kept", m["documentation"])
	}
}

func TestSourceRef(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		wantPath string
		isObject bool
	}{
		{"string variant", "weights.pt", "weights.pt", false},
		{"object variant", map[string]any{"source": "weights.pt"}, "weights.pt", true},
		{"object without source", map[string]any{"sha256": "abc"}, "", true},
		{"nil", nil, "", false},
		{"unexpected type", 42, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := normalizeRef(tt.raw)
			if got := ref.Path(); got != tt.wantPath {
				t.Errorf("Path() = %q, want %q", got, tt.wantPath)
			}
			if got := ref.IsObject(); got != tt.isObject {
				t.Errorf("IsObject() = %v, want %v", got, tt.isObject)
			}
		})
	}
}

func TestSchemeSegment(t *testing.T) {
	tests := []struct {
		v    string
		idx  int
		want string
	}{
		{"model.py:MyNetwork", 0, "model.py"},
		{"conda:environment.yaml", 1, "environment.yaml"},
		{"plain.yaml", 0, "plain.yaml"},
		{"plain.yaml", 1, "plain.yaml"},
	}
	for _, tt := range tests {
		if got := schemeSegment(tt.v, tt.idx); got != tt.want {
			t.Errorf("schemeSegment(%q, %d) = %q, want %q", tt.v, tt.idx, got, tt.want)
		}
	}
}
