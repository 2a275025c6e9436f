// Package artifact defines the capability interface of the remote artifact
// store the migration writes into.
package artifact

import (
	"context"
	"errors"
)

// ErrFileNotFound is returned by GetFile when no file exists at the probed
// path. The transfer executor relies on it for idempotency checks.
var ErrFileNotFound = errors.New("artifact file not found")

// Handle is the store's representation of one migrated record.
type Handle struct {
	ID        string `json:"id"`
	Alias     string `json:"alias"`
	Type      string `json:"type"`
	FileCount int    `json:"file_count"`
	Staged    bool   `json:"staged"`
}

// CreateOptions parameterize artifact creation.
type CreateOptions struct {
	Alias    string         `json:"alias"`
	Type     string         `json:"type"`
	Manifest map[string]any `json:"manifest"`
	ParentID string         `json:"parent_id,omitempty"`

	// Version "stage" creates a non-final version that must be committed.
	Version string `json:"version,omitempty"`

	// Overwrite replaces any stale unfinished attempt under the same alias.
	Overwrite bool `json:"overwrite,omitempty"`

	// Config carries store-side collection settings (permissions, id parts).
	Config map[string]any `json:"config,omitempty"`
}

// Store is the remote artifact store. Implementations must serialize
// concurrent writes to distinct artifact IDs; the migration never issues
// concurrent writes to the same ID.
type Store interface {
	// Create creates an artifact, staged when opts.Version is "stage".
	Create(ctx context.Context, opts CreateOptions) (*Handle, error)

	// Read looks up an artifact by ID or alias.
	Read(ctx context.Context, idOrAlias string) (*Handle, error)

	// Edit replaces an artifact's manifest in place.
	Edit(ctx context.Context, id, artifactType string, m map[string]any) (*Handle, error)

	// GetFile returns a download URL for a stored file, or ErrFileNotFound.
	GetFile(ctx context.Context, id, path string) (string, error)

	// RemoveFile deletes a stored file.
	RemoveFile(ctx context.Context, id, path string) error

	// PutFile returns a presigned upload URL for a file path. downloadWeight
	// marks files that count toward the record's download quota.
	PutFile(ctx context.Context, id, path string, downloadWeight int) (string, error)

	// Commit finalizes a staged artifact version and returns the handle with
	// the final file count.
	Commit(ctx context.Context, id string) (*Handle, error)

	Close() error
}
