// Package journal persists a local record of committed migrations so an
// operator can audit or resume a run without re-probing the remote store.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoJournal is returned when no journal exists yet.
var ErrNoJournal = errors.New("no migration journal found")

// Entry records one committed record migration.
type Entry struct {
	Slug       string    `json:"slug"`
	ArtifactID string    `json:"artifact_id"`
	Type       string    `json:"type"`
	FileCount  int       `json:"file_count"`
	MigratedAt time.Time `json:"migrated_at"`
}

// Journal is the persisted migration state for one collection.
type Journal struct {
	Collection string           `json:"collection"`
	Entries    map[string]Entry `json:"entries"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Manager handles journal persistence and retrieval.
type Manager interface {
	// Load reads the current journal.
	Load(ctx context.Context) (*Journal, error)

	// Record persists one committed record.
	Record(ctx context.Context, e Entry) error
}

// Config configures the journal manager.
type Config struct {
	Enabled    bool
	Dir        string // Directory for journal files
	Collection string // Collection alias the journal belongs to
}

// NewManager creates a journal manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{
		path:       filepath.Join(cfg.Dir, fmt.Sprintf("journal_%s.json", cfg.Collection)),
		collection: cfg.Collection,
	}, nil
}

// fileManager persists the journal to a local file.
type fileManager struct {
	path       string
	collection string
	mu         sync.Mutex
}

// Load reads the journal from file.
func (m *fileManager) Load(ctx context.Context) (*Journal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *fileManager) load() (*Journal, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoJournal
		}
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journal file: %w", err)
	}
	if j.Entries == nil {
		j.Entries = make(map[string]Entry)
	}

	return &j, nil
}

// Record loads the journal, upserts the entry, and saves atomically.
// Concurrent record migrations serialize through the manager's lock.
func (m *fileManager) Record(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.load()
	if errors.Is(err, ErrNoJournal) {
		j = &Journal{
			Collection: m.collection,
			Entries:    make(map[string]Entry),
		}
	} else if err != nil {
		return err
	}

	j.Entries[e.Slug] = e
	j.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	// Write atomically
	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write journal temp file: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	return nil
}

// noopManager is a no-op journal manager for when journaling is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*Journal, error) {
	return nil, ErrNoJournal
}

func (m *noopManager) Record(ctx context.Context, e Entry) error {
	return nil
}
