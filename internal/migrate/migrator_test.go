package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/artifact"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/catalog"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/transfer"
)

// fakeSource serves manifests from memory.
type fakeSource struct {
	mu        sync.Mutex
	index     *catalog.Index
	indexErr  error
	manifests map[string]manifest.Manifest
	failURLs  map[string]bool
	stall     time.Duration

	inFlight int
	peak     int
}

func (s *fakeSource) FetchIndex(ctx context.Context) (*catalog.Index, error) {
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	return s.index, nil
}

func (s *fakeSource) FetchManifest(ctx context.Context, url string) (manifest.Manifest, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.stall > 0 {
		time.Sleep(s.stall)
	}

	if s.failURLs[url] {
		return nil, errors.New("manifest unavailable")
	}
	src, ok := s.manifests[url]
	if !ok {
		return nil, errors.New("unknown manifest url")
	}
	m := manifest.Manifest{}
	for k, v := range src {
		m[k] = v
	}
	return m, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeStore records artifact operations in memory.
type fakeStore struct {
	mu        sync.Mutex
	existing  map[string]*artifact.Handle // alias -> handle
	created   []artifact.CreateOptions
	edited    []string
	committed []string
	commitErr error
	createErr map[string]bool // alias -> fail Create
	fileCount int
}

func newStore() *fakeStore {
	return &fakeStore{existing: make(map[string]*artifact.Handle)}
}

func (s *fakeStore) Create(ctx context.Context, opts artifact.CreateOptions) (*artifact.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr[opts.Alias] {
		return nil, errors.New("create rejected")
	}
	s.created = append(s.created, opts)
	return &artifact.Handle{
		ID:     "art-" + opts.Alias,
		Alias:  opts.Alias,
		Type:   opts.Type,
		Staged: opts.Version == "stage",
	}, nil
}

func (s *fakeStore) Read(ctx context.Context, idOrAlias string) (*artifact.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.existing[idOrAlias]; ok {
		return h, nil
	}
	return nil, errors.New("artifact not found")
}

func (s *fakeStore) Edit(ctx context.Context, id, artifactType string, m map[string]any) (*artifact.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edited = append(s.edited, id)
	return &artifact.Handle{ID: id, Type: artifactType}, nil
}

func (s *fakeStore) GetFile(ctx context.Context, id, path string) (string, error) {
	return "", artifact.ErrFileNotFound
}

func (s *fakeStore) RemoveFile(ctx context.Context, id, path string) error { return nil }

func (s *fakeStore) PutFile(ctx context.Context, id, path string, downloadWeight int) (string, error) {
	return "https://upload.example.org/" + path, nil
}

func (s *fakeStore) Commit(ctx context.Context, id string) (*artifact.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.committed = append(s.committed, id)
	return &artifact.Handle{ID: id, FileCount: s.fileCount}, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeTransferrer records transfer calls and fails configured paths.
type fakeTransferrer struct {
	mu        sync.Mutex
	paths     []string
	failPaths map[string]bool
}

func (f *fakeTransferrer) Transfer(ctx context.Context, artifactID, baseURL string, ref manifest.FileReference) transfer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, ref.Path)
	if f.failPaths[ref.Path] {
		return transfer.Outcome{Attempts: 5, Err: transfer.ErrTransferFailed}
	}
	return transfer.Outcome{Success: true, Attempts: 1}
}

func testRecord(slug string) catalog.Record {
	return catalog.Record{
		"nickname":   slug,
		"id":         "10.5281/zenodo." + slug,
		"rdf_source": "https://example.org/" + slug + "/rdf.yaml",
	}
}

func modelManifest() manifest.Manifest {
	return manifest.Manifest{
		"type":          "model",
		"documentation": "README.md",
		"weights": map[string]any{
			"pytorch_state_dict": map[string]any{"source": "weights.pt"},
		},
	}
}

func TestMigrateFullLifecycle(t *testing.T) {
	rec := testRecord("affable-shark")
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()
	store.fileCount = 3
	exec := &fakeTransferrer{}

	m := NewMigrator(src, store, exec, "parent-1", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusMigrated {
		t.Fatalf("status = %s (stage %s, err %v), want migrated", res.Status, res.Stage, res.Err)
	}
	if res.ArtifactID != "art-affable-shark" {
		t.Errorf("artifact id = %q", res.ArtifactID)
	}
	if res.FileCount != 3 {
		t.Errorf("file count = %d, want 3", res.FileCount)
	}
	if res.Type != "model" {
		t.Errorf("type = %q, want model", res.Type)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d artifacts, want 1", len(store.created))
	}
	opts := store.created[0]
	if opts.Alias != "affable-shark" || opts.ParentID != "parent-1" || opts.Version != "stage" || !opts.Overwrite {
		t.Errorf("create options = %+v", opts)
	}

	// Descriptor goes up before any manifest reference.
	wantPaths := []string{rec.RDFSource(), "README.md", "weights.pt"}
	if len(exec.paths) != len(wantPaths) {
		t.Fatalf("transferred %v, want %v", exec.paths, wantPaths)
	}
	for i, p := range exec.paths {
		if p != wantPaths[i] {
			t.Errorf("transfer[%d] = %q, want %q", i, p, wantPaths[i])
		}
	}

	if len(store.committed) != 1 || store.committed[0] != "art-affable-shark" {
		t.Errorf("committed = %v", store.committed)
	}
}

func TestMigrateMergesIndexEntryOverManifest(t *testing.T) {
	rec := testRecord("r1")
	rec["type"] = "dataset" // index entry wins over the manifest's "model"
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()

	m := NewMigrator(src, store, &fakeTransferrer{}, "", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Type != "dataset" {
		t.Errorf("type = %q, want index entry to win", res.Type)
	}
	if store.created[0].Manifest["type"] != "dataset" {
		t.Errorf("stored manifest type = %v", store.created[0].Manifest["type"])
	}
}

func TestMigrateFetchFailure(t *testing.T) {
	rec := testRecord("r1")
	src := &fakeSource{failURLs: map[string]bool{rec.RDFSource(): true}}
	store := newStore()

	m := NewMigrator(src, store, &fakeTransferrer{}, "", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusFailed || res.Stage != StageFetch {
		t.Errorf("result = %+v, want fetch failure", res)
	}
	if len(store.created) != 0 {
		t.Errorf("no artifact should be created after fetch failure, got %v", store.created)
	}
}

func TestMigrateSkipsAlreadyMigrated(t *testing.T) {
	rec := testRecord("r1")
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()
	store.existing["r1"] = &artifact.Handle{ID: "art-old", Alias: "r1"}
	exec := &fakeTransferrer{}

	m := NewMigrator(src, store, exec, "", true)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusSkipped {
		t.Fatalf("status = %s, want skipped", res.Status)
	}
	// Metadata still refreshes on skip.
	if len(store.edited) != 1 || store.edited[0] != "art-old" {
		t.Errorf("edited = %v, want metadata refresh on art-old", store.edited)
	}
	if len(store.created) != 0 || len(exec.paths) != 0 || len(store.committed) != 0 {
		t.Errorf("skip must not create, transfer, or commit: created=%v paths=%v committed=%v",
			store.created, exec.paths, store.committed)
	}
}

func TestMigrateRemigratesExistingWhenSkipDisabled(t *testing.T) {
	rec := testRecord("r1")
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()
	store.existing["r1"] = &artifact.Handle{ID: "art-old", Alias: "r1"}

	m := NewMigrator(src, store, &fakeTransferrer{}, "", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusMigrated {
		t.Fatalf("status = %s, want migrated", res.Status)
	}
	if len(store.edited) != 1 {
		t.Errorf("existing metadata not refreshed: %v", store.edited)
	}
	if len(store.created) != 1 {
		t.Errorf("staged version not created: %v", store.created)
	}
}

func TestMigrateCountsFailedFilesButCommits(t *testing.T) {
	rec := testRecord("r1")
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()
	exec := &fakeTransferrer{failPaths: map[string]bool{"weights.pt": true}}

	m := NewMigrator(src, store, exec, "", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusMigrated {
		t.Fatalf("status = %s, transfer failures must not abort the record", res.Status)
	}
	if res.FailedFiles != 1 {
		t.Errorf("failed files = %d, want 1", res.FailedFiles)
	}
	if len(store.committed) != 1 {
		t.Errorf("record not committed: %v", store.committed)
	}
}

func TestMigrateCommitFailure(t *testing.T) {
	rec := testRecord("r1")
	src := &fakeSource{manifests: map[string]manifest.Manifest{
		rec.RDFSource(): modelManifest(),
	}}
	store := newStore()
	store.commitErr = fmt.Errorf("store unavailable")

	m := NewMigrator(src, store, &fakeTransferrer{}, "", false)
	res := m.Migrate(context.Background(), slog.Default(), rec)

	if res.Status != StatusFailed || res.Stage != StageCommit {
		t.Errorf("result = %+v, want commit failure", res)
	}
}
