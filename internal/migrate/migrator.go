// Package migrate orchestrates the catalog migration: one migrator per
// record, fanned out under a fixed concurrency limit.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/artifact"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/catalog"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/transfer"
)

// Status is the terminal state of one record migration.
type Status string

const (
	StatusMigrated Status = "migrated"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Stage identifies where in the lifecycle a record failed.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageMetadata Stage = "metadata"
	StageFiles    Stage = "files"
	StageCommit   Stage = "commit"
)

// Result is the per-record outcome reported to the orchestrator.
type Result struct {
	Slug        string
	Type        string
	ArtifactID  string
	Status      Status
	Stage       Stage // set when Status is StatusFailed
	FileCount   int   // remote file count after commit
	FailedFiles int   // transfers that exhausted retries
	Err         error
}

// Transferrer executes one file transfer. transfer.Executor implements it;
// tests substitute fakes.
type Transferrer interface {
	Transfer(ctx context.Context, artifactID, baseURL string, ref manifest.FileReference) transfer.Outcome
}

// Migrator migrates a single catalog record: metadata create/edit, file
// staging, and commit. Errors never propagate past the record; they are
// converted to a Result.
type Migrator struct {
	src          catalog.Source
	store        artifact.Store
	exec         Transferrer
	parentID     string
	skipMigrated bool
}

// NewMigrator creates a record migrator.
func NewMigrator(src catalog.Source, store artifact.Store, exec Transferrer, parentID string, skipMigrated bool) *Migrator {
	return &Migrator{
		src:          src,
		store:        store,
		exec:         exec,
		parentID:     parentID,
		skipMigrated: skipMigrated,
	}
}

// Migrate runs one record through its full lifecycle. The sequencing is
// load-bearing and must not change: metadata is written before any file
// moves, the raw descriptor is uploaded before dependent files, and commit
// happens only after every reference was transferred or confirmed present.
func (m *Migrator) Migrate(ctx context.Context, log *slog.Logger, rec catalog.Record) Result {
	slug := rec.Slug()
	res := Result{Slug: slug}

	full, err := m.src.FetchManifest(ctx, rec.RDFSource())
	if err != nil {
		log.Error("failed to fetch manifest", "error", err)
		res.Status = StatusFailed
		res.Stage = StageFetch
		res.Err = fmt.Errorf("fetch manifest: %w", err)
		return res
	}
	// Index entry fields win over the downloaded manifest.
	full.Merge(rec)
	res.Type = full.Type()

	handle, skipped, err := m.writeMetadata(ctx, log, slug, full)
	if err != nil {
		log.Error("failed to write metadata", "error", err)
		res.Status = StatusFailed
		res.Stage = StageMetadata
		res.Err = err
		return res
	}
	res.ArtifactID = handle.ID
	if skipped {
		log.Info("record already migrated, skipping", "type", res.Type)
		res.Status = StatusSkipped
		return res
	}

	res.FailedFiles = m.stageFiles(ctx, log, handle.ID, rec, full)

	committed, err := m.store.Commit(ctx, handle.ID)
	if err != nil {
		log.Error("failed to commit record", "error", err)
		res.Status = StatusFailed
		res.Stage = StageCommit
		res.Err = fmt.Errorf("commit: %w", err)
		return res
	}

	res.Status = StatusMigrated
	res.FileCount = committed.FileCount
	log.Info("record migrated", "type", res.Type, "file_count", committed.FileCount, "failed_files", res.FailedFiles)
	return res
}

// writeMetadata re-opens or creates the record's artifact. An existing
// artifact is edited in place with the freshly merged manifest; when the run
// skips already-migrated records that edit is the record's final action.
// Otherwise a staged child version is created, overwriting any stale
// unfinished attempt.
func (m *Migrator) writeMetadata(ctx context.Context, log *slog.Logger, slug string, full manifest.Manifest) (*artifact.Handle, bool, error) {
	existing, err := m.store.Read(ctx, slug)
	if err == nil {
		handle, err := m.store.Edit(ctx, existing.ID, full.Type(), full)
		if err != nil {
			return nil, false, fmt.Errorf("edit existing artifact: %w", err)
		}
		if m.skipMigrated {
			return handle, true, nil
		}
	}

	handle, err := m.store.Create(ctx, artifact.CreateOptions{
		Alias:     slug,
		Type:      full.Type(),
		Manifest:  full,
		ParentID:  m.parentID,
		Version:   "stage",
		Overwrite: true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create staged artifact: %w", err)
	}
	return handle, false, nil
}

// stageFiles transfers the raw manifest descriptor first, then every file
// reference from the merged manifest, strictly one at a time. Transfer
// failures are logged and counted; they never abort the record.
func (m *Migrator) stageFiles(ctx context.Context, log *slog.Logger, artifactID string, rec catalog.Record, full manifest.Manifest) int {
	baseURL := rec.BaseURL()
	failed := 0

	// The remote record carries the original descriptor even if later
	// transfers fail.
	out := m.exec.Transfer(ctx, artifactID, baseURL, manifest.FileReference{Path: rec.RDFSource()})
	if out.Err != nil {
		failed++
	}

	for _, ref := range manifest.Collect(full) {
		out := m.exec.Transfer(ctx, artifactID, baseURL, ref)
		if out.Err != nil {
			log.Warn("file transfer failed", "path", ref.Path, "attempts", out.Attempts, "error", out.Err)
			failed++
		}
	}

	return failed
}
