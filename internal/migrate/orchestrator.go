package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/artifact"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/catalog"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/journal"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/logging"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/metrics"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Report summarizes a full migration run.
type Report struct {
	Total    int
	Migrated int
	Skipped  int
	Failed   int
}

// Options configure the orchestrator.
type Options struct {
	CollectionAlias      string
	ParentID             string // derived from the collection when empty
	MaxConcurrentRecords int
	SkipMigrated         bool
}

// Orchestrator fans the catalog out to record migrators under a fixed
// admission limit and aggregates their results. A single record's failure
// never blocks the rest of the batch.
type Orchestrator struct {
	src     catalog.Source
	store   artifact.Store
	exec    Transferrer
	journal journal.Manager
	opts    Options
	log     *slog.Logger
}

// New creates a collection orchestrator.
func New(src catalog.Source, store artifact.Store, exec Transferrer, jm journal.Manager, opts Options) *Orchestrator {
	if opts.MaxConcurrentRecords < 1 {
		opts.MaxConcurrentRecords = 10
	}
	return &Orchestrator{
		src:     src,
		store:   store,
		exec:    exec,
		journal: jm,
		opts:    opts,
		log:     logging.Component("orchestrator"),
	}
}

// Run migrates the whole catalog and returns the final report. Only index
// retrieval and parent collection bootstrap are fatal; everything after is
// absorbed at record granularity.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	idx, err := o.src.FetchIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch collection index: %w", err)
	}
	o.log.Info("fetched collection index", "records", len(idx.Records))

	parentID, err := o.ensureCollection(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("ensure parent collection: %w", err)
	}

	if j, err := o.journal.Load(ctx); err == nil {
		o.log.Info("loaded migration journal", "entries", len(j.Entries))
	}

	migrator := NewMigrator(o.src, o.store, o.exec, parentID, o.opts.SkipMigrated)

	sem := make(chan struct{}, o.opts.MaxConcurrentRecords)
	results := make(chan Result)
	var wg sync.WaitGroup
	startTime := time.Now()

	for _, rec := range idx.Records {
		wg.Add(1)
		go func(rec catalog.Record) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- Result{Slug: rec.Slug(), Status: StatusFailed, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			if m := metrics.Get(); m != nil {
				m.SetInFlightRecords(float64(len(sem)))
			}

			correlationID := uuid.New().String()
			log := logging.RecordLogger(correlationID, o.opts.CollectionAlias, rec.Slug())
			log.Info("migrating record")

			recordStart := time.Now()
			res := migrator.Migrate(ctx, log, rec)
			if m := metrics.Get(); m != nil {
				m.ObserveRecordMigrationDuration(time.Since(recordStart).Seconds())
			}

			results <- res
		}(rec)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	report := &Report{Total: len(idx.Records)}
	for res := range results {
		o.collect(ctx, report, res)
	}

	elapsed := time.Since(startTime)
	o.log.Info("migration completed",
		"total", report.Total,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", elapsed.String(),
	)

	return report, nil
}

// collect folds one record result into the report and side channels.
func (o *Orchestrator) collect(ctx context.Context, report *Report, res Result) {
	m := metrics.Get()

	switch res.Status {
	case StatusMigrated:
		report.Migrated++
		if m != nil {
			m.IncRecordsMigrated(o.opts.CollectionAlias)
		}
		if err := o.journal.Record(ctx, journal.Entry{
			Slug:       res.Slug,
			ArtifactID: res.ArtifactID,
			Type:       res.Type,
			FileCount:  res.FileCount,
			MigratedAt: time.Now().UTC(),
		}); err != nil {
			o.log.Warn("failed to record journal entry", "record", res.Slug, "error", err)
		}
	case StatusSkipped:
		report.Skipped++
		if m != nil {
			m.IncRecordsSkipped(o.opts.CollectionAlias)
		}
	default:
		report.Failed++
		if m != nil {
			m.IncRecordsFailed(o.opts.CollectionAlias)
		}
		o.log.Error("record migration failed", "record", res.Slug, "stage", res.Stage, "error", res.Err)
	}
}

// ensureCollection creates (or re-creates, overwriting a stale copy) the
// parent collection artifact from the index metadata, and returns the parent
// ID record artifacts are created under.
func (o *Orchestrator) ensureCollection(ctx context.Context, idx *catalog.Index) (string, error) {
	handle, err := o.store.Create(ctx, artifact.CreateOptions{
		Alias:     o.opts.CollectionAlias,
		Type:      "collection",
		Manifest:  idx.Manifest,
		Overwrite: true,
		Config: map[string]any{
			"permissions": map[string]any{"*": "r", "@": "r+"},
		},
	})
	if err != nil {
		return "", err
	}
	o.log.Info("parent collection ready", "alias", o.opts.CollectionAlias, "id", handle.ID)

	if o.opts.ParentID != "" {
		return o.opts.ParentID, nil
	}
	return handle.ID, nil
}
