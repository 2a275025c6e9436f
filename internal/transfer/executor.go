package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/artifact"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/manifest"
	"github.com/withObsrvr/obsrvr-catalog-mirror/internal/metrics"
)

// ErrTransferFailed is the terminal error after all retry attempts are
// exhausted. It is recorded, never fatal to the overall run.
var ErrTransferFailed = errors.New("transfer failed after retries")

// errRateLimited marks an HTTP 429 from either side of the pipe.
var errRateLimited = errors.New("rate limited")

// Outcome is the result of one logical file transfer.
type Outcome struct {
	Success  bool
	Skipped  bool
	Attempts int
	Err      error
}

// Executor performs one logical file transfer: resolve the source URL, repair
// legacy duplicates, skip files already present, then stream source bytes
// into a presigned upload URL under the retry policy.
type Executor struct {
	store  artifact.Store
	client *http.Client
	policy RetryPolicy
	log    *slog.Logger
	sleep  sleepFunc
}

// NewExecutor creates a transfer executor against the given store.
func NewExecutor(store artifact.Store, policy RetryPolicy, httpTimeout time.Duration) *Executor {
	if policy.MaxAttempts < 1 {
		policy = DefaultPolicy()
	}
	return &Executor{
		store: store,
		client: &http.Client{
			Timeout: httpTimeout,
		},
		policy: policy,
		log:    slog.With("component", "transfer"),
		sleep:  realSleep,
	}
}

// Transfer copies one file reference into the artifact. Relative paths
// resolve against baseURL; absolute URLs are stored under their canonical
// short name after any legacy full-URL-named copy is removed.
func (e *Executor) Transfer(ctx context.Context, artifactID, baseURL string, ref manifest.FileReference) Outcome {
	path := strings.TrimLeft(ref.Path, "./")
	log := e.log.With("artifact", artifactID, "path", path)

	sourceURL := path
	if strings.HasPrefix(path, "http") {
		// An earlier migration stored these files under their full source
		// URL as the file name. Repair before uploading the canonical copy.
		path = canonicalName(sourceURL)
		log = log.With("path", path)
		e.removeLegacyCopy(ctx, log, artifactID, sourceURL)
	} else {
		sourceURL = baseURL + "/" + path
	}

	// Idempotency: a file already at the canonical path stays untouched.
	if _, err := e.store.GetFile(ctx, artifactID, path); err == nil {
		log.Info("file already present, skipping")
		if m := metrics.Get(); m != nil {
			m.IncFilesSkipped()
		}
		return Outcome{Success: true, Skipped: true}
	}

	uploadURL, err := e.store.PutFile(ctx, artifactID, path, ref.DownloadWeight)
	if err != nil {
		log.Error("failed to acquire upload target", "error", err)
		return Outcome{Err: fmt.Errorf("acquire upload target: %w", err)}
	}

	return e.pipeWithRetry(ctx, log, sourceURL, uploadURL)
}

// removeLegacyCopy deletes a file stored under its raw source URL, if one
// exists. Deletion failure is non-fatal; the canonical upload proceeds.
func (e *Executor) removeLegacyCopy(ctx context.Context, log *slog.Logger, artifactID, fileURL string) {
	if _, err := e.store.GetFile(ctx, artifactID, fileURL); err != nil {
		return
	}
	if err := e.store.RemoveFile(ctx, artifactID, fileURL); err != nil {
		log.Warn("failed to remove legacy url-named file", "error", err)
		return
	}
	log.Info("removed legacy url-named file", "url", fileURL)
}

// pipeWithRetry streams sourceURL into uploadURL under the retry policy.
func (e *Executor) pipeWithRetry(ctx context.Context, log *slog.Logger, sourceURL, uploadURL string) Outcome {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		bytes, err := e.pipe(ctx, sourceURL, uploadURL)
		if err == nil {
			log.Info("transferred file", "attempt", attempt, "bytes", bytes)
			if m := metrics.Get(); m != nil {
				m.IncFilesTransferred()
				m.AddBytesTransferred(float64(bytes))
			}
			return Outcome{Success: true, Attempts: attempt}
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}

		if attempt < e.policy.MaxAttempts {
			delay := e.policy.Backoff(attempt)
			if errors.Is(err, errRateLimited) {
				delay = e.policy.RateLimitDelay
				log.Warn("rate limit hit, retrying", "attempt", attempt, "delay", delay)
			} else {
				log.Warn("transfer attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			}
			if m := metrics.Get(); m != nil {
				m.IncTransferRetries()
			}
			if err := e.sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	log.Error("transfer failed", "attempts", e.policy.MaxAttempts, "error", lastErr)
	if m := metrics.Get(); m != nil {
		m.IncFilesFailed()
	}
	return Outcome{
		Attempts: e.policy.MaxAttempts,
		Err:      fmt.Errorf("%w: %s: %v", ErrTransferFailed, sourceURL, lastErr),
	}
}

// pipe performs one streamed GET→PUT attempt, forwarding Content-Length when
// the source reports it. The body is never buffered in process memory.
func (e *Executor) pipe(ctx context.Context, sourceURL, uploadURL string) (int64, error) {
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}
	getReq.Header.Set("Connection", "close")

	resp, err := e.client.Do(getReq)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, fmt.Errorf("download %s: %w", sourceURL, errRateLimited)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("download %s: http %d", sourceURL, resp.StatusCode)
	}

	body := &countingReader{r: resp.Body}
	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return 0, fmt.Errorf("create upload request: %w", err)
	}
	putReq.Header.Set("Connection", "close")
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			putReq.ContentLength = n
		}
	}

	putResp, err := e.client.Do(putReq)
	if err != nil {
		return body.n, fmt.Errorf("upload to %s: %w", uploadURL, err)
	}
	defer putResp.Body.Close()
	io.Copy(io.Discard, putResp.Body)

	switch {
	case putResp.StatusCode == http.StatusTooManyRequests:
		return body.n, fmt.Errorf("upload: %w", errRateLimited)
	case putResp.StatusCode < 200 || putResp.StatusCode >= 300:
		return body.n, fmt.Errorf("upload: http %d", putResp.StatusCode)
	}

	return body.n, nil
}

// canonicalName derives the short file name of a full source URL: the last
// path segment before any query string.
func canonicalName(fileURL string) string {
	name := fileURL
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// countingReader counts bytes as they stream through the pipe.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
