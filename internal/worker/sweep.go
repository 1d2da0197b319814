// Package worker runs background maintenance loops for the server.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/mocklens/internal/upload"
)

// RefLister reports which uploads are still referenced by a screen.
type RefLister interface {
	ListImageRefs(ctx context.Context) ([]string, error)
}

// UploadFiles is the upload storage the sweeper prunes.
type UploadFiles interface {
	List() ([]upload.File, error)
	Remove(ctx context.Context, ref string) error
}

// UploadSweeper periodically deletes uploads older than the retention age
// that no screen references.
type UploadSweeper struct {
	refs      RefLister
	files     UploadFiles
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewUploadSweeper creates a sweeper with the given sources, interval and retention.
func NewUploadSweeper(refs RefLister, files UploadFiles, interval, retention time.Duration) *UploadSweeper {
	return &UploadSweeper{
		refs:      refs,
		files:     files,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
// Does NOT run immediately on start; fresh uploads are never due anyway.
func (w *UploadSweeper) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "upload-sweeper",
		"interval", w.interval.String(),
		"retention", w.retention.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "upload-sweeper",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

// runSweep executes a single sweep cycle and logs its outcome.
func (w *UploadSweeper) runSweep(ctx context.Context) {
	start := time.Now()
	removed, err := w.Sweep(ctx)
	if err != nil {
		// Check for graceful shutdown
		if ctx.Err() != nil {
			return
		}
		slog.Error("sweep failed",
			"component", "worker",
			"action", "sweep_failed",
			"removed", removed,
			"error", err,
		)
		return
	}
	slog.Info("sweep cycle completed",
		"component", "worker",
		"action", "sweep_complete",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Sweep removes expired, unreferenced uploads once and returns how many were
// removed. A failed removal is logged and skipped; the first such error is
// returned after the pass completes.
func (w *UploadSweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := w.refs.ListImageRefs(ctx)
	if err != nil {
		return 0, err
	}
	referenced := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		referenced[r] = struct{}{}
	}

	files, err := w.files.List()
	if err != nil {
		return 0, err
	}

	cutoff := w.now().Add(-w.retention)
	var (
		removed  int
		firstErr error
	)
	for _, f := range files {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if _, ok := referenced[f.Ref]; ok || !f.ModTime.Before(cutoff) {
			continue
		}
		if err := w.files.Remove(ctx, f.Ref); err != nil && !errors.Is(err, upload.ErrNotFound) {
			slog.Warn("upload removal failed",
				"component", "worker",
				"ref", f.Ref,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
