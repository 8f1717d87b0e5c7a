// Package reaper implements C6: a periodic sweep of the temporary-chunk
// directory that evicts files abandoned past the session-expiration
// window. It is deliberately stateless with respect to the session
// store — it only ever looks at file modification times.
package reaper

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sensorvault/upload-gateway/internal/metrics"
	"github.com/sensorvault/upload-gateway/internal/workerpool"
)

// Reaper periodically walks dir and deletes regular files whose last
// modification is older than expiration.
type Reaper struct {
	dir        string
	expiration time.Duration
	logger     *slog.Logger

	// nowFunc is injectable for deterministic tests.
	nowFunc func() time.Time

	// pool, when set, runs per-file deletions concurrently instead of
	// sequentially. A temp directory backed by a network filesystem can
	// hold thousands of abandoned chunks after an outage; sweeping those
	// one file at a time would stall the next tick.
	pool *workerpool.Pool
}

// New builds a Reaper over dir. expiration doubles as the reaper's tick
// interval and the session TTL, per the configuration's single
// "expiration_millis" knob.
func New(dir string, expiration time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{dir: dir, expiration: expiration, logger: logger, nowFunc: time.Now}
}

// UsePool switches the reaper to deleting stale chunks through pool
// instead of on the sweeping goroutine.
func (r *Reaper) UsePool(pool *workerpool.Pool) {
	r.pool = pool
}

// Run blocks, sweeping every tick until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.expiration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep performs one pass over the directory, deleting every regular
// file older than the expiration window. Deletion failures are logged
// and left for the next tick — a sweep never returns an error, since a
// single unreadable entry must not stop the rest of the pass.
func (r *Reaper) Sweep() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}

		r.logger.Warn("reaper: reading temp dir", slog.String("error", err.Error()))

		return
	}

	cutoff := r.nowFunc().Add(-r.expiration)

	for _, entry := range entries {
		r.sweepEntry(entry, cutoff)
	}
}

func (r *Reaper) sweepEntry(entry fs.DirEntry, cutoff time.Time) {
	if entry.IsDir() {
		return
	}

	info, err := entry.Info()
	if err != nil {
		r.logger.Warn("reaper: stat chunk", slog.String("name", entry.Name()), slog.String("error", err.Error()))
		return
	}

	if info.ModTime().After(cutoff) {
		return
	}

	path := filepath.Join(r.dir, entry.Name())
	name := entry.Name()

	if r.pool != nil && r.pool.Submit(context.Background(), func(context.Context) error {
		return r.deleteStaleFile(path, name)
	}) {
		return
	}

	_ = r.deleteStaleFile(path, name)
}

func (r *Reaper) deleteStaleFile(path, name string) error {
	if err := os.Remove(path); err != nil {
		r.logger.Warn("reaper: deleting stale chunk", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}

	metrics.ChunksReapedTotal.Inc()
	r.logger.Info("reaper: evicted stale chunk", slog.String("name", name))

	return nil
}
