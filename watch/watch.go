// Package watch runs a "poll SQLite, detect change, reload" loop. chatwatch
// uses it to follow the chat_pages registry while another process edits it.
//
// Typical usage:
//
//	w := watch.New(db, watch.Options{Interval: time.Second})
//	go w.Run(ctx, func(ctx context.Context) error { return reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// ChangeDetector reads a version token from the database. Two calls that
// return different values mean "something changed".
type ChangeDetector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher behaviour.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Detector overrides the default PragmaDataVersion detector.
	Detector ChangeDetector
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a database for changes and runs an action when one is seen.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64 // last version the action succeeded for, -1 before
	reloads atomic.Int64
}

// New creates a Watcher. Call Run to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	w := &Watcher{db: db, opts: opts}
	w.version.Store(-1)
	return w
}

// Version returns the version token the last successful action ran for.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Reloads returns how many times the action succeeded.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

// Run calls action once, then again every time the detector reports a new
// version, until ctx is cancelled. A failed action does not advance the
// version, so it is retried on the next poll.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger
	log.Debug("watch: started", "interval", w.opts.Interval)

	w.check(ctx, action)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("watch: stopped")
			return
		case <-ticker.C:
			w.check(ctx, action)
		}
	}
}

func (w *Watcher) check(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger
	cur, err := w.opts.Detector(ctx, w.db)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("watch: version check failed", "error", err)
		}
		return
	}
	if cur == w.version.Load() {
		return
	}

	start := time.Now()
	if err := action(ctx); err != nil {
		log.Error("watch: reload failed", "error", err, "version", cur)
		return
	}
	w.version.Store(cur)
	w.reloads.Add(1)
	log.Info("watch: reload complete", "version", cur, "duration", time.Since(start))
}

// PragmaDataVersion uses PRAGMA data_version, which changes whenever another
// connection commits to the same database file. The value is per
// connection, so the polling handle should be limited to one connection.
func PragmaDataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// PragmaUserVersion uses PRAGMA user_version, an application-controlled
// integer that writers bump explicitly.
func PragmaUserVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}
