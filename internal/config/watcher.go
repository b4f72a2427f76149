package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc receives the config in force before a reload, the config just
// loaded and what differs between them.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// Watcher polls the config file and hands meaningful edits to a
// [ChangeFunc]. A file that fails to parse or validate is rejected and the
// running config stays in force until the next good edit.
//
// Only the config file itself is polled; the yaml catalog and doctrine files
// it points at are watched by catalog.Reloader.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc
	onReject func(error)

	mu      sync.Mutex
	current *Config
	seen    version
}

// version identifies one state of the file on disk. mtime and size gate the
// read; sum decides whether the content really changed.
type version struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

func (v version) sameStat(info os.FileInfo) bool {
	return v.mtime.Equal(info.ModTime()) && v.size == info.Size()
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often [Watcher.Run] polls. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRejectHook registers fn to be called once for every edit that could
// not be loaded.
func WithRejectHook(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReject = fn }
}

// NewWatcher loads path and returns a [Watcher] holding it as the current
// config. Nothing is polled until [Watcher.Run] is called.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, v, err := readVersion(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, v
	return w, nil
}

// Current returns the config in force.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run calls [Watcher.Reload] every interval until ctx is cancelled. A failure
// is logged once until the error changes.
func (w *Watcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		_, err := w.Reload()
		switch {
		case err == nil:
			lastErr = ""
		case err.Error() != lastErr:
			lastErr = err.Error()
			slog.Warn("config edit rejected, keeping the running config", "path", w.path, "err", err)
		}
	}
}

// Reload checks the file once. When its content changed and loads cleanly,
// the new config becomes current and, if [Diff] reports a change, the
// [ChangeFunc] runs before Reload returns. The returned diff is empty for an
// untouched file or an edit that only moved comments or formatting.
func (w *Watcher) Reload() (ConfigDiff, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: %w", err)
	}

	w.mu.Lock()
	unchanged := w.seen.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return ConfigDiff{}, nil
	}

	cfg, v, err := readVersion(w.path)
	if err != nil {
		// Remember the broken file so it is reported once, not every poll.
		w.mu.Lock()
		w.seen.mtime, w.seen.size = info.ModTime(), info.Size()
		w.mu.Unlock()
		if w.onReject != nil {
			w.onReject(err)
		}
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	if v.sum == w.seen.sum {
		w.seen = v
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	old := w.current
	w.current, w.seen = cfg, v
	w.mu.Unlock()

	d := Diff(old, cfg)
	if !d.Changed() {
		return d, nil
	}
	slog.Info("config reloaded",
		"path", w.path,
		"log_level", cfg.Server.LogLevel,
		"matching_changed", d.MatchingChanged,
		"catalog_path_changed", d.CatalogPathChanged,
		"doctrines_path_changed", d.DoctrinesPathChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg, d)
	}
	return d, nil
}

// readVersion loads and validates the config at path along with the
// version it was read from.
func readVersion(path string) (*Config, version, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, version{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, version{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, version{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, version{}, err
	}
	return cfg, version{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
