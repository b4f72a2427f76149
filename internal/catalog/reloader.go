package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc re-reads one watched file into its in-memory store.
type ReloadFunc func(ctx context.Context) error

// Reloader watches YAML data files with fsnotify and invokes the registered
// [ReloadFunc] after a file changes. Bursts of events for the same file are
// coalesced by a debounce window.
//
// The parent directory of every file is watched rather than the file itself
// so that editors which save via rename-and-replace are picked up.
type Reloader struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	onReload func(path string, err error)

	mu      sync.Mutex
	targets map[string]ReloadFunc
	dirs    map[string]bool
}

// ReloaderOption configures a [Reloader].
type ReloaderOption func(*Reloader)

// WithDebounce sets the quiet period after the last event before a reload
// runs. Default: 250ms.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithReloadLogger sets the logger used for reload results.
func WithReloadLogger(l *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnReload registers a callback invoked after every reload attempt.
func WithOnReload(fn func(path string, err error)) ReloaderOption {
	return func(r *Reloader) { r.onReload = fn }
}

// NewReloader creates a [Reloader]. Call [Reloader.Watch] to register files
// and [Reloader.Run] to start processing events.
func NewReloader(opts ...ReloaderOption) (*Reloader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: create file watcher: %w", err)
	}
	r := &Reloader{
		watcher:  w,
		debounce: 250 * time.Millisecond,
		logger:   slog.Default(),
		targets:  make(map[string]ReloadFunc),
		dirs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Watch registers fn to run whenever path changes.
func (r *Reloader) Watch(path string, fn ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("catalog: watch %q: %w", path, err)
	}
	dir := filepath.Dir(abs)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirs[dir] {
		if err := r.watcher.Add(dir); err != nil {
			return fmt.Errorf("catalog: watch %q: %w", dir, err)
		}
		r.dirs[dir] = true
	}
	r.targets[abs] = fn
	return nil
}

// Unwatch stops reloading path. Its directory stays watched until
// [Reloader.Close].
func (r *Reloader) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.targets, abs)
	r.mu.Unlock()
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (r *Reloader) Run(ctx context.Context) {
	fire := make(chan string)
	done := make(chan struct{})
	pending := make(map[string]*time.Timer)
	defer func() {
		close(done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if r.target(path) == nil {
				continue
			}
			if t, ok := pending[path]; ok {
				t.Reset(r.debounce)
				continue
			}
			pending[path] = time.AfterFunc(r.debounce, func() {
				deliver(ctx, done, fire, path)
			})

		case path := <-fire:
			delete(pending, path)
			fn := r.target(path)
			if fn == nil {
				continue
			}
			err := fn(ctx)
			if err != nil {
				r.logger.Warn("data reload failed", "path", path, "err", err)
			} else {
				r.logger.Info("data reloaded", "path", path)
			}
			if r.onReload != nil {
				r.onReload(path, err)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("file watcher error", "err", err)
		}
	}
}

// deliver hands path to Run's loop. It gives up once Run has returned or ctx
// is done, so a timer that fires late never blocks.
func deliver(ctx context.Context, done <-chan struct{}, fire chan<- string, path string) bool {
	select {
	case fire <- path:
		return true
	case <-done:
	case <-ctx.Done():
	}
	return false
}

// Close stops the underlying watcher. Run returns shortly afterwards.
func (r *Reloader) Close() error {
	return r.watcher.Close()
}

func (r *Reloader) target(path string) ReloadFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targets[path]
}

// ReloadYAML returns a [ReloadFunc] that re-reads the catalog YAML file at
// path and atomically replaces the contents of store. A file that fails to
// parse or validate leaves store untouched.
func ReloadYAML(path string, store *MemStore) ReloadFunc {
	return func(ctx context.Context) error {
		cf, err := LoadFile(path)
		if err != nil {
			return err
		}
		return store.Replace(cf.Items)
	}
}
