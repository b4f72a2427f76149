// Package app wires the waitlist subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the data sources and
// builds the fit checker, Run serves HTTP and watches data files, and
// Shutdown tears everything down in order.
//
// For testing, inject a catalog or doctrine store via functional options
// (WithCatalog, WithDoctrineStore). When an option is not provided, New
// creates the backends named in the config through the registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/config"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fitcheck"
	"github.com/MrWong99/waitlist/internal/health"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/internal/server"
	"github.com/MrWong99/waitlist/pkg/eve"
)

// shutdownGrace bounds how long in-flight requests may run once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	reg *config.Registry

	metrics        *observe.Metrics
	logLevel       *slog.LevelVar
	metricsHandler http.Handler
	metricsSet     bool
	reloadOpts     []catalog.ReloaderOption

	catalog   eve.Catalog
	doctrines doctrine.Store
	service   *fitcheck.Service
	handler   http.Handler

	// catalogMem and doctrineMem are set when the data lives in memory and
	// can be swapped from a yaml file.
	catalogMem  *catalog.MemStore
	doctrineMem *doctrine.MemStore

	reloader *catalog.Reloader

	// mu guards cfg, watched and addr after New returns.
	mu sync.Mutex
	// watched maps the absolute path of each watched data file to its
	// section name.
	watched map[string]string
	addr    net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCatalog injects an item catalog instead of creating one from config.
func WithCatalog(c eve.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithDoctrineStore injects a doctrine store instead of creating one from
// config. A [*doctrine.MemStore] is still filled from a yaml doctrine file.
func WithDoctrineStore(s doctrine.Store) Option {
	return func(a *App) { a.doctrines = s }
}

// WithMetrics sets the metrics every subsystem records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands New the level variable behind the process logger so
// config reloads can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithMetricsHandler replaces the /metrics handler. Pass nil to disable the
// route.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) {
		a.metricsHandler = h
		a.metricsSet = true
	}
}

// WithReloaderOptions passes options to the data file watcher. A
// [catalog.WithOnReload] callback is replaced by the App's own.
func WithReloaderOptions(opts ...catalog.ReloaderOption) Option {
	return func(a *App) { a.reloadOpts = append(a.reloadOpts, opts...) }
}

// New creates an App by opening the configured data sources and wiring the
// fit checker, health checks and HTTP routes. On error every resource opened
// so far is released.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:     cfg,
		reg:     reg,
		watched: make(map[string]string),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			for _, c := range a.closers {
				_ = c()
			}
		}
	}()

	// 1. Catalog
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// 2. Doctrine store
	if err := a.initDoctrines(ctx); err != nil {
		return nil, fmt.Errorf("app: init doctrines: %w", err)
	}

	// 3. Fit checker
	a.service = fitcheck.New(a.catalog, a.doctrines,
		fitcheck.WithMetrics(a.metrics),
		fitcheck.WithMatching(matching(cfg.Matching)),
	)

	// 4. Doctrine data that needs the fit checker to prepare
	if err := a.seedDoctrines(ctx); err != nil {
		return nil, fmt.Errorf("app: load doctrines: %w", err)
	}

	// 5. File watcher
	if err := a.initReloader(); err != nil {
		return nil, fmt.Errorf("app: init reloader: %w", err)
	}

	// 6. HTTP routes
	srvOpts := []server.Option{
		server.WithHealth(health.New(a.checkers()...)),
		server.WithMetrics(a.metrics),
	}
	if a.metricsSet {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	a.handler = server.New(a.service, srvOpts...).Handler()

	return a, nil
}

func (a *App) initCatalog(ctx context.Context) error {
	if a.catalog == nil {
		cat, closeFn, err := a.reg.CreateCatalog(ctx, a.cfg.Catalog)
		if err != nil {
			return err
		}
		a.catalog = cat
		a.closers = append(a.closers, func() error { closeFn(); return nil })
	}
	if mem, ok := a.catalog.(*catalog.MemStore); ok && a.cfg.Catalog.Source == config.SourceYAML {
		a.catalogMem = mem
	}
	if a.cfg.Catalog.Watch && a.catalogMem == nil {
		return errors.New("catalog.watch needs an in-memory yaml catalog")
	}
	return nil
}

func (a *App) initDoctrines(ctx context.Context) error {
	if a.doctrines == nil {
		store, closeFn, err := a.reg.CreateDoctrines(ctx, a.cfg.Doctrines)
		if err != nil {
			return err
		}
		a.doctrines = store
		a.closers = append(a.closers, func() error { closeFn(); return nil })
	}
	if mem, ok := a.doctrines.(*doctrine.MemStore); ok && a.cfg.Doctrines.Source == config.SourceYAML {
		a.doctrineMem = mem
	}
	if a.cfg.Doctrines.Watch && a.doctrineMem == nil {
		return errors.New("doctrines.watch needs an in-memory yaml doctrine store")
	}
	return nil
}

// seedDoctrines fills an in-memory doctrine store from its yaml file.
func (a *App) seedDoctrines(ctx context.Context) error {
	if a.doctrineMem == nil || a.cfg.Doctrines.Path == "" {
		return nil
	}
	if err := a.reloadDoctrines(a.cfg.Doctrines.Path)(ctx); err != nil {
		return err
	}
	docs, err := a.doctrineMem.Doctrines(ctx)
	if err != nil {
		return err
	}
	slog.Info("loaded doctrines", "path", a.cfg.Doctrines.Path, "count", len(docs))
	return nil
}

func (a *App) reloadDoctrines(path string) catalog.ReloadFunc {
	return doctrine.Reload(path, a.doctrineMem, a.service.Prepare)
}

// initReloader starts watching the yaml data files that asked for it.
func (a *App) initReloader() error {
	if !a.cfg.Catalog.Watch && !a.cfg.Doctrines.Watch {
		return nil
	}
	opts := append(a.reloadOpts, catalog.WithOnReload(a.onReload))
	r, err := catalog.NewReloader(opts...)
	if err != nil {
		return err
	}
	a.reloader = r
	a.closers = append(a.closers, r.Close)

	if a.cfg.Catalog.Watch {
		if err := a.watch("catalog", a.cfg.Catalog.Path, catalog.ReloadYAML(a.cfg.Catalog.Path, a.catalogMem)); err != nil {
			return err
		}
	}
	if a.cfg.Doctrines.Watch {
		if err := a.watch("doctrines", a.cfg.Doctrines.Path, a.reloadDoctrines(a.cfg.Doctrines.Path)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) watch(section, path string, fn catalog.ReloadFunc) error {
	if err := a.reloader.Watch(path, fn); err != nil {
		return err
	}
	a.mu.Lock()
	a.watched[absPath(path)] = section
	a.mu.Unlock()
	return nil
}

// absPath matches the keys the reloader reports paths under.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// onReload records the outcome of a file-triggered reload.
func (a *App) onReload(path string, err error) {
	a.mu.Lock()
	section := a.watched[path]
	a.mu.Unlock()
	a.metrics.RecordReload(context.Background(), section, reloadStatus(err))
}

// checkers builds the readiness checks for the configured backends.
func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.cfg.Catalog.ProbeTypeID != 0 {
		cs = append(cs, health.CatalogCheck(a.catalog, a.cfg.Catalog.ProbeTypeID))
	}
	if p, ok := a.catalog.(health.Pinger); ok {
		cs = append(cs, health.PingCheck("catalog_db", p))
	}
	cs = append(cs, health.DoctrineCheck(a.doctrines))
	if p, ok := a.doctrines.(health.Pinger); ok {
		cs = append(cs, health.PingCheck("doctrines_db", p))
	}
	return cs
}

// Service returns the fit checker.
func (a *App) Service() *fitcheck.Service { return a.service }

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the address Run is listening on, or nil before Run binds.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run serves HTTP on the configured address and processes data file events.
// It blocks until ctx is cancelled, then drains in-flight requests and
// returns ctx.Err(). A listener failure is returned immediately.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.reloader != nil {
		g.Go(func() error {
			a.reloader.Run(gctx)
			return nil
		})
	}

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the hot-reloadable part of a config change. Keys that
// need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(ctx context.Context, next *config.Config, d config.ConfigDiff) {
	a.mu.Lock()
	prev := a.cfg
	a.mu.Unlock()

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatchingChanged {
		a.service.SetMatching(matching(d.NewMatching))
		slog.Info("matching settings changed",
			"suggestions", d.NewMatching.Suggestions,
			"render_view", d.NewMatching.RenderView,
		)
	}
	if d.CatalogPathChanged {
		if err := a.swapCatalog(ctx, prev.Catalog.Path, next.Catalog); err != nil {
			slog.Warn("catalog path change not applied", "path", next.Catalog.Path, "err", err)
			next.Catalog.Path = prev.Catalog.Path
		}
	}
	if d.DoctrinesPathChanged {
		if err := a.swapDoctrines(ctx, prev.Doctrines.Path, next.Doctrines); err != nil {
			slog.Warn("doctrines path change not applied", "path", next.Doctrines.Path, "err", err)
			next.Doctrines.Path = prev.Doctrines.Path
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "keys", d.RestartRequired)
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
}

func (a *App) swapCatalog(ctx context.Context, oldPath string, cfg config.CatalogConfig) error {
	if a.catalogMem == nil {
		return errors.New("catalog is not an in-memory yaml catalog")
	}
	fn := catalog.ReloadYAML(cfg.Path, a.catalogMem)
	err := fn(ctx)
	a.metrics.RecordReload(ctx, "catalog", reloadStatus(err))
	if err != nil {
		return err
	}
	slog.Info("catalog reloaded", "path", cfg.Path, "items", a.catalogMem.Len())
	return a.rewatch("catalog", oldPath, cfg.Path, cfg.Watch, fn)
}

func (a *App) swapDoctrines(ctx context.Context, oldPath string, cfg config.DoctrinesConfig) error {
	if a.doctrineMem == nil {
		return errors.New("doctrine store is not an in-memory yaml store")
	}
	fn := a.reloadDoctrines(cfg.Path)
	err := fn(ctx)
	a.metrics.RecordReload(ctx, "doctrines", reloadStatus(err))
	if err != nil {
		return err
	}
	slog.Info("doctrines reloaded", "path", cfg.Path)
	return a.rewatch("doctrines", oldPath, cfg.Path, cfg.Watch, fn)
}

// rewatch moves a file watch from oldPath to newPath.
func (a *App) rewatch(section, oldPath, newPath string, watch bool, fn catalog.ReloadFunc) error {
	if !watch || a.reloader == nil {
		return nil
	}
	a.reloader.Unwatch(oldPath)
	a.mu.Lock()
	delete(a.watched, absPath(oldPath))
	a.mu.Unlock()
	return a.watch(section, newPath, fn)
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func matching(m config.MatchingConfig) fitcheck.Matching {
	return fitcheck.Matching{
		Suggestions:         m.Suggestions,
		SuggestionThreshold: m.SuggestionThreshold,
		RenderView:          m.RenderView,
	}
}

func reloadStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
