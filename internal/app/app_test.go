package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/waitlist/internal/app"
	"github.com/MrWong99/waitlist/internal/catalog"
	"github.com/MrWong99/waitlist/internal/config"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/observe"
	"github.com/MrWong99/waitlist/pkg/eve"
)

const catalogYAML = `
items:
  - id: 587
    name: Rifter
    group_id: 25
    category_id: 6
    hull: {high: 4, mid: 3, low: 3, rig: 3}
  - id: 2873
    name: 200mm AutoCannon II
    group_id: 55
    category_id: 7
    slot: high
  - id: 3244
    name: Warp Disruptor II
    group_id: 52
    category_id: 7
    slot: mid
`

const doctrinesYAML = `
doctrines:
  - name: Rifter Tackle
    category: DPS
    priority: 10
    eft: |
      [Rifter, Rifter Tackle]
      200mm AutoCannon II
      200mm AutoCannon II

      Warp Disruptor II
`

const twoDoctrinesYAML = doctrinesYAML + `
  - name: Rifter Brawler
    category: DPS
    eft: |
      [Rifter, Rifter Brawler]
      200mm AutoCannon II
      200mm AutoCannon II
      200mm AutoCannon II
`

const submittedEFT = `[Rifter, mine]
200mm AutoCannon II
200mm AutoCannon II

Warp Disruptor II
`

// writeData writes the catalog and doctrine files into a temp dir and
// returns a config reading them.
func writeData(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	catPath := filepath.Join(dir, "catalog.yaml")
	docPath := filepath.Join(dir, "doctrines.yaml")
	writeFile(t, catPath, catalogYAML)
	writeFile(t, docPath, doctrinesYAML)
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Catalog: config.CatalogConfig{
			DataSource:  config.DataSource{Source: config.SourceYAML, Path: catPath},
			ProbeTypeID: 587,
		},
		Doctrines: config.DoctrinesConfig{
			DataSource: config.DataSource{Source: config.SourceYAML, Path: docPath},
		},
		Matching: config.MatchingConfig{Suggestions: 3},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func builtinRegistry() *config.Registry {
	reg := config.NewRegistry()
	app.RegisterBuiltinSources(reg, nil)
	return reg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(nil),
	}, opts...)
	a, err := app.New(context.Background(), cfg, builtinRegistry(), opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_FromYAMLSources(t *testing.T) {
	t.Parallel()

	a := newApp(t, writeData(t))
	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/fits/check", "text/plain", strings.NewReader(submittedEFT))
	if err != nil {
		t.Fatalf("POST check: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST check: got %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"status":"APPROVED"`) {
		t.Errorf("POST check: want approved verdict, got %s", body)
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET readyz: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET readyz: got %d, body %s", resp.StatusCode, body)
	}
	for _, name := range []string{"catalog", "doctrines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("GET readyz: want check %q in %s", name, body)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("source not registered", func(t *testing.T) {
		t.Parallel()
		_, err := app.New(context.Background(), writeData(t), config.NewRegistry(), app.WithMetrics(testMetrics(t)))
		if !errors.Is(err, config.ErrSourceNotRegistered) {
			t.Errorf("got %v, want ErrSourceNotRegistered", err)
		}
	})

	t.Run("missing catalog file", func(t *testing.T) {
		t.Parallel()
		cfg := writeData(t)
		cfg.Catalog.Path = filepath.Join(t.TempDir(), "absent.yaml")
		if _, err := app.New(context.Background(), cfg, builtinRegistry(), app.WithMetrics(testMetrics(t))); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("doctrine with unknown item", func(t *testing.T) {
		t.Parallel()
		cfg := writeData(t)
		writeFile(t, cfg.Doctrines.Path, "doctrines:\n  - name: x\n    eft: |\n      [Rifter, x]\n      Gyrostabilizer II\n")
		if _, err := app.New(context.Background(), cfg, builtinRegistry(), app.WithMetrics(testMetrics(t))); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("watch without in-memory catalog", func(t *testing.T) {
		t.Parallel()
		cfg := writeData(t)
		cfg.Catalog.Watch = true
		cat := &stubCatalog{}
		if _, err := app.New(context.Background(), cfg, builtinRegistry(), app.WithMetrics(testMetrics(t)), app.WithCatalog(cat)); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// stubCatalog is an eve.Catalog that knows no items.
type stubCatalog struct{}

func (stubCatalog) ItemByName(context.Context, string) (eve.Item, error) {
	return eve.Item{}, eve.ErrNotFound
}

func (stubCatalog) ItemByID(context.Context, eve.TypeID) (eve.Item, error) {
	return eve.Item{}, eve.ErrNotFound
}

func (stubCatalog) ItemsByID(context.Context, []eve.TypeID) (map[eve.TypeID]eve.Item, error) {
	return map[eve.TypeID]eve.Item{}, nil
}

func TestNew_InjectedStores(t *testing.T) {
	t.Parallel()

	cfg := writeData(t)
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	store := doctrine.NewMemStore()

	// The registry is never consulted for injected stores.
	a, err := app.New(context.Background(), cfg, config.NewRegistry(),
		app.WithMetrics(testMetrics(t)),
		app.WithCatalog(cat),
		app.WithDoctrineStore(store),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer a.Shutdown(context.Background())

	docs, err := store.Doctrines(context.Background())
	if err != nil {
		t.Fatalf("Doctrines: %v", err)
	}
	if len(docs) != 1 || docs[0].ShipTypeID != 587 {
		t.Errorf("injected store: got %+v, want the yaml doctrine", docs)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	cfg := writeData(t)
	lv := new(slog.LevelVar)
	a := newApp(t, cfg, app.WithLogLevel(lv))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Matching = config.MatchingConfig{Suggestions: 5, RenderView: true}
	next.Doctrines.Path = filepath.Join(t.TempDir(), "more.yaml")
	writeFile(t, next.Doctrines.Path, twoDoctrinesYAML)
	next.Server.ListenAddr = ":9999"

	d := config.Diff(cfg, &next)
	a.ApplyConfig(context.Background(), &next, d)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level: got %v, want debug", lv.Level())
	}
	if m := a.Service().Matching(); m.Suggestions != 5 || !m.RenderView {
		t.Errorf("matching: got %+v", m)
	}

	res, err := a.Service().Check(context.Background(), submittedEFT)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.View == nil {
		t.Error("Check: render_view is on, want a view")
	}
	if n := len(res.Verdict.Rejections); n != 0 || res.Verdict.Doctrine == nil {
		t.Errorf("Check: got %+v, want an approved verdict", res.Verdict)
	}
}

func TestApp_ApplyConfig_BadDoctrinePathKeepsData(t *testing.T) {
	t.Parallel()

	cfg := writeData(t)
	a := newApp(t, cfg)

	next := *cfg
	next.Doctrines.Path = filepath.Join(t.TempDir(), "absent.yaml")
	a.ApplyConfig(context.Background(), &next, config.Diff(cfg, &next))

	if next.Doctrines.Path != cfg.Doctrines.Path {
		t.Errorf("path: got %q, want the old path kept", next.Doctrines.Path)
	}
	res, err := a.Service().Check(context.Background(), submittedEFT)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Verdict.Approved() {
		t.Errorf("Check: got %+v, want the old doctrines still served", res.Verdict)
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	reg := builtinRegistry()
	reg.RegisterCatalog(config.SourcePostgres, func(ctx context.Context, cfg config.CatalogConfig) (eve.Catalog, config.CloseFunc, error) {
		return stubCatalog{}, func() { closed.Add(1) }, nil
	})

	cfg := writeData(t)
	cfg.Catalog.DataSource = config.DataSource{Source: config.SourcePostgres, PostgresDSN: "postgres://unused"}
	cfg.Catalog.ProbeTypeID = 0
	cfg.Doctrines.Path = ""

	a, err := app.New(context.Background(), cfg, reg, app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
	if got := closed.Load(); got != 1 {
		t.Errorf("catalog close count = %d, want 1", got)
	}
}

func TestApp_RunServesAndReloads(t *testing.T) {
	t.Parallel()

	cfg := writeData(t)
	cfg.Doctrines.Watch = true
	a := newApp(t, cfg, app.WithReloaderOptions(catalog.WithDebounce(20*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for a.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Run did not bind within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET healthz: got %d, want 200", resp.StatusCode)
	}

	// Run may still be adding the watch when Addr is set; rewrite until the
	// second doctrine shows up.
	for {
		writeFile(t, cfg.Doctrines.Path, twoDoctrinesYAML)
		res, err := a.Service().Check(context.Background(), "[Rifter, x]\n200mm AutoCannon II\n200mm AutoCannon II\n200mm AutoCannon II\n")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if res.Verdict.Approved() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the doctrine file reload")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}
}
