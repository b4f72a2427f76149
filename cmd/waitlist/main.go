// Command waitlist checks EVE Online ship fits against fleet doctrines.
//
// Usage:
//
//	waitlist [-config waitlist.yaml] serve
//	waitlist [-config waitlist.yaml] check <fit.txt | ->
//	waitlist [-config waitlist.yaml] import-doctrines <doctrines.yaml>
//
// serve is the default command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/waitlist/internal/app"
	"github.com/MrWong99/waitlist/internal/config"
	"github.com/MrWong99/waitlist/internal/observe"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitPending = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "waitlist.yaml", "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	cmd, args := "serve", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "waitlist: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "waitlist: %v\n", err)
		}
		return exitError
	}

	lv := new(slog.LevelVar)
	lv.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(lv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitError
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := prov.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	app.RegisterBuiltinSources(reg, prov.Metrics())

	switch cmd {
	case "serve":
		return serve(ctx, *configPath, cfg, reg, lv, prov)
	case "check":
		if len(args) != 1 {
			usage()
			return exitUsage
		}
		return check(ctx, cfg, reg, args[0])
	case "import-doctrines":
		if len(args) != 1 {
			usage()
			return exitUsage
		}
		return importDoctrines(ctx, cfg, reg, args[0])
	default:
		fmt.Fprintf(os.Stderr, "waitlist: unknown command %q\n", cmd)
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: waitlist [flags] [command]

Commands:
  serve                     run the HTTP API (default)
  check <file|->            check one EFT fit and print the result as JSON
  import-doctrines <file>   import a doctrine YAML file into the doctrine store

Flags:
`)
	flag.PrintDefaults()
}

// serve runs the HTTP API until SIGINT or SIGTERM.
func serve(ctx context.Context, configPath string, cfg *config.Config, reg *config.Registry, lv *slog.LevelVar, prov *observe.Provider) int {
	slog.Info("waitlist starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"catalog", cfg.Catalog.Source,
		"doctrines", cfg.Doctrines.Source,
	)

	application, err := app.New(ctx, cfg, reg,
		app.WithLogLevel(lv),
		app.WithMetrics(prov.Metrics()),
		app.WithMetricsHandler(prov.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}

	m := prov.Metrics()
	watcher, err := config.NewWatcher(configPath,
		func(_, next *config.Config, d config.ConfigDiff) {
			application.ApplyConfig(ctx, next, d)
			m.RecordReload(ctx, "config", "ok")
		},
		config.WithRejectHook(func(error) { m.RecordReload(ctx, "config", "error") }),
	)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go watcher.Run(ctx)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitError
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return exitError
	}
	slog.Info("goodbye")
	return exitOK
}

// newLogger creates a text logger on stderr whose level follows lv.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
