package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/waitlist/internal/app"
	"github.com/MrWong99/waitlist/internal/config"
	"github.com/MrWong99/waitlist/internal/doctrine"
	"github.com/MrWong99/waitlist/internal/fitcheck"
)

// check prints the result of checking the fit in path ("-" for stdin).
// The exit code is exitOK for an approved fit and exitPending otherwise.
func check(ctx context.Context, cfg *config.Config, reg *config.Registry, path string) int {
	raw, err := readInput(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waitlist: %v\n", err)
		return exitError
	}

	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}
	defer a.Shutdown(context.Background())

	res, err := a.Service().Check(ctx, raw, fitcheck.IncludeView())
	if err != nil {
		fmt.Fprintf(os.Stderr, "waitlist: %v\n", err)
		return exitError
	}
	if err := writeResult(os.Stdout, res); err != nil {
		fmt.Fprintf(os.Stderr, "waitlist: %v\n", err)
		return exitError
	}
	if !res.Verdict.Approved() {
		return exitPending
	}
	return exitOK
}

// importDoctrines loads a doctrine file, parses each doctrine's EFT text
// against the catalog and stores the result.
func importDoctrines(ctx context.Context, cfg *config.Config, reg *config.Registry, path string) int {
	if cfg.Doctrines.Source == config.SourceYAML {
		slog.Warn("doctrines use the yaml source; imported doctrines live only for this run",
			"path", cfg.Doctrines.Path)
	}

	df, err := doctrine.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waitlist: %v\n", err)
		return exitError
	}

	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}
	defer a.Shutdown(context.Background())

	n, err := a.Service().ImportFile(ctx, df)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waitlist: imported %d doctrines before failing: %v\n", n, err)
		return exitError
	}
	fmt.Fprintf(os.Stdout, "imported %d doctrines, %d substitution groups, %d comparison rules\n",
		n, len(df.SubstitutionGroups), len(df.ComparisonRules))
	return exitOK
}

func readInput(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeResult(w io.Writer, res *fitcheck.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
