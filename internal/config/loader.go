package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Data sources
	errs = append(errs, validateSource("catalog", cfg.Catalog.DataSource, SourceYAML, SourcePostgres, SourceSDE)...)
	errs = append(errs, validateSource("doctrines", cfg.Doctrines.DataSource, SourceYAML, SourcePostgres)...)
	if cfg.Catalog.ProbeTypeID < 0 {
		errs = append(errs, fmt.Errorf("catalog.probe_type_id %d must not be negative", cfg.Catalog.ProbeTypeID))
	}

	// Matching
	if cfg.Matching.Suggestions < 0 {
		errs = append(errs, fmt.Errorf("matching.suggestions %d must not be negative", cfg.Matching.Suggestions))
	}
	if t := cfg.Matching.SuggestionThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.suggestion_threshold %.2f is out of range [0, 1]", t))
	}
	if cfg.Matching.SuggestionThreshold != 0 && cfg.Matching.Suggestions == 0 {
		slog.Warn("matching.suggestion_threshold is set but matching.suggestions is 0; no suggestions will be offered")
	}

	return errors.Join(errs...)
}

// validateSource checks one data-source section. An empty section is valid;
// commands that need the data report the missing source themselves.
func validateSource(section string, ds DataSource, allowed ...Source) []error {
	if ds.Source == "" {
		if ds.Path != "" || ds.PostgresDSN != "" {
			return []error{fmt.Errorf("%s.source is required when path or postgres_dsn is set", section)}
		}
		return nil
	}

	var errs []error
	if !ds.Source.IsValid() || !slices.Contains(allowed, ds.Source) {
		errs = append(errs, fmt.Errorf("%s.source %q is invalid; valid values: %v", section, ds.Source, allowed))
		return errs
	}

	switch ds.Source {
	case SourceYAML, SourceSDE:
		if ds.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required when source is %s", section, ds.Source))
		}
		if ds.PostgresDSN != "" {
			slog.Warn("postgres_dsn is ignored for file sources", "section", section, "source", ds.Source)
		}
	case SourcePostgres:
		if ds.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s.postgres_dsn is required when source is postgres", section))
		}
	}
	if ds.Watch && ds.Source != SourceYAML {
		errs = append(errs, fmt.Errorf("%s.watch is only supported for the yaml source", section))
	}
	if ds.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("%s.breaker.max_failures %d must not be negative", section, ds.Breaker.MaxFailures))
	}
	if ds.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s.breaker.reset_timeout %v must not be negative", section, ds.Breaker.ResetTimeout))
	}
	return errs
}
