package config

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes are reported individually; everything else is
// collected in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MatchingChanged is true when any matching setting changed.
	MatchingChanged bool
	NewMatching     MatchingConfig

	// CatalogPathChanged and DoctrinesPathChanged report a new yaml data
	// file. The file can be swapped without a restart.
	CatalogPathChanged   bool
	DoctrinesPathChanged bool

	// RestartRequired lists the config keys whose change only takes effect
	// after a restart (e.g. "server.listen_addr").
	RestartRequired []string
}

// Changed reports whether anything differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MatchingChanged || d.CatalogPathChanged ||
		d.DoctrinesPathChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Matching
	if old.Matching != new.Matching {
		d.MatchingChanged = true
		d.NewMatching = new.Matching
	}

	// Server
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}

	// Data sources
	var restart []string
	d.CatalogPathChanged, restart = diffSource("catalog", old.Catalog.DataSource, new.Catalog.DataSource)
	d.RestartRequired = append(d.RestartRequired, restart...)
	if old.Catalog.ProbeTypeID != new.Catalog.ProbeTypeID {
		d.RestartRequired = append(d.RestartRequired, "catalog.probe_type_id")
	}
	d.DoctrinesPathChanged, restart = diffSource("doctrines", old.Doctrines.DataSource, new.Doctrines.DataSource)
	d.RestartRequired = append(d.RestartRequired, restart...)

	return d
}

// diffSource compares one data-source section. A path change is hot when
// both sides use the yaml source; any other change needs a restart.
func diffSource(section string, old, new DataSource) (pathChanged bool, restart []string) {
	if old.Source != new.Source {
		return false, []string{section + ".source"}
	}
	if old.Path != new.Path {
		if new.Source == SourceYAML {
			pathChanged = true
		} else {
			restart = append(restart, section+".path")
		}
	}
	if old.PostgresDSN != new.PostgresDSN {
		restart = append(restart, section+".postgres_dsn")
	}
	if old.Watch != new.Watch {
		restart = append(restart, section+".watch")
	}
	if old.Breaker != new.Breaker {
		restart = append(restart, section+".breaker")
	}
	return pathChanged, restart
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
