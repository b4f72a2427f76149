package doctrine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a doctrine YAML file.
//
// Example:
//
//	doctrines:
//	  - name: "Vindicator - Shield DPS"
//	    category: DPS
//	    priority: 10
//	    eft: |
//	      [Vindicator, Shield DPS]
//	      Magnetic Field Stabilizer II
//	      ...
//	substitution_groups:
//	  - name: "Faction LSE"
//	    base_item_id: 3841
//	    substitutes: [31930, 31932]
//	comparison_rules:
//	  - group_id: 38
//	    attribute_id: 72
//	    attribute_name: "Shield Bonus"
//	    higher_is_better: true
//
// A doctrine may list its Items directly or carry only EFT text; the latter
// is resolved against the item catalog by the [PrepareFunc] passed to
// [Import].
type File struct {
	Doctrines          []Fit               `yaml:"doctrines"`
	SubstitutionGroups []SubstitutionGroup `yaml:"substitution_groups"`
	ComparisonRules    []ComparisonRule    `yaml:"comparison_rules"`
}

// PrepareFunc completes a doctrine read from a file before it is stored,
// typically by parsing its EFT text into ShipTypeID and Items.
type PrepareFunc func(ctx context.Context, f Fit) (Fit, error)

// LoadFile reads and parses a doctrine YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("doctrine: open doctrine file %q: %w", path, err)
	}
	defer f.Close()

	df, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("doctrine: parse doctrine file %q: %w", path, err)
	}
	return df, nil
}

// LoadFromReader parses doctrine YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var df File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&df); err != nil {
		if errors.Is(err, io.EOF) {
			return &df, nil
		}
		return nil, fmt.Errorf("doctrine: decode yaml: %w", err)
	}
	return &df, nil
}

// Prepare runs prepare over every doctrine in the file that has EFT text but
// no Items. prepare may be nil, in which case the file is returned unchanged.
func (df *File) Prepare(ctx context.Context, prepare PrepareFunc) error {
	if prepare == nil {
		return nil
	}
	for i, f := range df.Doctrines {
		if len(f.Items) > 0 || f.EFT == "" {
			continue
		}
		prepared, err := prepare(ctx, f)
		if err != nil {
			return fmt.Errorf("doctrine: prepare %q: %w", f.Name, err)
		}
		df.Doctrines[i] = prepared
	}
	return nil
}

// Import prepares and stores every entry of df in store. Returns the number
// of doctrines imported. An error aborts the import and returns the count so
// far.
func Import(ctx context.Context, store Store, df *File, prepare PrepareFunc) (int, error) {
	if df == nil {
		return 0, fmt.Errorf("doctrine: file must not be nil")
	}
	if err := df.Prepare(ctx, prepare); err != nil {
		return 0, err
	}
	for _, g := range df.SubstitutionGroups {
		if _, err := store.UpsertSubstitutionGroup(ctx, g); err != nil {
			return 0, fmt.Errorf("doctrine: import: %w", err)
		}
	}
	for _, r := range df.ComparisonRules {
		if _, err := store.UpsertRule(ctx, r); err != nil {
			return 0, fmt.Errorf("doctrine: import: %w", err)
		}
	}
	n := 0
	for _, f := range df.Doctrines {
		if _, err := store.UpsertDoctrine(ctx, f); err != nil {
			return n, fmt.Errorf("doctrine: import: %w", err)
		}
		n++
	}
	return n, nil
}

// Reload returns a function that re-reads the doctrine file at path, prepares
// it and atomically replaces the contents of store. A file that fails to
// parse, prepare or validate leaves store untouched.
func Reload(path string, store *MemStore, prepare PrepareFunc) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		df, err := LoadFile(path)
		if err != nil {
			return err
		}
		if err := df.Prepare(ctx, prepare); err != nil {
			return err
		}
		return store.Replace(df.Doctrines, df.SubstitutionGroups, df.ComparisonRules)
	}
}
