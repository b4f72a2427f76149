package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/waitlist/pkg/eve"
)

// File is the top-level structure of a catalog YAML file.
//
// Example:
//
//	items:
//	  - id: 587
//	    name: Rifter
//	    group_id: 25
//	    category_id: 6
//	    hull: {high: 4, mid: 3, low: 3, rig: 3}
//	  - id: 3841
//	    name: Large Shield Extender II
//	    group_id: 38
//	    category_id: 7
//	    slot: mid
//	    attributes: {72: 2600}
type File struct {
	Items []eve.Item `yaml:"items"`
}

// LoadFile reads and parses a catalog YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open catalog file %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse catalog file %q: %w", path, err)
	}
	return cf, nil
}

// LoadFromReader parses catalog YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return &cf, nil
		}
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return &cf, nil
}

// Upserter is implemented by writable catalogs.
type Upserter interface {
	Upsert(ctx context.Context, items ...eve.Item) error
}

// Import stores every item of cf in dst and returns the number imported.
func Import(ctx context.Context, dst Upserter, cf *File) (int, error) {
	if cf == nil {
		return 0, errors.New("catalog: file must not be nil")
	}
	if err := dst.Upsert(ctx, cf.Items...); err != nil {
		return 0, fmt.Errorf("catalog: import: %w", err)
	}
	return len(cf.Items), nil
}

// Open loads a catalog YAML file into a new [MemStore].
func Open(path string) (*MemStore, error) {
	cf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &MemStore{}
	if _, err := Import(context.Background(), s, cf); err != nil {
		return nil, err
	}
	return s, nil
}
