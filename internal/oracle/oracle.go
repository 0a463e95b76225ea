// Package oracle provides the static table of expected transfer sizes.
package oracle

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/xferwatch/core"
)

// Entry maps a URL substring to an expected total size in bytes.
type Entry struct {
	Pattern string `yaml:"pattern"`
	Size    int64  `yaml:"size"`
}

// Table is an ordered, read-only set of entries. The zero value and a nil
// *Table are empty tables.
type Table struct {
	entries []Entry
}

// New returns a table matching entries in the given order.
func New(entries ...Entry) (*Table, error) {
	t := &Table{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		if e.Pattern == "" {
			return nil, fmt.Errorf("%w: empty pattern", core.ErrInvalidOracle)
		}
		if e.Size <= 0 {
			return nil, fmt.Errorf("%w: size for %q must be positive, got %d", core.ErrInvalidOracle, e.Pattern, e.Size)
		}
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Default returns the table for the default markers: the primary data
// payload and the compiled code payload.
func Default() *Table {
	return &Table{entries: []Entry{
		{Pattern: ".data.br", Size: 30978273},
		{Pattern: ".wasm.br", Size: 56036135},
	}}
}

// FromMap builds a table from a pattern->size map. Patterns are ordered
// lexically so lookups are deterministic.
func FromMap(sizes map[string]int64) (*Table, error) {
	patterns := make([]string, 0, len(sizes))
	for p := range sizes {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	entries := make([]Entry, 0, len(patterns))
	for _, p := range patterns {
		entries = append(entries, Entry{Pattern: p, Size: sizes[p]})
	}
	return New(entries...)
}

// file is the on-disk layout read by LoadFile.
//
//	sizes:
//	  .data.br: 30978273
//	  .wasm.br: 56036135
type file struct {
	Sizes map[string]int64 `yaml:"sizes"`
}

// LoadFile reads a YAML size table.
func LoadFile(path string) (*Table, error) {
	//nolint:gosec // G304: path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read size table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML size table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidOracle, err)
	}
	return FromMap(f.Sizes)
}

// Lookup returns the expected size of the first entry whose pattern is a
// substring of url.
func (t *Table) Lookup(url string) (int64, bool) {
	if t == nil {
		return 0, false
	}
	for _, e := range t.entries {
		if strings.Contains(url, e.Pattern) {
			return e.Size, true
		}
	}
	return 0, false
}

// Entries returns a copy of the table entries in lookup order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
