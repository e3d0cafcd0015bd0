// Package allowlist loads the static registry of tables the engine may
// touch. Each entry names a schema, a table, and the configured primary
// key columns; nothing outside this file is ever queried or updated.
package allowlist

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// file is the on-disk YAML shape.
type file struct {
	Version int     `yaml:"version"`
	Tables  []entry `yaml:"tables"`
}

type entry struct {
	Schema string   `yaml:"schema"`
	Table  string   `yaml:"table"`
	PK     []string `yaml:"pk"`
}

// Registry is the immutable, case-insensitive allowlist.
type Registry struct {
	entries map[string][]string // SCHEMA.TABLE -> configured pk columns
}

// Parse decodes and validates allowlist YAML.
func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("allowlist: %w", err)
	}
	if f.Version != 1 {
		return nil, errors.New("allowlist: unsupported version")
	}
	if len(f.Tables) == 0 {
		return nil, errors.New("allowlist: no tables configured")
	}

	entries := make(map[string][]string, len(f.Tables))
	for _, e := range f.Tables {
		if e.Schema == "" || e.Table == "" {
			return nil, fmt.Errorf("allowlist: entry %q.%q is missing schema or table", e.Schema, e.Table)
		}
		if len(e.PK) == 0 {
			return nil, fmt.Errorf("allowlist: table %s.%s has no pk columns", e.Schema, e.Table)
		}
		key := registryKey(e.Schema, e.Table)
		if _, exists := entries[key]; exists {
			return nil, fmt.Errorf("allowlist: duplicate entry for %s", key)
		}
		pk := make([]string, len(e.PK))
		for i, col := range e.PK {
			pk[i] = strings.ToUpper(strings.TrimSpace(col))
		}
		entries[key] = pk
	}

	return &Registry{entries: entries}, nil
}

// Load reads and parses an allowlist file.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("allowlist: %w", err)
	}
	return Parse(b)
}

// IsTableAllowed reports whether (schema, table) is allowlisted.
// Comparison is case-insensitive.
func (r *Registry) IsTableAllowed(schema, table string) bool {
	_, ok := r.entries[registryKey(schema, table)]
	return ok
}

// PKColumns returns the configured primary key columns for a table, or nil
// if the table is not allowlisted. The returned slice is a copy.
func (r *Registry) PKColumns(schema, table string) []string {
	pk, ok := r.entries[registryKey(schema, table)]
	if !ok {
		return nil
	}
	return append([]string(nil), pk...)
}

// Tables returns the allowlisted table keys, for startup logging.
func (r *Registry) Tables() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

func registryKey(schema, table string) string {
	return strings.ToUpper(strings.TrimSpace(schema)) + "." + strings.ToUpper(strings.TrimSpace(table))
}
