package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for rule tables that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported rule table format")

// TableEntry is the on-disk form of a StateRule.
type TableEntry struct {
	State           string `json:"state" yaml:"state"`
	Kind            string `json:"kind" yaml:"kind"`
	StartOffsetDays int    `json:"start_offset_days" yaml:"start_offset_days"`
	DurationDays    int    `json:"duration_days" yaml:"duration_days"`
}

// Table is a list of rule overrides.
type Table struct {
	Rules []TableEntry `json:"rules" yaml:"rules"`
}

// StateRules converts and validates the table entries.
func (t Table) StateRules() ([]StateRule, error) {
	out := make([]StateRule, 0, len(t.Rules))
	for i, e := range t.Rules {
		kind, err := ParseRuleKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		r := StateRule{
			State:           normalize(e.State),
			Kind:            kind,
			StartOffsetDays: e.StartOffsetDays,
			DurationDays:    e.DurationDays,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadTable reads a rule table from a JSON or YAML file.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodeTable(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// DecodeTable reads a rule table from r in the given format.
func DecodeTable(r io.Reader, format string) (Table, error) {
	var t Table
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&t); err != nil {
			return t, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&t); err != nil {
			return t, err
		}
	default:
		return t, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return t, nil
}

// LoadCatalog returns the default catalog with the overrides from path
// applied. An empty path returns the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	base := DefaultCatalog()
	if path == "" {
		return base, nil
	}
	t, err := LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("load rule table: %w", err)
	}
	overrides, err := t.StateRules()
	if err != nil {
		return nil, err
	}
	return base.With(overrides...)
}
