// Package expectation is the built-in rule engine behind quality.Evaluator.
//
// Suites are stored one per file in a directory, as YAML or JSON:
//
//	expectation_suite_name: customers_basic
//	expectations:
//	  - expectation_type: expect_column_to_exist
//	    kwargs: {column: id}
//	  - expectation_type: expect_column_values_to_not_be_null
//	    kwargs: {column: id, mostly: 0.95}
//	  - expectation_type: expect_table_row_count_to_be_between
//	    kwargs: {min_value: 5}
package expectation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/dqgate/internal/quality"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// ErrSuiteNotFound is returned when no suite file exists for a name.
var ErrSuiteNotFound = errors.New("expectation suite not found")

// ErrUnknownExpectation is returned when a suite file names an
// expectation_type with no built-in implementation.
var ErrUnknownExpectation = errors.New("unknown expectation type")

// Expectation is one configured rule.
type Expectation struct {
	Type   string         `yaml:"expectation_type" json:"expectation_type"`
	Kwargs map[string]any `yaml:"kwargs" json:"kwargs"`
}

// Column returns the "column" kwarg, if any.
func (e Expectation) Column() string {
	s, _ := e.Kwargs["column"].(string)
	return s
}

// Suite is a named, ordered collection of expectations.
type Suite struct {
	Name         string        `yaml:"expectation_suite_name" json:"expectation_suite_name"`
	Expectations []Expectation `yaml:"expectations" json:"expectations"`
}

// Columns returns the distinct columns referenced by the suite, in first-use
// order.
func (s Suite) Columns() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.Expectations {
		if c := e.Column(); c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Store reads and writes suites in a directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

var suiteExts = []string{".yaml", ".yml", ".json"}

// Load reads the suite called name.
func (s *Store) Load(name string) (Suite, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Suite{}, fmt.Errorf("%w: invalid name %q", ErrSuiteNotFound, name)
	}

	for _, ext := range suiteExts {
		data, err := os.ReadFile(filepath.Join(s.dir, name+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Suite{}, fmt.Errorf("read suite %q: %w", name, err)
		}

		var suite Suite
		if err := yaml.Unmarshal(data, &suite); err != nil {
			return Suite{}, fmt.Errorf("parse suite %q: %w", name, err)
		}
		if suite.Name == "" {
			suite.Name = name
		}
		for i, e := range suite.Expectations {
			if e.Type == "" {
				return Suite{}, fmt.Errorf("suite %q: expectations[%d]: expectation_type is required", name, i)
			}
			if !Supported(e.Type) {
				return Suite{}, fmt.Errorf("suite %q: expectations[%d]: %w %q", name, i, ErrUnknownExpectation, e.Type)
			}
		}
		return suite, nil
	}

	return Suite{}, fmt.Errorf("%w: %q", ErrSuiteNotFound, name)
}

// Save writes suite as <dir>/<name>.yaml, replacing any existing file.
func (s *Store) Save(suite Suite) error {
	if suite.Name == "" {
		return errors.New("suite name is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create suite dir: %w", err)
	}

	data, err := yaml.Marshal(suite)
	if err != nil {
		return fmt.Errorf("encode suite: %w", err)
	}

	path := filepath.Join(s.dir, suite.Name+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write suite: %w", err)
	}
	return os.Rename(tmp, path)
}

// List returns the names of all stored suites, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read suite dir: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, known := range suiteExts {
			if ext == known {
				name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Generate builds a starter suite from a sheet definition: every declared
// column must exist, required columns must not be null, and the sheet must
// have at least one row.
func Generate(name string, sheet template.SheetDef) Suite {
	suite := Suite{Name: name}

	for _, col := range sheet.Columns {
		suite.Expectations = append(suite.Expectations, Expectation{
			Type:   ExpectColumnToExist,
			Kwargs: map[string]any{"column": col.Name},
		})
		if col.Required {
			suite.Expectations = append(suite.Expectations, Expectation{
				Type:   ExpectColumnValuesToNotBeNull,
				Kwargs: map[string]any{"column": col.Name},
			})
		}
	}

	suite.Expectations = append(suite.Expectations, Expectation{
		Type:   ExpectTableRowCountToBeGreaterThan,
		Kwargs: map[string]any{"value": 0},
	})
	return suite
}

// Prune drops the expectations whose outcome failed. outcomes must come from
// evaluating suite, in order. The dropped expectations are returned so the
// caller can report them.
func Prune(suite Suite, outcomes []quality.RuleOutcome) (Suite, []Expectation) {
	kept := Suite{Name: suite.Name}
	var dropped []Expectation
	for i, e := range suite.Expectations {
		if i < len(outcomes) && !outcomes[i].Success {
			dropped = append(dropped, e)
			continue
		}
		kept.Expectations = append(kept.Expectations, e)
	}
	return kept, dropped
}
