// Package template describes the expected shape of incoming datasets and
// selects the definition that applies to a given file.
//
// Templates are YAML documents loaded once at startup by [LoadDir]. A
// [Registry] holds them for the lifetime of the process and [Registry.Resolve]
// picks the best match for a dataset key:
//
//	template_id: customers
//	version: 2
//	file_type: csv
//	file_pattern: "incoming/customers_.*\\.csv"
//	sheets:
//	  - name: customers
//	    required: true
//	    header_row: 1
//	    columns:
//	      id: {required: true, type: integer}
//	      name: {required: true}
//	      email: {required: false}
//	    expectations:
//	      - customers_basic
package template

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileType identifies the on-disk format of a dataset.
type FileType string

const (
	FileCSV   FileType = "csv"
	FileExcel FileType = "excel"
)

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	return t == FileCSV || t == FileExcel
}

// ColumnType is an advisory semantic type for a column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// ColumnDef describes a single declared column.
type ColumnDef struct {
	Required bool       `yaml:"required" json:"required"`
	Type     ColumnType `yaml:"type,omitempty" json:"type,omitempty"`
}

// Column pairs a column name with its definition.
type Column struct {
	Name string
	ColumnDef
}

// Columns is an ordered column mapping. Declaration order from the YAML
// document is preserved so parsers and generated suites follow it.
type Columns []Column

// UnmarshalYAML decodes a YAML mapping of name -> ColumnDef, keeping order
// and rejecting duplicate names.
func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: columns must be a mapping", node.Line)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	out := make(Columns, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		name := strings.TrimSpace(key.Value)
		if name == "" {
			return fmt.Errorf("line %d: empty column name", key.Line)
		}
		if seen[name] {
			return fmt.Errorf("line %d: duplicate column %q", key.Line, name)
		}
		seen[name] = true

		var def ColumnDef
		if err := val.Decode(&def); err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		out = append(out, Column{Name: name, ColumnDef: def})
	}

	*c = out
	return nil
}

// MarshalYAML writes the columns back as an ordered mapping.
func (c Columns) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range c {
		var val yaml.Node
		if err := val.Encode(col.ColumnDef); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: col.Name},
			&val,
		)
	}
	return node, nil
}

// Names returns the column names in declaration order.
func (c Columns) Names() []string {
	names := make([]string, len(c))
	for i, col := range c {
		names[i] = col.Name
	}
	return names
}

// Required returns the names of required columns in declaration order.
func (c Columns) Required() []string {
	var names []string
	for _, col := range c {
		if col.Required {
			names = append(names, col.Name)
		}
	}
	return names
}

// SheetDef describes one logical table within a dataset.
type SheetDef struct {
	Name         string   `yaml:"name" json:"name"`
	Required     bool     `yaml:"required" json:"required"`
	HeaderRow    int      `yaml:"header_row" json:"header_row"`
	Columns      Columns  `yaml:"columns,omitempty" json:"columns,omitempty"`
	Expectations []string `yaml:"expectations,omitempty" json:"expectations,omitempty"`
}

// HasColumns reports whether the sheet declares any columns. Sheets without
// declared columns skip column presence checks entirely.
func (s SheetDef) HasColumns() bool {
	return len(s.Columns) > 0
}

// TemplateDef is an immutable description of an expected file shape.
type TemplateDef struct {
	TemplateID  string     `yaml:"template_id" json:"template_id"`
	Version     int        `yaml:"version" json:"version"`
	FileType    FileType   `yaml:"file_type" json:"file_type"`
	FilePattern string     `yaml:"file_pattern" json:"file_pattern"`
	Sheets      []SheetDef `yaml:"sheets" json:"sheets"`

	pattern *regexp.Regexp
}

// Key returns "template_id@vN" for logs and error messages.
func (t *TemplateDef) Key() string {
	return fmt.Sprintf("%s@v%d", t.TemplateID, t.Version)
}

// Sheet returns the sheet definition with the given name.
func (t *TemplateDef) Sheet(name string) (SheetDef, bool) {
	for _, s := range t.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return SheetDef{}, false
}

// Matches reports whether filename matches the template's pattern at its start.
func (t *TemplateDef) Matches(filename string) bool {
	if t.pattern == nil {
		return false
	}
	return t.pattern.MatchString(filename)
}

// Validate checks the definition and compiles its file pattern.
// It is called by the loader; a template that fails validation is never
// registered.
func (t *TemplateDef) Validate() error {
	var errs []string

	if strings.TrimSpace(t.TemplateID) == "" {
		errs = append(errs, "template_id is required")
	}
	if t.Version <= 0 {
		errs = append(errs, fmt.Sprintf("version (%d) must be positive", t.Version))
	}
	if !t.FileType.Valid() {
		errs = append(errs, fmt.Sprintf("file_type (%q) must be one of: csv, excel", t.FileType))
	}

	if t.FilePattern == "" {
		errs = append(errs, "file_pattern is required")
	} else {
		re, err := compileAnchored(t.FilePattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("file_pattern: %v", err))
		} else {
			t.pattern = re
		}
	}

	if len(t.Sheets) == 0 {
		errs = append(errs, "at least one sheet is required")
	}

	names := make(map[string]bool, len(t.Sheets))
	for i := range t.Sheets {
		s := &t.Sheets[i]
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sheets[%d]: name is required", i))
			continue
		}
		if names[s.Name] {
			errs = append(errs, fmt.Sprintf("sheets[%d]: duplicate sheet name %q", i, s.Name))
		}
		names[s.Name] = true

		if s.HeaderRow == 0 {
			s.HeaderRow = 1
		}
		if s.HeaderRow < 0 {
			errs = append(errs, fmt.Sprintf("sheet %q: header_row (%d) must be positive", s.Name, s.HeaderRow))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid template:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// compileAnchored compiles pattern so that it only matches at the start of
// the input.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^(?:" + pattern + ")"
	}
	return regexp.Compile(pattern)
}
