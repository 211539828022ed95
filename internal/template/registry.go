package template

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds every loaded template in registration order.
// It is built once at startup and shared read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	templates []*TemplateDef
}

// NewRegistry creates a registry holding defs in the given order.
// Each definition is validated; the first invalid one aborts construction.
func NewRegistry(defs ...TemplateDef) (*Registry, error) {
	r := &Registry{}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, in lexical filename
// order, and returns a registry containing them. Any malformed definition
// fails the whole load so a bad template never reaches production traffic.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	r := &Registry{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filepath.Base(path), err)
		}

		def, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", filepath.Base(path), err)
		}

		if err := r.Register(def); err != nil {
			return nil, fmt.Errorf("template %s: %w", filepath.Base(path), err)
		}
	}

	return r, nil
}

// Decode parses a single YAML template document. Unknown fields are
// rejected to catch typos such as "header_rows".
func Decode(data []byte) (TemplateDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def TemplateDef
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return TemplateDef{}, errors.New("empty template document")
		}
		return TemplateDef{}, fmt.Errorf("parse yaml: %w", err)
	}
	return def, nil
}

// Register validates def and appends it to the registry.
// Duplicate (template_id, version) pairs are allowed; the resolver decides
// between them at match time.
func (r *Registry) Register(def TemplateDef) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, &def)
	return nil
}

// All returns the registered templates in registration order.
func (r *Registry) All() []*TemplateDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TemplateDef, len(r.templates))
	copy(out, r.templates)
	return out
}

// Get returns the highest registered version of templateID.
func (r *Registry) Get(templateID string) (*TemplateDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *TemplateDef
	for _, t := range r.templates {
		if t.TemplateID != templateID {
			continue
		}
		if best == nil || t.Version > best.Version {
			best = t
		}
	}
	return best, best != nil
}

// Count returns the number of registered templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
