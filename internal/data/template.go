package data

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source tells the resolver where a template comes from.
type Source string

const (
	SourceResources Source = "resources"
)

// ProviderSpec declares one piece of saveable state on a template.
type ProviderSpec struct {
	ID     string `yaml:"id"`
	Kind   string `yaml:"kind"`             // position, rotation, scale, visibility, counter, script
	Script string `yaml:"script,omitempty"` // scripts/providers/<script>.lua for kind=script
}

// Template describes an entity that can be instantiated at runtime.
type Template struct {
	Name     string     `yaml:"name"`
	Path     string     `yaml:"path"`
	Source   Source     `yaml:"source"`
	Saveable bool       `yaml:"saveable"` // ships with its own registry; otherwise providers are scanned on spawn
	LoadOnce bool       `yaml:"load_once"`
	Position [3]float64 `yaml:"position"`
	Rotation [4]float64 `yaml:"rotation"` // quaternion x, y, z, w
	Scale    [3]float64 `yaml:"scale"`
	Hidden   bool       `yaml:"hidden"`
	Counter  int        `yaml:"counter"`

	Providers []ProviderSpec `yaml:"providers"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// TemplateTable resolves templates by source and resource path.
type TemplateTable struct {
	bySource map[Source]map[string]*Template
	count    int
}

func NewTemplateTable() *TemplateTable {
	return &TemplateTable{bySource: make(map[Source]map[string]*Template)}
}

// LoadTemplateTable loads templates from a YAML file.
func LoadTemplateTable(path string) (*TemplateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	t, err := ParseTemplateTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	return t, nil
}

func ParseTemplateTable(raw []byte) (*TemplateTable, error) {
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	t := NewTemplateTable()
	for i := range f.Templates {
		if err := t.Add(f.Templates[i]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add registers a template. Missing fields get their defaults: source
// resources, path equal to name, identity rotation and unit scale.
func (t *TemplateTable) Add(tpl Template) error {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return fmt.Errorf("template without name")
	}
	if tpl.Path == "" {
		tpl.Path = tpl.Name
	}
	if tpl.Source == "" {
		tpl.Source = SourceResources
	}
	if tpl.Rotation == ([4]float64{}) {
		tpl.Rotation = [4]float64{0, 0, 0, 1}
	}
	if tpl.Scale == ([3]float64{}) {
		tpl.Scale = [3]float64{1, 1, 1}
	}
	for i, p := range tpl.Providers {
		if p.Kind == "" {
			return fmt.Errorf("template %s: provider %d has no kind", tpl.Name, i)
		}
		if p.Kind == "script" && p.Script == "" {
			return fmt.Errorf("template %s: script provider %q has no script", tpl.Name, p.ID)
		}
	}
	paths, ok := t.bySource[tpl.Source]
	if !ok {
		paths = make(map[string]*Template)
		t.bySource[tpl.Source] = paths
	}
	if _, dup := paths[tpl.Path]; !dup {
		t.count++
	}
	paths[tpl.Path] = &tpl
	return nil
}

// Resolve returns the template at path, or false if none is registered.
func (t *TemplateTable) Resolve(src Source, path string) (*Template, bool) {
	paths, ok := t.bySource[src]
	if !ok {
		return nil, false
	}
	tpl, ok := paths[path]
	return tpl, ok
}

// Count returns the total number of templates loaded.
func (t *TemplateTable) Count() int {
	return t.count
}
