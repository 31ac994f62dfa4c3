// Package scene reads the YAML lists of author-placed entities that ship with
// a scope, and assigns their stable save ids offline.
//
// A scene file looks like:
//
//	scope: Town
//	entities:
//	  - template: Props/Crate
//	    save_id: 6f1c0d0e5b2a9c3d4e5f6a7b
//	  - template: Props/Lever
//	    source: resources
//	    manual: true
package scene

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
	"github.com/l1jgo/savemaster/internal/save"
)

type Entity struct {
	Template string      `yaml:"template"`
	Source   data.Source `yaml:"source,omitempty"`
	SaveID   string      `yaml:"save_id,omitempty"`
	Manual   bool        `yaml:"manual,omitempty"`
}

type Scene struct {
	Scope    string   `yaml:"scope"`
	Entities []Entity `yaml:"entities"`
}

// Load reads one scene file.
func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	return &s, nil
}

// PathFor returns where the scene of scope lives under dir.
func PathFor(dir, scope string) string {
	return filepath.Join(dir, save.NormalizeScope(scope)+".yaml")
}

// Placer creates an author-placed entity. Implemented by world.State.
type Placer interface {
	Place(tpl *data.Template, sc event.Scope, saveID string, manual bool) (ecs.EntityID, *save.Saveable)
}

// Populate places every entity of s into sc. Entities without a save id or
// with an unknown template are skipped with a warning.
func Populate(s *Scene, res save.Resolver, p Placer, sc event.Scope, log *zap.Logger) int {
	if log == nil {
		log = zap.NewNop()
	}
	n := 0
	for i, e := range s.Entities {
		if e.SaveID == "" {
			log.Warn("scene entity without save id, run saveidgen",
				zap.String("scope", sc.Name), zap.Int("index", i), zap.String("template", e.Template))
			continue
		}
		src := e.Source
		if src == "" {
			src = data.SourceResources
		}
		tpl, ok := res.Resolve(src, e.Template)
		if !ok {
			log.Warn("scene entity with unknown template",
				zap.String("scope", sc.Name), zap.String("id", e.SaveID), zap.String("template", e.Template))
			continue
		}
		if _, sv := p.Place(tpl, sc, e.SaveID, e.Manual); sv != nil {
			n++
		}
	}
	return n
}
