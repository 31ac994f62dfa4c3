package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/l1jgo/savemaster/internal/core/ecs"
	"github.com/l1jgo/savemaster/internal/core/event"
	"github.com/l1jgo/savemaster/internal/data"
	"github.com/l1jgo/savemaster/internal/save"
)

const townScene = `# shipped with the town
scope: Town
entities:
  - template: Props/Crate
    save_id: keep-me
  - template: Props/Crate # needs an id
  - template: Props/Lever
    save_id: keep-me
    manual: true
`

func parse(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return &doc
}

func counter() IDFunc {
	n := 0
	return func(_, _ string, _, _ int) string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestAssignIDs_FillsMissingAndDuplicates(t *testing.T) {
	doc := parse(t, townScene)
	res, err := AssignIDs(doc, counter())
	require.NoError(t, err)
	assert.Equal(t, Result{Assigned: 1, Duplicates: 1}, res)

	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), "# shipped with the town")
	assert.Contains(t, string(out), "# needs an id")

	var s Scene
	require.NoError(t, yaml.Unmarshal(out, &s))
	require.Len(t, s.Entities, 3)
	assert.Equal(t, "keep-me", s.Entities[0].SaveID)
	assert.Equal(t, "gen-1", s.Entities[1].SaveID)
	assert.Equal(t, "gen-2", s.Entities[2].SaveID)
	assert.True(t, s.Entities[2].Manual)

	// a second run changes nothing
	res, err = AssignIDs(doc, counter())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestAssignIDs_RetriesTakenCandidates(t *testing.T) {
	doc := parse(t, `
scope: Cave
entities:
  - template: A
    save_id: taken
  - template: B
`)
	gen := func(_, _ string, _, attempt int) string {
		if attempt == 0 {
			return "taken"
		}
		return fmt.Sprintf("free-%d", attempt)
	}
	_, err := AssignIDs(doc, gen)
	require.NoError(t, err)
	out, _ := yaml.Marshal(doc)
	var s Scene
	require.NoError(t, yaml.Unmarshal(out, &s))
	assert.Equal(t, "free-1", s.Entities[1].SaveID)
}

func TestAssignIDs_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"root list", "- a\n- b\n"},
		{"entities scalar", "entities: 4\n"},
		{"entity scalar", "entities:\n  - crate\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AssignIDs(parse(t, tt.src), RandomIDs)
			assert.Error(t, err)
		})
	}

	res, err := AssignIDs(parse(t, "scope: Empty\n"), RandomIDs)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestHashedIDs(t *testing.T) {
	a := HashedIDs("Town", "Props/Crate", 1, 0)
	assert.Len(t, a, 24)
	assert.Equal(t, a, HashedIDs("Town", "Props/Crate", 1, 0))
	assert.NotEqual(t, a, HashedIDs("Town", "Props/Crate", 2, 0))
	assert.NotEqual(t, a, HashedIDs("Town", "Props/Crate", 1, 1))
	// composed and decomposed spellings of a scope share ids
	assert.Equal(t, HashedIDs("Caf\u00e9", "X", 0, 0), HashedIDs("Cafe\u0301", "X", 0, 0))

	assert.NotEqual(t, RandomIDs("", "", 0, 0), RandomIDs("", "", 0, 0))
}

type placed struct {
	tpl    string
	id     string
	manual bool
}

type fakePlacer struct{ got []placed }

func (f *fakePlacer) Place(tpl *data.Template, _ event.Scope, saveID string, manual bool) (ecs.EntityID, *save.Saveable) {
	f.got = append(f.got, placed{tpl.Name, saveID, manual})
	return ecs.EntityID(len(f.got)), save.NewSaveable(save.SaveableOptions{ID: saveID, Manual: manual}, nil)
}

func TestLoadAndPopulate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(PathFor(dir, " Town "), []byte(`
scope: Town
entities:
  - template: Props/Crate
    save_id: c1
  - template: Props/Lever
    save_id: l1
    manual: true
  - template: Props/Crate
  - template: Props/Missing
    save_id: m1
`), 0o644))
	assert.Equal(t, filepath.Join(dir, "Town.yaml"), PathFor(dir, " Town "))

	s, err := Load(PathFor(dir, "Town"))
	require.NoError(t, err)
	assert.Equal(t, "Town", s.Scope)

	table := data.NewTemplateTable()
	require.NoError(t, table.Add(data.Template{Name: "Crate", Path: "Props/Crate"}))
	require.NoError(t, table.Add(data.Template{Name: "Lever", Path: "Props/Lever"}))

	core, logs := observer.New(zapcore.WarnLevel)
	p := &fakePlacer{}
	n := Populate(s, table, p, event.Scope{Handle: 1, Name: "Town"}, zap.New(core))
	assert.Equal(t, 2, n)
	assert.Equal(t, []placed{{"Crate", "c1", false}, {"Lever", "l1", true}}, p.got)
	assert.Equal(t, 1, logs.FilterMessage("scene entity without save id, run saveidgen").Len())
	assert.Equal(t, 1, logs.FilterMessage("scene entity with unknown template").Len())

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestShippedScenesHaveIDs(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "data", "scenes", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		res, err := AssignIDs(parse(t, string(raw)), RandomIDs)
		require.NoError(t, err)
		assert.Equal(t, Result{}, res, path)
	}
}
