package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM that hosts scripted state providers.
// Single-goroutine access only (game loop).
type Engine struct {
	vm    *lua.LState
	kinds map[string]*lua.LTable
	log   *zap.Logger
}

// NewEngine creates a Lua engine and loads every provider script found in
// <scriptsDir>/providers. A missing directory is not an error.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, kinds: make(map[string]*lua.LTable), log: log}
	if scriptsDir == "" {
		return e, nil
	}
	if err := e.loadDir(filepath.Join(scriptsDir, "providers")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load provider scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory. Each file registers the
// provider kind named after it.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fn, err := e.vm.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if err := e.register(name, fn); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path), zap.String("kind", name))
	}
	return nil
}

// LoadString registers a provider kind from source. The chunk must return
// a table with save and load functions.
func (e *Engine) LoadString(name, src string) error {
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	return e.register(name, fn)
}

func (e *Engine) register(name string, chunk *lua.LFunction) error {
	if err := e.vm.CallByParam(lua.P{
		Fn:      chunk,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	kind, ok := result.(*lua.LTable)
	if !ok {
		return fmt.Errorf("%s: script must return a table, got %s", name, result.Type())
	}
	for _, method := range []string{"save", "load"} {
		if _, ok := kind.RawGetString(method).(*lua.LFunction); !ok {
			return fmt.Errorf("%s: missing %s function", name, method)
		}
	}
	if _, dup := e.kinds[name]; dup {
		e.log.Warn("script provider redefined", zap.String("kind", name))
	}
	e.kinds[name] = kind
	return nil
}

// Kinds lists the registered provider kinds.
func (e *Engine) Kinds() []string {
	out := make([]string, 0, len(e.kinds))
	for k := range e.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) HasKind(name string) bool {
	_, ok := e.kinds[name]
	return ok
}

// call invokes method of kind with self and args. A missing optional
// method returns LNil without error.
func (e *Engine) call(kind *lua.LTable, method string, self *lua.LTable, args ...lua.LValue) (lua.LValue, error) {
	fn, ok := kind.RawGetString(method).(*lua.LFunction)
	if !ok {
		return lua.LNil, nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, append([]lua.LValue{self}, args...)...); err != nil {
		return lua.LNil, err
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return result, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
