package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ScriptProvider is a save.Provider implemented by a Lua table:
//
//	return {
//	  init = function(self) self.opened = false end,      -- optional
//	  save = function(self) return self.opened and "1" or "0" end,
//	  load = function(self, payload) self.opened = payload == "1" end,
//	  has_changes = function(self) return true end,      -- optional
//	}
//
// Each instance gets its own self table. Without has_changes the provider
// reports a change whenever its last saved payload differs from what save
// would return now.
type ScriptProvider struct {
	engine *Engine
	name   string
	kind   *lua.LTable
	self   *lua.LTable
	alive  func() bool

	last  string
	known bool
}

// NewProvider instantiates the kind registered as name and runs its init.
func (e *Engine) NewProvider(name string) (*ScriptProvider, error) {
	kind, ok := e.kinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown script provider %q", name)
	}
	p := &ScriptProvider{engine: e, name: name, kind: kind, self: e.vm.NewTable()}
	if _, err := e.call(kind, "init", p.self); err != nil {
		return nil, fmt.Errorf("%s init: %w", name, err)
	}
	return p, nil
}

func (p *ScriptProvider) Kind() string { return p.name }

// BindLiveness ties the provider to its owner so it is pruned once the
// owner is gone.
func (p *ScriptProvider) BindLiveness(alive func() bool) { p.alive = alive }

func (p *ScriptProvider) Alive() bool {
	return p.alive == nil || p.alive()
}

func (p *ScriptProvider) Save() (string, error) {
	payload, err := p.save()
	if err != nil {
		return "", err
	}
	p.last, p.known = payload, true
	return payload, nil
}

func (p *ScriptProvider) save() (string, error) {
	v, err := p.engine.call(p.kind, "save", p.self)
	if err != nil {
		return "", fmt.Errorf("%s save: %w", p.name, err)
	}
	if v == lua.LNil {
		return "", nil
	}
	return lua.LVAsString(v), nil
}

func (p *ScriptProvider) Load(payload string) error {
	if _, err := p.engine.call(p.kind, "load", p.self, lua.LString(payload)); err != nil {
		return fmt.Errorf("%s load: %w", p.name, err)
	}
	p.last, p.known = payload, true
	return nil
}

func (p *ScriptProvider) HasChanges() bool {
	if _, ok := p.kind.RawGetString("has_changes").(*lua.LFunction); ok {
		v, err := p.engine.call(p.kind, "has_changes", p.self)
		if err != nil {
			p.engine.log.Warn("lua has_changes error", zap.String("kind", p.name), zap.Error(err))
			return true
		}
		return lua.LVAsBool(v)
	}
	if !p.known {
		return true
	}
	cur, err := p.save()
	return err != nil || cur != p.last
}

// Invoke calls an extra method of the kind on this instance, for gameplay
// hooks such as on_open. Numeric, string and bool arguments are converted.
func (p *ScriptProvider) Invoke(method string, args ...any) (lua.LValue, error) {
	if _, ok := p.kind.RawGetString(method).(*lua.LFunction); !ok {
		return lua.LNil, fmt.Errorf("%s: no method %s", p.name, method)
	}
	lArgs := make([]lua.LValue, 0, len(args))
	for _, a := range args {
		lArgs = append(lArgs, toLua(a))
	}
	return p.engine.call(p.kind, method, p.self, lArgs...)
}

// Field reads a value from the instance's self table.
func (p *ScriptProvider) Field(key string) lua.LValue {
	return p.self.RawGetString(key)
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case lua.LValue:
		return x
	default:
		return lua.LString(fmt.Sprint(x))
	}
}
