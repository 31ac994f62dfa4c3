package persist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// MemoryPrefs is a process-local prefs store.
type MemoryPrefs struct {
	mu   sync.Mutex
	ints map[string]int
}

func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{ints: make(map[string]int)}
}

func (p *MemoryPrefs) GetInt(key string, def int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.ints[key]; ok {
		return v
	}
	return def
}

func (p *MemoryPrefs) SetInt(key string, v int) {
	p.mu.Lock()
	p.ints[key] = v
	p.mu.Unlock()
}

type prefsFile struct {
	Ints map[string]int `yaml:"ints"`
}

// YAMLPrefs keeps prefs in a small YAML file that is rewritten on every
// change. Write failures are logged; the in-memory value stays current.
type YAMLPrefs struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	data prefsFile
}

// OpenYAMLPrefs loads path if it exists. An unreadable file is logged and
// replaced on the next write.
func OpenYAMLPrefs(path string, log *zap.Logger) *YAMLPrefs {
	if log == nil {
		log = zap.NewNop()
	}
	p := &YAMLPrefs{path: path, log: log, data: prefsFile{Ints: map[string]int{}}}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f prefsFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			log.Warn("prefs file unreadable, starting empty", zap.String("path", path), zap.Error(err))
			break
		}
		if f.Ints != nil {
			p.data.Ints = f.Ints
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn("read prefs failed", zap.String("path", path), zap.Error(err))
	}
	return p
}

func (p *YAMLPrefs) GetInt(key string, def int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.data.Ints[key]; ok {
		return v
	}
	return def
}

func (p *YAMLPrefs) SetInt(key string, v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.data.Ints[key]; ok && cur == v {
		return
	}
	p.data.Ints[key] = v
	if err := p.flush(); err != nil {
		p.log.Warn("write prefs failed", zap.String("path", p.path), zap.Error(err))
	}
}

func (p *YAMLPrefs) flush() error {
	raw, err := yaml.Marshal(&p.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}
