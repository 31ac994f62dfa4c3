package save

import (
	"strconv"

	"go.uber.org/zap"
)

// GlobalScope tags entries that belong to no scope.
const GlobalScope = "Global"

const (
	intPrefix    = "IVar-"
	floatPrefix  = "FVar-"
	stringPrefix = "SVar-"
	boolPrefix   = "BVar-"
)

func (m *Master) setScalar(prefix, key, value string) {
	if !m.requireActive("set " + prefix + key) {
		return
	}
	m.active.Set(prefix+key, value, GlobalScope)
}

func (m *Master) getScalar(prefix, key string) (string, bool) {
	if !m.requireActive("get " + prefix + key) {
		return "", false
	}
	return m.active.Get(prefix + key)
}

func (m *Master) SetInt(key string, v int) {
	m.setScalar(intPrefix, key, strconv.Itoa(v))
}

// GetInt returns the int stored under key, or def when no slot is active,
// the key is unset or its payload is not an int.
func (m *Master) GetInt(key string, def int) int {
	raw, ok := m.getScalar(intPrefix, key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		m.log.Warn("stored int unreadable", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}

func (m *Master) SetFloat(key string, v float64) {
	m.setScalar(floatPrefix, key, strconv.FormatFloat(v, 'g', -1, 64))
}

func (m *Master) GetFloat(key string, def float64) float64 {
	raw, ok := m.getScalar(floatPrefix, key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		m.log.Warn("stored float unreadable", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}

// SetString stores v under key. An empty string removes the key.
func (m *Master) SetString(key, v string) {
	m.setScalar(stringPrefix, key, v)
}

func (m *Master) GetString(key, def string) string {
	raw, ok := m.getScalar(stringPrefix, key)
	if !ok {
		return def
	}
	return raw
}

func (m *Master) SetBool(key string, v bool) {
	m.setScalar(boolPrefix, key, strconv.FormatBool(v))
}

func (m *Master) GetBool(key string, def bool) bool {
	raw, ok := m.getScalar(boolPrefix, key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		m.log.Warn("stored bool unreadable", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}
