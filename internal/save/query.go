package save

import (
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// saveFor returns the active store for the active slot and reads any
// other slot from storage without activating it.
func (m *Master) saveFor(slot int) *Store {
	if slot == m.activeSlot && m.active != nil {
		return m.active
	}
	if !m.IsSlotUsed(slot) {
		return nil
	}
	ctx, cancel := m.ioContext()
	defer cancel()
	return m.storage.LoadSave(ctx, slot, false)
}

// SaveCreationTime returns when slot was first written, or the zero time.
func (m *Master) SaveCreationTime(slot int) time.Time {
	if s := m.saveFor(slot); s != nil {
		return s.Metadata().CreatedAt
	}
	return time.Time{}
}

// SaveTimePlayed returns the play time recorded in slot.
func (m *Master) SaveTimePlayed(slot int) time.Duration {
	if s := m.saveFor(slot); s != nil {
		return s.PlayTime()
	}
	return 0
}

// SaveVersion returns the version tag of slot, or -1 if the slot is unused.
func (m *Master) SaveVersion(slot int) int {
	if s := m.saveFor(slot); s != nil {
		return s.Metadata().Version
	}
	return -1
}

// SaveablePayload returns the raw payload of one provider in slot.
func (m *Master) SaveablePayload(slot int, ownerID, providerID string) (string, bool) {
	s := m.saveFor(slot)
	if s == nil {
		return "", false
	}
	return s.Get(ComposeKey(ownerID, providerID))
}

// GetSaveableData decodes the JSON payload of one provider in slot into
// a T, without activating the slot.
func GetSaveableData[T any](m *Master, slot int, ownerID, providerID string) (T, bool) {
	var out T
	raw, ok := m.SaveablePayload(slot, ownerID, providerID)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		m.log.Warn("saveable data unreadable",
			zap.Int("slot", slot),
			zap.String("key", ComposeKey(ownerID, providerID)),
			zap.Error(err))
		var zero T
		return zero, false
	}
	return out, true
}
