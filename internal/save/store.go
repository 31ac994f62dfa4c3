package save

import (
	"sync/atomic"
	"time"
)

// Entry is one persisted payload. An empty Payload marks a removed entry.
type Entry struct {
	Key     string
	Payload string
	Scope   string
}

// Metadata is carried alongside the entries of a slot.
type Metadata struct {
	Version   int
	CreatedAt time.Time
	PlayTime  time.Duration
}

// Store is the in-memory key/payload map backing one save slot.
//
// Entries keep their insertion order; overwriting a key reuses its position.
// Removal leaves a tombstone that is dropped the next time the store is
// decoded. Only AddPlayTime may be called off the game loop goroutine.
type Store struct {
	version   int
	createdAt time.Time
	playTime  atomic.Int64 // nanoseconds

	entries []Entry
	index   map[string]int
	scopes  map[string]map[string]struct{}
}

// NewStore returns an empty store tagged with version.
func NewStore(version int) *Store {
	return &Store{
		version: version,
		index:   make(map[string]int),
		scopes:  make(map[string]map[string]struct{}),
	}
}

// Get returns the payload stored under key.
func (s *Store) Get(key string) (string, bool) {
	i, ok := s.index[key]
	if !ok {
		return "", false
	}
	return s.entries[i].Payload, true
}

// Set writes payload under key. An empty payload removes the key.
func (s *Store) Set(key, payload, scope string) {
	if key == "" {
		return
	}
	if payload == "" {
		s.Remove(key)
		return
	}
	if i, ok := s.index[key]; ok {
		old := s.entries[i].Scope
		s.entries[i].Payload = payload
		if old != scope {
			s.untagScope(old, key)
			s.entries[i].Scope = scope
			s.tagScope(scope, key)
		}
		return
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Payload: payload, Scope: scope})
	s.tagScope(scope, key)
}

// Remove tombstones key. It reports false if the key was not present.
func (s *Store) Remove(key string) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.untagScope(s.entries[i].Scope, key)
	s.entries[i].Payload = ""
	delete(s.index, key)
	return true
}

// WipeScope removes every entry tagged with scope and returns how many
// were removed.
func (s *Store) WipeScope(scope string) int {
	keys := s.scopes[scope]
	n := 0
	for key := range keys {
		if i, ok := s.index[key]; ok {
			s.entries[i].Payload = ""
			delete(s.index, key)
			n++
		}
	}
	delete(s.scopes, scope)
	return n
}

func (s *Store) tagScope(scope, key string) {
	if scope == "" {
		return
	}
	keys, ok := s.scopes[scope]
	if !ok {
		keys = make(map[string]struct{})
		s.scopes[scope] = keys
	}
	keys[key] = struct{}{}
}

func (s *Store) untagScope(scope, key string) {
	if keys, ok := s.scopes[scope]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.scopes, scope)
		}
	}
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return len(s.index)
}

// Entries returns the live entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.index))
	for _, e := range s.entries {
		if e.Payload != "" {
			out = append(out, e)
		}
	}
	return out
}

// Metadata returns a snapshot of the slot metadata.
func (s *Store) Metadata() Metadata {
	return Metadata{
		Version:   s.version,
		CreatedAt: s.createdAt,
		PlayTime:  s.PlayTime(),
	}
}

func (s *Store) SetVersion(v int) {
	s.version = v
}

// PlayTime returns the accumulated play time.
func (s *Store) PlayTime() time.Duration {
	return time.Duration(s.playTime.Load())
}

// AddPlayTime adds d to the play time counter.
func (s *Store) AddPlayTime(d time.Duration) {
	s.playTime.Add(int64(d))
}

// PrepareForWrite stamps the creation time on first write.
func (s *Store) PrepareForWrite(now time.Time) {
	if s.createdAt.IsZero() {
		s.createdAt = now.UTC().Truncate(time.Second)
	}
}
