package save

import (
	"bytes"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

type fileRecord struct {
	Metadata metaRecord    `json:"metadata"`
	Entries  []entryRecord `json:"entries"`
}

type metaRecord struct {
	Version   int    `json:"version"`
	CreatedAt string `json:"created_at,omitempty"`
	PlayTime  string `json:"play_time,omitempty"`
}

type entryRecord struct {
	Key     string `json:"key"`
	Payload string `json:"payload"`
	// Raw carries payloads that are not valid UTF-8, base64 on disk.
	Raw   []byte `json:"raw,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// Encode serializes the store. Tombstones are written as entries with an
// empty payload and are purged by the next Decode.
func Encode(s *Store, pretty bool) ([]byte, error) {
	rec := fileRecord{
		Metadata: metaRecord{Version: s.version},
		Entries:  make([]entryRecord, len(s.entries)),
	}
	if !s.createdAt.IsZero() {
		rec.Metadata.CreatedAt = s.createdAt.Format(time.RFC3339)
	}
	if pt := s.PlayTime(); pt > 0 {
		rec.Metadata.PlayTime = pt.String()
	}
	for i, e := range s.entries {
		r := entryRecord{Key: e.Key, Scope: e.Scope}
		if utf8.ValidString(e.Payload) {
			r.Payload = e.Payload
		} else {
			r.Raw = []byte(e.Payload)
		}
		rec.Entries[i] = r
	}

	var (
		out []byte
		err error
	)
	if pretty {
		out, err = json.MarshalIndent(rec, "", "  ")
	} else {
		out, err = json.Marshal(rec)
	}
	if err != nil {
		return nil, eris.Wrap(err, "encode save")
	}
	return out, nil
}

// Decode parses slot data into a fresh store, dropping empty entries.
// Unreadable metadata fields fall back to their zero value.
func Decode(data []byte) (*Store, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptySave
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(ErrCorruptSave, err.Error())
	}

	s := NewStore(rec.Metadata.Version)
	if rec.Metadata.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, rec.Metadata.CreatedAt); err == nil {
			s.createdAt = t
		}
	}
	if rec.Metadata.PlayTime != "" {
		if d, err := time.ParseDuration(rec.Metadata.PlayTime); err == nil && d > 0 {
			s.playTime.Store(int64(d))
		}
	}
	for _, e := range rec.Entries {
		payload := e.Payload
		if len(e.Raw) > 0 {
			payload = string(e.Raw)
		}
		if e.Key == "" || payload == "" {
			continue
		}
		s.Set(e.Key, payload, e.Scope)
	}
	return s, nil
}
