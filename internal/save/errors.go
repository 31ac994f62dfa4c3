package save

import "github.com/rotisserie/eris"

var (
	// ErrEmptySave is returned when decoding zero-length slot data.
	ErrEmptySave = eris.New("save: empty slot data")
	// ErrCorruptSave is returned when slot data cannot be parsed.
	ErrCorruptSave = eris.New("save: corrupt slot data")
)
