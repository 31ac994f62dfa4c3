package persist

import "github.com/rotisserie/eris"

var (
	// ErrSlotNotFound is returned by a Backend when a slot holds no data.
	ErrSlotNotFound = eris.New("slot not found")

	ErrUnknownBackend = eris.New("unknown storage backend")
)
