package persist

import "context"

// Backend stores the raw bytes of each slot. Implementations must be safe
// for concurrent use; SlotFiles serializes writers of the same slot.
type Backend interface {
	// List returns the used slot numbers in ascending order.
	List(ctx context.Context) ([]int, error)
	// Read returns ErrSlotNotFound when the slot has never been written or
	// was deleted.
	Read(ctx context.Context, slot int) ([]byte, error)
	Write(ctx context.Context, slot int, data []byte) error
	// Delete is a no-op for slots that do not exist.
	Delete(ctx context.Context, slot int) error
	Close() error
}
