package save

// Provider is one piece of entity state that can be persisted.
//
// Save returns the payload to store; an empty payload means there is nothing
// to persist. Load receives the stored payload. HasChanges is the save
// condition: a provider reporting false is skipped unless the owning
// Saveable was reset.
type Provider interface {
	Save() (string, error)
	Load(payload string) error
	HasChanges() bool
}

// Liveness is implemented by providers whose owner can disappear while
// still registered. Dead providers are pruned after the next save or load
// pass.
type Liveness interface {
	Alive() bool
}

func alive(p Provider) bool {
	if p == nil {
		return false
	}
	if l, ok := p.(Liveness); ok {
		return l.Alive()
	}
	return true
}
