package component

// Name is the template name an entity was created from.
type Name struct {
	Value string
}

// Scope tags an entity with the scope it lives in.
type Scope struct {
	Handle int
	Name   string
}

// Visible toggles whether an entity takes part in rendering and updates.
type Visible struct {
	On bool
}

// Counter is a generic integer gameplay counter (coins picked, hits taken).
type Counter struct {
	Value int
}
