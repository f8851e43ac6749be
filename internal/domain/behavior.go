package domain

// Behavior is a named, free-form description of how an agent might trade.
// The simulation never consults it.
type Behavior struct {
	Name     string
	Behavior string
}
