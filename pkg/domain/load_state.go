package domain

// LoadState tracks whether an item's children have been fetched.
type LoadState int32

const (
	// Uninitialized means the children were never fetched.
	Uninitialized LoadState = iota
	// Initializing means a fetch was scheduled but has not run yet.
	Initializing
	// Loaded means the children list is authoritative.
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}
