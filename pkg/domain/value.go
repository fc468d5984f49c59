package domain

// Value is a domain object contributed to the tree: a service or a grouping key.
// Two values with the same ID are considered the same object.
type Value interface {
	ID() string
}

// Weighted is implemented by grouping keys that carry an explicit sort weight.
// Heavier groups are placed first; weighted groups precede unweighted ones.
type Weighted interface {
	Weight() int
}

// Ref is an ID-only Value. Transports that cannot carry the original object
// (Redis, HTTP) use it and let the contributor resolve the real value.
type Ref string

// ID implements Value.
func (r Ref) ID() string { return string(r) }

// SameValue reports whether two values share an identity.
// A nil value is only equal to another nil value.
func SameValue(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}
