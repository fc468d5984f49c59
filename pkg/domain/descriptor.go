package domain

// Descriptor is the presentation data a contributor attaches to an item.
// The model treats it as opaque and only caches it.
type Descriptor struct {
	Text    string   `json:"text"`
	Icon    string   `json:"icon,omitempty"`
	Tooltip string   `json:"tooltip,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// IsZero reports whether the descriptor carries no data at all.
func (d Descriptor) IsZero() bool {
	return d.Text == "" && d.Icon == "" && d.Tooltip == "" && len(d.Actions) == 0
}

// TextOr returns the descriptor text, or fallback when the text is empty.
func (d Descriptor) TextOr(fallback string) string {
	if d.Text == "" {
		return fallback
	}
	return d.Text
}
