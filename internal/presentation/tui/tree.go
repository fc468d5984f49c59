package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/aretw0/arbor"
)

// TreePrinter draws snapshot nodes with box-drawing connectors.
type TreePrinter struct {
	w       io.Writer
	profile termenv.Profile
	showIDs bool
}

// TreeOption configures a TreePrinter.
type TreeOption func(*TreePrinter)

// WithProfile overrides the detected color profile.
func WithProfile(p termenv.Profile) TreeOption {
	return func(tp *TreePrinter) {
		tp.profile = p
	}
}

// WithIDs appends the value ID to each label when it differs from the text.
func WithIDs() TreeOption {
	return func(tp *TreePrinter) {
		tp.showIDs = true
	}
}

// NewTreePrinter creates a printer writing to w.
func NewTreePrinter(w io.Writer, opts ...TreeOption) *TreePrinter {
	tp := &TreePrinter{w: w, profile: Profile(w)}
	for _, opt := range opts {
		opt(tp)
	}
	return tp
}

// Print writes every node and its loaded descendants.
func (tp *TreePrinter) Print(nodes []arbor.Node) {
	for _, n := range nodes {
		fmt.Fprintln(tp.w, tp.label(n))
		tp.children(n.Children, "")
	}
}

func (tp *TreePrinter) children(nodes []arbor.Node, prefix string) {
	for i, n := range nodes {
		connector, indent := "├── ", "│   "
		if i == len(nodes)-1 {
			connector, indent = "└── ", "    "
		}
		fmt.Fprintln(tp.w, prefix+connector+tp.label(n))
		tp.children(n.Children, prefix+indent)
	}
}

func (tp *TreePrinter) label(n arbor.Node) string {
	text := n.Text
	if n.Icon != "" {
		text = "[" + n.Icon + "] " + text
	}
	s := tp.profile.String(text)
	switch n.Kind {
	case "contributor":
		s = s.Bold().Foreground(tp.profile.Color("#34d399"))
	case "group":
		s = s.Foreground(tp.profile.Color("#60a5fa"))
	}
	out := s.String()
	if tp.showIDs && n.ID != n.Text {
		out += tp.profile.String(" (" + n.ID + ")").Faint().String()
	}
	return out
}
