package tui

import (
	"fmt"
	"io"
	"strings"
)

var bannerLines = []struct {
	text, color string
}{
	{`                 _                `, "#34d399"},
	{`   __ _ _ __ ___| |__   ___  _ __ `, "#2dd4bf"},
	{`  / _' | '__/ _ \ '_ \ / _ \| '__|`, "#22d3ee"},
	{` | (_| | | |  __/ |_) | (_) | |   `, "#38bdf8"},
	{`  \__,_|_|  \___|_.__/ \___/|_|   `, "#60a5fa"},
}

// PrintBanner writes the arbor banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := Profile(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
