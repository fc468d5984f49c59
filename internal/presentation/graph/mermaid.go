package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor"
)

// Overlay marks items of interest on the rendered graph.
// Entries are item IDs; every node carrying a matching ID is styled.
type Overlay struct {
	Highlighted []string
	Current     string
}

// GenerateMermaid produces a Mermaid flowchart from a tree snapshot.
// It applies semantic styling:
// - Contributor: [[Subroutine]]
// - Group: [/Parallelogram/]
// - Service: [Rectangle], or (Rounded) while its children are not loaded
// It also applies overlay styles (Highlighted/Current) if provided.
func GenerateMermaid(nodes []arbor.Node, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byID := make(map[string][]string)
	var walk func(parent string, n arbor.Node)
	walk = func(parent string, n arbor.Node) {
		safeID := nodeID(parent, n)
		byID[n.ID] = append(byID[n.ID], safeID)

		opener, closer := "[", "]"
		switch {
		case n.Kind == "contributor":
			opener, closer = "[[", "]]"
		case n.Kind == "group":
			opener, closer = "[/", "/]"
		case n.State == "uninitialized":
			opener, closer = "(", ")"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label(n), closer)

		if parent != "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", parent, safeID)
		}
		for _, c := range n.Children {
			walk(safeID, c)
		}
	}
	for _, n := range nodes {
		walk("", n)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast on light fills whatever the theme.
		sb.WriteString("    classDef highlighted fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Highlighted {
			for _, safeID := range byID[id] {
				if !seen[safeID] {
					seen[safeID] = true
					fmt.Fprintf(&sb, "    class %s highlighted;\n", safeID)
				}
			}
		}
		for _, safeID := range byID[overlay.Current] {
			fmt.Fprintf(&sb, "    class %s current;\n", safeID)
		}
	}

	return sb.String()
}

// nodeID derives a Mermaid identifier from the item's position, since item
// IDs only need to be unique among siblings.
func nodeID(parent string, n arbor.Node) string {
	id := sanitizeMermaidID(n.ID)
	if parent == "" {
		return id
	}
	return parent + "__" + id
}

func label(n arbor.Node) string {
	text := n.Text
	if text == "" {
		text = n.ID
	}
	if n.Icon != "" {
		text = "[" + n.Icon + "] " + text
	}
	return strings.ReplaceAll(text, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
