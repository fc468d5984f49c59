package tui

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor"
)

func TestTreePrinter_Print(t *testing.T) {
	var buf bytes.Buffer
	NewTreePrinter(&buf, WithProfile(termenv.Ascii)).Print([]arbor.Node{
		{ID: "docker", Kind: "contributor", Text: "Docker", Children: []arbor.Node{
			{ID: "compose", Kind: "group", Text: "Compose", Children: []arbor.Node{
				{ID: "db", Kind: "service", Text: "db"},
				{ID: "web", Kind: "service", Text: "web", Icon: "globe"},
			}},
			{ID: "registry", Kind: "service", Text: "registry"},
		}},
		{ID: "k8s", Kind: "contributor", Text: "k8s"},
	})

	want := "Docker\n" +
		"├── Compose\n" +
		"│   ├── db\n" +
		"│   └── [globe] web\n" +
		"└── registry\n" +
		"k8s\n"
	assert.Equal(t, want, buf.String())
}

func TestTreePrinter_IDs(t *testing.T) {
	var buf bytes.Buffer
	NewTreePrinter(&buf, WithProfile(termenv.Ascii), WithIDs()).Print([]arbor.Node{
		{ID: "pg", Kind: "service", Text: "Postgres"},
		{ID: "web", Kind: "service", Text: "web"},
	})
	assert.Equal(t, "Postgres (pg)\nweb\n", buf.String())
}

func TestNonTerminalDefaults(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, termenv.Ascii, Profile(&buf))
	assert.Equal(t, DefaultWidth, Width(&buf))

	PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "v1.2.3")
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer(40)
	assert.NoError(t, err)
	out, err := render("# Postgres\n\nPrimary database.")
	assert.NoError(t, err)
	assert.Contains(t, out, "Primary database.")
}
