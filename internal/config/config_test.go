package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: debug
load_timeout: 250ms
http:
  addr: ":9090"
  metrics: true
redis:
  addr: "localhost:6379"
  channel: "ops:events"
contributors:
  - name: docker
    text: Docker
    grouped: true
    groups:
      - key: compose
        text: Compose
        weight: 10
    services:
      - key: registry
      - key: db
        text: Database
        in: [compose]
      - key: host
        children:
          lazy: true
          services:
            - key: container-1
commands:
  - name: units
    command: systemctl
    args: [list-units, --plain, --no-legend]
    env: {lang: C}
    grouped: true
    timeout: 2s
    poll: 30s
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.LoadTimeout)
	assert.Equal(t, 4, cfg.FetchLimit, "defaults survive")
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.Metrics)
	assert.Equal(t, ":8081", cfg.MCP.Addr)
	assert.Equal(t, "ops:events", cfg.Redis.Channel)
	require.Len(t, cfg.Contributors, 1)
	require.NotNil(t, cfg.Contributors[0].Groups[0].Weight)
	assert.Equal(t, 10, *cfg.Contributors[0].Groups[0].Weight)

	require.Len(t, cfg.Commands, 1)
	units := cfg.Commands[0]
	assert.Equal(t, "systemctl", units.Command)
	assert.Equal(t, []string{"list-units", "--plain", "--no-legend"}, units.Args)
	assert.Equal(t, map[string]string{"lang": "C"}, units.Environment)
	assert.Equal(t, 2*time.Second, units.Timeout)
	assert.Equal(t, 30*time.Second, units.Poll)
}

func TestContributorConfig_Build(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	docker, err := cfg.Contributors[0].Build()
	require.NoError(t, err)
	assert.Equal(t, "docker", docker.Name())
	assert.Equal(t, "Docker", docker.Descriptor().Text)

	services, err := docker.Services(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 3)

	host, ok := docker.Service("host")
	require.True(t, ok)
	require.NotNil(t, host.Children)
	assert.Equal(t, "docker/host", host.Children.Name())
	assert.True(t, host.Children.Capabilities().Lazy)

	caps := docker.Capabilities()
	path, err := caps.Groups(services[1])
	require.NoError(t, err)
	require.Len(t, path, 1)
	desc, err := caps.GroupDescriptor(path[0])
	require.NoError(t, err)
	assert.Equal(t, "Compose", desc.Text)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "bogus: true",
		"bad duration":     "load_timeout: soon",
		"negative timeout": "load_timeout: -1s",
		"unnamed":          "contributors: [{text: x}]",
		"duplicate":        "contributors: [{name: a}, {name: a}]",
		"docs clash":       "docs: {dir: ./docs, name: a}\ncontributors: [{name: a}]",
		"not yaml":         "[",
		"command missing":  "commands: [{name: c}]",
		"command clash":    "contributors: [{name: a}]\ncommands: [{name: a, command: ls}]",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, DefaultPath), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(dir, "missing.yaml"), true)
	assert.Error(t, err)

	path := filepath.Join(dir, "arbor.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fetch_limit": 1}`), 0o644))
	cfg, err = Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.FetchLimit)
}
