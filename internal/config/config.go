// Package config loads the arbor configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/dsl"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "arbor.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the root of arbor.yaml.
type Config struct {
	LogLevel    string        `mapstructure:"log_level"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	FetchLimit  int           `mapstructure:"fetch_limit"`

	HTTP  HTTPConfig  `mapstructure:"http"`
	MCP   MCPConfig   `mapstructure:"mcp"`
	Redis RedisConfig `mapstructure:"redis"`
	Docs  DocsConfig  `mapstructure:"docs"`

	Contributors []ContributorConfig `mapstructure:"contributors"`
	Commands     []process.Config    `mapstructure:"commands"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

// MCPConfig configures the MCP SSE transport.
type MCPConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig enables the Redis event bus when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// DocsConfig enables a document contributor when Dir is set.
type DocsConfig struct {
	Name  string `mapstructure:"name"`
	Text  string `mapstructure:"text"`
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

// ContributorConfig describes a static contributor.
type ContributorConfig struct {
	Name        string          `mapstructure:"name"`
	Text        string          `mapstructure:"text"`
	Grouped     bool            `mapstructure:"grouped"`
	OrderByText bool            `mapstructure:"order_by_text"`
	Lazy        bool            `mapstructure:"lazy"`
	Groups      []GroupConfig   `mapstructure:"groups"`
	Services    []ServiceConfig `mapstructure:"services"`
}

// GroupConfig labels a grouping key.
type GroupConfig struct {
	Key    string `mapstructure:"key"`
	Text   string `mapstructure:"text"`
	Weight *int   `mapstructure:"weight"`
}

// ServiceConfig describes one service of a static contributor.
type ServiceConfig struct {
	Key      string             `mapstructure:"key"`
	Text     string             `mapstructure:"text"`
	In       []string           `mapstructure:"in"`
	Children *ContributorConfig `mapstructure:"children"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel:    "info",
		LoadTimeout: 5 * time.Second,
		FetchLimit:  4,
		HTTP:        HTTPConfig{Addr: ":8080"},
		MCP:         MCPConfig{Addr: ":8081"},
		Docs:        DocsConfig{Name: "docs"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults
// unless the caller asked for that file explicitly.
func Load(path string, explicit bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML (or JSON) configuration over the defaults.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks constraints the decoder cannot express.
func (c Config) Validate() error {
	if c.LoadTimeout < 0 {
		return fmt.Errorf("%w: load_timeout must not be negative", ErrInvalid)
	}
	if c.FetchLimit < 0 {
		return fmt.Errorf("%w: fetch_limit must not be negative", ErrInvalid)
	}
	seen := make(map[string]bool)
	if c.Docs.Dir != "" {
		seen[c.Docs.Name] = true
	}
	for _, cc := range c.Contributors {
		if cc.Name == "" {
			return fmt.Errorf("%w: contributor without name", ErrInvalid)
		}
		if seen[cc.Name] {
			return fmt.Errorf("%w: duplicate contributor %q", ErrInvalid, cc.Name)
		}
		seen[cc.Name] = true
	}
	for _, pc := range c.Commands {
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if seen[pc.Name] {
			return fmt.Errorf("%w: duplicate contributor %q", ErrInvalid, pc.Name)
		}
		seen[pc.Name] = true
	}
	return nil
}

// Build creates the in-memory contributor described by c.
func (c ContributorConfig) Build() (*memory.Contributor, error) {
	return c.builder().Build()
}

func (c ContributorConfig) builder() *dsl.Builder {
	b := dsl.New(c.Name).Text(c.Text)
	c.describe(b)
	return b
}

func (c ContributorConfig) describe(b *dsl.Builder) {
	if c.Grouped {
		b.Grouped()
	}
	if c.OrderByText {
		b.OrderByText()
	}
	if c.Lazy {
		b.Lazy()
	}
	for _, g := range c.Groups {
		if g.Weight != nil {
			b.Group(g.Key, g.Text, *g.Weight)
		} else {
			b.Group(g.Key, g.Text)
		}
	}
	for _, s := range c.Services {
		sb := b.Service(s.Key).Text(s.Text)
		if len(s.In) > 0 {
			sb.In(s.In...)
		}
		if s.Children != nil {
			name := s.Children.Name
			if name == "" {
				name = c.Name + "/" + s.Key
			}
			nested := sb.Children(name)
			if s.Children.Text != "" {
				nested.Text(s.Children.Text)
			}
			s.Children.describe(nested)
		}
	}
}
