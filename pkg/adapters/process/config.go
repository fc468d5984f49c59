package process

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every Config validation failure.
var ErrInvalidConfig = errors.New("invalid command contributor")

// Config describes a contributor whose services are listed by an external
// command.
type Config struct {
	Name        string            `mapstructure:"name" json:"name"`
	Text        string            `mapstructure:"text" json:"text,omitempty"`
	Command     string            `mapstructure:"command" json:"command"`
	Args        []string          `mapstructure:"args" json:"args,omitempty"`
	Environment map[string]string `mapstructure:"env" json:"env,omitempty"`
	Dir         string            `mapstructure:"dir" json:"dir,omitempty"`
	Grouped     bool              `mapstructure:"grouped" json:"grouped,omitempty"`
	OrderByText bool              `mapstructure:"order_by_text" json:"order_by_text,omitempty"`
	// Timeout bounds one run of the command. Zero leaves it to the caller.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	// Poll reruns the command at this interval and resets the contributor
	// when its output changes. Zero disables polling.
	Poll time.Duration `mapstructure:"poll" json:"poll,omitempty"`
}

// Validate checks the fields New relies on.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if c.Command == "" {
		return fmt.Errorf("%w: %s: missing command", ErrInvalidConfig, c.Name)
	}
	if c.Timeout < 0 || c.Poll < 0 {
		return fmt.Errorf("%w: %s: durations must not be negative", ErrInvalidConfig, c.Name)
	}
	return nil
}
