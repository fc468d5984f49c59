package domain

import (
	"errors"
	"fmt"
)

// ErrExecutorClosed is returned when work is submitted to a closed model.
var ErrExecutorClosed = errors.New("executor closed")

// ErrUnknownContributor is returned when a contributor name is not registered.
var ErrUnknownContributor = errors.New("unknown contributor")

// ErrNoProvider is returned when an item cannot host children.
var ErrNoProvider = errors.New("item has no providing contributor")

// ErrDuplicateContributor is returned when a contributor name is registered twice.
var ErrDuplicateContributor = errors.New("contributor already registered")

// ProviderError wraps a failure raised by a contributor while the model was
// enumerating services, groups or descriptors.
type ProviderError struct {
	Contributor string
	Op          string
	Err         error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("contributor %s: %s: %v", e.Contributor, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
