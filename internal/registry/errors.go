package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the registry.
var (
	// ErrUnhealthyStatus is wrapped when a probe receives a non-2xx answer.
	ErrUnhealthyStatus = errors.New("registry: unhealthy status")

	// ErrMissingRequired is wrapped by ConfigurationError.
	ErrMissingRequired = errors.New("registry: required service not registered")
)

// ConfigurationError names statically required services that were never registered.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("registry: required services not registered: %s", strings.Join(e.Missing, ", "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrMissingRequired
}
