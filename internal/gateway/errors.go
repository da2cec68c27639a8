package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks malformed caller input. It is never retried.
var ErrInvalidArgument = errors.New("invalid argument")

type ProviderNotFoundError struct {
	Name string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not registered", e.Name)
}

// ConfigurationError reports a missing or dangling default provider. When the
// default names an unregistered provider, Err holds the *ProviderNotFoundError.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// GatewayError is returned once every attempt against a provider has failed.
type GatewayError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
