package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityNotSupported is returned when an optional operation is requested
	// from a provider that does not implement it.
	ErrCapabilityNotSupported = errors.New("capability not supported")

	// ErrUnknownProvider is returned when a provider name is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoProviders is reported when no enabled provider can serve a request.
	ErrNoProviders = errors.New("no providers configured")

	// ErrAllProvidersFailed is reported when every candidate failed.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrProviderFailed marks a failed call to a single provider.
	ErrProviderFailed = errors.New("provider call failed")

	// ErrTransactionNotFound is returned when a provider has no record of a transaction.
	ErrTransactionNotFound = errors.New("transaction not found")
)

type CapabilityError struct {
	Provider   string
	Capability Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Capability, ErrCapabilityNotSupported)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityNotSupported
}

// ProviderError wraps a failure of one provider call at a given stage.
type ProviderError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailed
}
