// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrTrackNotFound is returned when a requested track cannot be found.
	ErrTrackNotFound = errors.New("track not found")

	// ErrQueueEmpty is returned when queue operations are attempted on an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrInvalidIndex is returned when a queue index is out of bounds.
	ErrInvalidIndex = errors.New("invalid queue index")

	// ErrInvalidVolume is returned when the volume is out of its valid range.
	ErrInvalidVolume = errors.New("invalid volume")

	// ErrInvalidPosition is returned when seeking to an invalid position.
	ErrInvalidPosition = errors.New("invalid playback position")

	// ErrNotInitialized is returned when an operation is attempted on an uninitialized component.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrUnsupportedFormat is returned when an audio source format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidTrack is returned when a track has none of the loadable fields set.
	ErrInvalidTrack = errors.New("track is not loadable")

	// ErrPlayerNotFound is returned when no backend can play a given track.
	ErrPlayerNotFound = errors.New("no backend can play this track")

	// ErrNoProviderAvailable is returned when no provider could produce a playback URL.
	ErrNoProviderAvailable = errors.New("no provider could produce a playback url")

	// ErrNotSupported is returned when a provider does not implement a requested operation.
	ErrNotSupported = errors.New("operation not supported by provider")

	// ErrStoreAccess is returned when the player store's lock is poisoned or access otherwise fails.
	ErrStoreAccess = errors.New("store access failed")

	// ErrPluginNotFound is returned when a plugin id is unknown to the registry.
	ErrPluginNotFound = errors.New("plugin not found")
)

// AudioEngineError wraps low-level decode/sink errors with operation context.
type AudioEngineError struct {
	Op      string
	Source  string
	Message string
	Err     error
}

func (e *AudioEngineError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("audio engine %s failed for %q: %s", e.Op, e.Source, e.Message)
	}
	return fmt.Sprintf("audio engine %s failed: %s", e.Op, e.Message)
}

func (e *AudioEngineError) Unwrap() error { return e.Err }

// NewAudioEngineError creates a new AudioEngineError.
func NewAudioEngineError(op, source, message string, err error) *AudioEngineError {
	return &AudioEngineError{Op: op, Source: source, Message: message, Err: err}
}

// RepositoryError wraps persistence-layer errors with additional context.
type RepositoryError struct {
	Op      string
	Type    string
	Message string
	Err     error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Type: repoType, Message: message, Err: err}
}

// ValidationError represents a rejected input value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ServiceError represents a failure at the service/orchestration layer.
type ServiceError struct {
	Service string
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{Service: service, Op: op, Message: message, Err: err}
}

// ProviderError wraps a provider-plugin failure (network, malformed
// response, timeout) with the offending provider's key.
type ProviderError struct {
	Provider string
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s.%s failed: %s", e.Provider, e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, op, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Message: message, Err: err}
}

// DelegationError is a provider's explicit request to redirect the call to
// a named peer provider. The Provider Router handles it once and never
// recursively (spec.md §4.7, §9).
type DelegationError struct {
	Target string // provider key to retry against
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("delegate to provider %q", e.Target)
}

// NewDelegationError builds a DelegationError targeting the given provider key.
func NewDelegationError(target string) *DelegationError {
	return &DelegationError{Target: target}
}

// SecurityViolationError is returned when a plugin's declared capabilities
// exceed what the permission model allows at initialize/start time.
type SecurityViolationError struct {
	Plugin     string
	Capability string
	Message    string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation for plugin %s (capability %s): %s", e.Plugin, e.Capability, e.Message)
}

// NewSecurityViolationError creates a new SecurityViolationError.
func NewSecurityViolationError(plugin, capability, message string) *SecurityViolationError {
	return &SecurityViolationError{Plugin: plugin, Capability: capability, Message: message}
}
