package zone

import (
	"errors"
	"fmt"
)

// Common errors for zone operations.
var (
	// ErrInvalidRecord indicates a record violates the record invariants.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnauthorized indicates the provider rejected our credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable indicates the provider API is unreachable.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrPrecondition indicates a deletion no longer matches the zone contents.
	ErrPrecondition = errors.New("zone changed since lookup")

	// ErrUnknownZone indicates no zone instance is registered under a name.
	ErrUnknownZone = errors.New("unknown zone")
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("configuration error: %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// ErrConfigMissing creates an error for a missing required configuration field.
func ErrConfigMissing(field string) error {
	return &ConfigError{
		Field:   field,
		Message: "required but not set",
	}
}

// ErrConfigInvalid creates an error for an invalid configuration value.
func ErrConfigInvalid(field, value, message string) error {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ProviderError wraps an error with zone context and the provider's own
// status code, when it reports one.
type ProviderError struct {
	Zone      string
	Operation string
	Code      int // provider status (HTTP status for API providers), 0 if none
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("zone %s: %s: %v (status %d)", e.Zone, e.Operation, e.Err, e.Code)
	}
	return fmt.Sprintf("zone %s: %s: %v", e.Zone, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with zone context.
func WrapError(zoneName, operation string, err error) error {
	return WrapErrorCode(zoneName, operation, 0, err)
}

// WrapErrorCode wraps an error with zone context and a provider status code.
func WrapErrorCode(zoneName, operation string, code int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{
		Zone:      zoneName,
		Operation: operation,
		Code:      code,
		Err:       err,
	}
}

// StatusCode returns the provider status code carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	for errors.As(err, &pe) {
		if pe.Code != 0 {
			return pe.Code
		}
		err = pe.Err
	}
	return 0
}

// IsUnauthorized returns true if the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsUnavailable returns true if the error indicates the provider is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsPrecondition returns true if the zone changed between lookup and apply.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
