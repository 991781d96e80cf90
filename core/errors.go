package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeMissingConfig = "MISSING_CONFIG"
	ErrCodeMissingAuth   = "MISSING_AUTH"
	ErrCodeInvalidValue  = "INVALID_VALUE"
	ErrCodeMultiple      = "MULTIPLE_ERRORS"
)

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file or environment", varName),
	}
}

// ErrMissingAuth returns an error for a backend that has no usable credential.
func ErrMissingAuth(backend string) *ConfigError {
	var action string
	switch backend {
	case BackendWhisk:
		action = "Set WHISK_COOKIE (or WHISK_COOKIE_FILE / WHISK_ACCESS_TOKEN) in your .env file"
	case BackendOpenAI:
		action = "Set OPENAI_API_KEY in your .env file"
	default:
		action = fmt.Sprintf("Configure credentials for the %s backend", backend)
	}
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("Missing authentication credentials for %s", backend),
		Action:  action,
	}
}

// ErrInvalidValue returns an error for a configuration value that failed validation.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Correct %s in your .env file or environment", varName),
	}
}

// joinConfigErrors folds several validation failures into one ConfigError.
// A single failure is returned as-is.
func joinConfigErrors(errs []*ConfigError) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}

	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return &ConfigError{
		Code:    ErrCodeMultiple,
		Message: fmt.Sprintf("%d configuration problems: %s", len(errs), strings.Join(msgs, "; ")),
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
