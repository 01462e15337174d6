// Package errors defines the error taxonomy shared by the catalog, the provider
// registry, the reconciler and the transfer engine, together with small helpers
// for wrapping and classifying errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Sync errors. These are the categories the reconciler and the transfer engine
// branch on; concrete errors wrap one of them.
var (
	// ErrAuth is returned when a provider rejects or expires credentials.
	ErrAuth = fmt.Errorf("authentication failed")

	// ErrNetwork is returned for transient transport failures.
	ErrNetwork = fmt.Errorf("network error")

	// ErrRateLimited is returned when a provider asks the client to slow down.
	ErrRateLimited = fmt.Errorf("rate limited")

	// ErrIntegrity is returned when downloaded content does not match its expected digest.
	ErrIntegrity = fmt.Errorf("integrity check failed")

	// ErrNotFound is returned when a remote or local record does not exist.
	ErrNotFound = fmt.Errorf("not found")

	// ErrTransferPaused is recorded on intents that were checkpointed by a pause.
	ErrTransferPaused = fmt.Errorf("transfer paused")
)

// Provider registration errors.
var (
	ErrVersionIncompatible = fmt.Errorf("provider API version incompatible")
	ErrSignatureInvalid    = fmt.Errorf("provider signature invalid")
	ErrProviderNotFound    = fmt.Errorf("provider not found")
	ErrManifestInvalid     = fmt.Errorf("invalid provider manifest")
	ErrUnknownProviderKind = fmt.Errorf("unknown provider kind")

	// ErrProviderScript is returned when a provider script fails or reports an error.
	ErrProviderScript = fmt.Errorf("provider script failed")
)

// Catalog errors.
var (
	ErrAssetNotFound = fmt.Errorf("asset %w", ErrNotFound)
	ErrFileNotFound  = fmt.Errorf("file %w", ErrNotFound)
	ErrInvalidPath   = fmt.Errorf("invalid path")

	// ErrFileRemoved is returned when a download completes for a file the user
	// marked removed in the meantime.
	ErrFileRemoved = fmt.Errorf("file marked removed")
)

// Config errors.
var (
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
	ErrConfigFileChmod   = fmt.Errorf("failed to set config file permissions")
	ErrConfigMarshal     = fmt.Errorf("failed to marshal config to YAML")

	// ErrConfigFileExists is returned when init would overwrite an existing file.
	ErrConfigFileExists = fmt.Errorf("configuration file already exists (use --force to overwrite)")

	ErrConcurrencyInvalid  = fmt.Errorf("concurrency must be at least 1")
	ErrChunkSizeInvalid    = fmt.Errorf("chunk_size must be at least 1")
	ErrMaxAttemptsInvalid  = fmt.Errorf("max_attempts must be at least 1")
	ErrHTTPTimeoutNegative = fmt.Errorf("http_timeout cannot be negative")
	ErrInvalidOutputFormat = fmt.Errorf("invalid output format")
	ErrInvalidLogLevel     = fmt.Errorf("invalid log level")
	ErrInvalidBoolValue    = fmt.Errorf("invalid boolean value")
	ErrUnknownConfigKey    = fmt.Errorf("unknown configuration key")
	ErrEmptyProviderID     = fmt.Errorf("provider id cannot be empty")
	ErrProviderExists      = fmt.Errorf("provider already configured")
)

// RateLimitedError carries the interval a provider asked the client to wait.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Unwrap returns the underlying error.
func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// StatusError is returned for HTTP responses with an unexpected status code.
// It unwraps to the sync category matching the code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Unwrap maps the status code to an error category.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrAuth
	case e.Code == http.StatusNotFound || e.Code == http.StatusGone:
		return ErrNotFound
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code >= http.StatusInternalServerError, e.Code == http.StatusRequestTimeout:
		return ErrNetwork
	default:
		return nil
	}
}

// NewStatusError creates a StatusError for the given response code.
func NewStatusError(code int, url string) error {
	return &StatusError{Code: code, URL: url}
}

// RetryAfter returns the wait requested by a rate limited error, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if stderrors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports whether err belongs to a category that a bounded retry can fix.
func IsRetryable(err error) bool {
	return stderrors.Is(err, ErrNetwork) ||
		stderrors.Is(err, ErrIntegrity) ||
		stderrors.Is(err, ErrRateLimited)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return stderrors.Is(err, ErrAuth)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrInvalidOutputFormatWithDetails is a helper to create a wrapped error with the invalid format and valid options.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidOutputFormat, format)
}

// ErrInvalidLogLevelWithDetails is a helper to create a wrapped error with the invalid level and valid options.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: error, warn, info, debug", ErrInvalidLogLevel, level)
}

// ErrProviderNotFoundWithID creates an error for a provider id that is not registered or not active.
func ErrProviderNotFoundWithID(id string) error {
	return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

// ErrProviderExistsWithID is a helper to create a wrapped error with the provider id.
func ErrProviderExistsWithID(id string) error {
	return fmt.Errorf("provider '%s': %w", id, ErrProviderExists)
}

// ErrEmptyProviderIDWithIndex is a helper to create a wrapped error with the provider index.
func ErrEmptyProviderIDWithIndex(i int) error {
	return fmt.Errorf("provider %d: %w", i, ErrEmptyProviderID)
}
