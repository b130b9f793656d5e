package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a feed or HTTP failure.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "subscribe")
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrFeedClosed is returned when the provider closes the feed session.
	ErrFeedClosed = errors.New("feed closed")

	// ErrUnauthorized is returned when the provider rejects the credential. Not retriable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCredentials is returned when no way to obtain an access token is configured.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrInstrumentNotFound is returned when a futures contract cannot be resolved.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrInvalidSecret is returned when the admin shared secret does not match.
	ErrInvalidSecret = errors.New("invalid secret")
)
