package domain

import "errors"

// RetriableError marks errors that reconnect/backoff logic may retry.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport-level fault. Disconnects, timeouts and
// protocol resets are all retriable; they never terminate the process.
type NetworkError struct {
	Op        string // operation that failed ("dial", "read", "write", "subscribe")
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

// NewNetworkError creates a retriable network error.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// ConfigError represents a configuration or credential fault. Fatal at
// startup only, never raised mid-run.
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
	// ErrUnknownVenue is returned for a venue name outside the closed set.
	ErrUnknownVenue = errors.New("unknown venue")

	// ErrSequenceGap marks a data-integrity fault recovered by resnapshot.
	ErrSequenceGap = errors.New("sequence gap")

	// ErrCrossedBook marks a book whose best bid crossed the best ask.
	ErrCrossedBook = errors.New("crossed book")

	// ErrOrderRejected is surfaced to the strategy as a failed intent.
	ErrOrderRejected = errors.New("order rejected")

	// ErrUnknownOrder is returned for a report that matches no local order.
	ErrUnknownOrder = errors.New("unknown order")
)
